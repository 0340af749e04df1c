package capture

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localHostRequest creates a request that passes tsweb's loopback check.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req
}

func serve(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAdminStartStop(t *testing.T) {
	cfg := baseConfig()
	cfg.TargetFrames = 5
	h := newHarness(t, cfg, nil)
	mux := http.NewServeMux()
	h.session.AttachAdminRoutes(mux)

	rec := serve(mux, localHostRequest(http.MethodGet, "/debug/capture-start", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(mux, localHostRequest(http.MethodPost, "/debug/capture-stop", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(mux, localHostRequest(http.MethodPost, "/debug/capture-start", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "humanoid_0")

	rec = serve(mux, localHostRequest(http.MethodPost, "/debug/capture-start", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	waitFor(t, "frame target", func() bool { return h.session.Status().Samples == 5 })

	rec = serve(mux, localHostRequest(http.MethodPost, "/debug/capture-stop", strings.NewReader("preserve_real_time=bogus")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(mux, localHostRequest(http.MethodPost, "/debug/capture-stop", strings.NewReader("preserve_real_time=false")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var art Artifact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &art))
	assert.Equal(t, 5, art.Frames)
	assert.Equal(t, 10.0, art.OutputFPS)
}

func TestAdminStatus(t *testing.T) {
	h := newHarness(t, baseConfig(), nil)
	mux := http.NewServeMux()
	h.session.AttachAdminRoutes(mux)

	_, err := h.session.RecordSynchronous(t.Context())
	require.NoError(t, err)

	rec := serve(mux, localHostRequest(http.MethodGet, "/debug/capture-status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "idle", st.Phase)
	assert.Equal(t, "humanoid_0", st.Subject)
	require.NotNil(t, st.LastArtifact)
	assert.Equal(t, 10, st.LastArtifact.Frames)
}

func TestAdminCadenceChart(t *testing.T) {
	h := newHarness(t, baseConfig(), nil)
	mux := http.NewServeMux()
	h.session.AttachAdminRoutes(mux)

	_, err := h.session.RecordSynchronous(t.Context())
	require.NoError(t, err)

	rec := serve(mux, localHostRequest(http.MethodGet, "/debug/capture-cadence", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "capture cadence")
}

func TestAdminNoFrames(t *testing.T) {
	cfg := baseConfig()
	cfg.TargetFrames = 1
	h := newHarness(t, cfg, nil)
	mux := http.NewServeMux()
	h.session.AttachAdminRoutes(mux)

	require.NoError(t, h.session.Start())
	waitFor(t, "one sample", func() bool { return h.session.Status().Samples == 1 })

	rec := serve(mux, localHostRequest(http.MethodPost, "/debug/capture-stop", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
