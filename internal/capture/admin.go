package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/simcam/internal/cadence"
)

// Status is a point-in-time view of a Session, safe to take while a
// recording is running.
type Status struct {
	Subject      string    `json:"subject"`
	Phase        string    `json:"phase"`
	Samples      int64     `json:"samples"`
	Failures     int64     `json:"failures"`
	Steps        int64     `json:"steps"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	ElapsedSec   float64   `json:"elapsed_sec"`
	TargetFrames int       `json:"target_frames"`
	NominalFPS   float64   `json:"nominal_fps"`
	LastArtifact *Artifact `json:"last_artifact,omitempty"`
}

// Status reports progress without blocking on the lifecycle lock.
func (s *Session) Status() Status {
	st := Status{
		Subject:      s.subject.Name,
		Phase:        s.Phase().String(),
		Samples:      s.capturedCount.Load(),
		Failures:     s.failedCount.Load(),
		Steps:        s.stepCount.Load(),
		TargetFrames: s.cfg.TargetFrames,
		NominalFPS:   s.cfg.FPS,
		LastArtifact: s.lastArtifact.Load(),
	}
	if ns := s.startedNanos.Load(); ns != 0 {
		st.StartedAt = time.Unix(0, ns)
		st.ElapsedSec = s.clock.Since(st.StartedAt).Seconds()
	}
	return st
}

// recentCadence analyses the capture times of the current or most recent
// recording.
func (s *Session) recentCadence() cadence.Stats {
	s.historyMu.Lock()
	times := append([]time.Time(nil), s.history...)
	s.historyMu.Unlock()
	return cadence.Analyze(times, s.cfg.FPS)
}

// AttachAdminRoutes mounts the session's debug endpoints under /debug/.
// Start and stop are POST-only and let an operator drive an async
// recording by hand.
func (s *Session) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleSilentFunc("capture-status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
			http.Error(w, "failed to encode status", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("capture-start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := s.Start(); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrAlreadyRecording) {
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}
		fmt.Fprintf(w, "recording %s\n", s.subject.Name)
	})

	debug.HandleSilentFunc("capture-stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		preserve := true
		if v := r.FormValue("preserve_real_time"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				http.Error(w, "invalid preserve_real_time", http.StatusBadRequest)
				return
			}
			preserve = b
		}

		art, err := s.StopContext(r.Context(), preserve)
		var encErr *EncodingError
		switch {
		case errors.Is(err, ErrNotRecording):
			http.Error(w, err.Error(), http.StatusConflict)
			return
		case errors.Is(err, ErrNoFramesCaptured):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		case errors.As(err, &encErr):
			// Tables were still written; report both.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err == nil {
			w.Header().Set("Content-Type", "application/json")
		}
		json.NewEncoder(w).Encode(art)
	})

	debug.HandleFunc("capture-cadence", "Inter-frame intervals of the current recording", func(w http.ResponseWriter, r *http.Request) {
		st := s.recentCadence()

		data := make([]opts.LineData, len(st.Intervals))
		xs := make([]string, len(st.Intervals))
		for i, iv := range st.Intervals {
			xs[i] = strconv.Itoa(i + 1)
			data[i] = opts.LineData{Value: iv * 1000}
		}

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{PageTitle: "Capture Cadence", Theme: "dark", Width: "100%", Height: "600px"}),
			charts.WithTitleOpts(opts.Title{
				Title:    fmt.Sprintf("%s capture cadence", s.subject.Name),
				Subtitle: fmt.Sprintf("frames=%d nominal=%.2ffps achieved=%.2ffps jitter=%.1fms stable=%t", st.Frames, st.Nominal, st.FPS, st.Jitter*1000, st.IsStable),
			}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
			charts.WithYAxisOpts(opts.YAxis{Name: "Interval (ms)", NameLocation: "middle", NameGap: 40}),
		)
		line.SetXAxis(xs).AddSeries("interval", data)

		var buf bytes.Buffer
		if err := line.Render(&buf); err != nil {
			http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})
}
