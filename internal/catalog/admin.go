package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// recordingDetail is the JSON body of a single-recording lookup.
type recordingDetail struct {
	Recording
	Poses []PoseRow `json:"poses,omitempty"`
}

// AttachAdminRoutes mounts the catalog debug endpoints, including a
// tailsql console, under /debug/.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return err
	}
	tsql.SetDB("sqlite://simcam.db", s.db, &tailsql.DBOptions{
		Label: "Recording catalog",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("recordings", "Catalogued recordings (?subject=, ?id=)", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if raw := r.URL.Query().Get("id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, "invalid id", http.StatusBadRequest)
				return
			}
			rec, err := s.Recording(r.Context(), id)
			if errors.Is(err, ErrNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			} else if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			detail := recordingDetail{Recording: rec}
			if r.URL.Query().Get("poses") == "true" {
				if detail.Poses, err = s.Poses(r.Context(), id); err != nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
			}
			json.NewEncoder(w).Encode(detail)
			return
		}

		recs, err := s.Recordings(r.Context(), r.URL.Query().Get("subject"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []Recording{}
		}
		json.NewEncoder(w).Encode(recs)
	})
	return nil
}
