package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-courses/internal/errs"
	"github.com/mind-engage/mindengage-courses/internal/events"
	"github.com/mind-engage/mindengage-courses/internal/gradesync"
)

// POST /gradebook/resync  { "attempt_id": "..." }
func GradebookResyncHandler(s *gradesync.Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AttemptID string `json:"attempt_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.AttemptID == "" {
			badRequest(w, "attempt_id required")
			return
		}
		if err := s.SyncAttempt(r.Context(), req.AttemptID); err != nil {
			// remote failures are recorded; report the status instead of a 500
			if errs.KindOf(err) == errs.KindFatal {
				if st, _ := s.Store.GetSyncStatus(r.Context(), req.AttemptID); st.Status == "failed" {
					writeJSON(w, http.StatusBadGateway, st)
					return
				}
			}
			writeErr(w, r, err)
			return
		}
		st, err := s.Store.GetSyncStatus(r.Context(), req.AttemptID)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// GET /gradebook/status/{attemptID}
func GradebookStatusHandler(s *gradesync.Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.Store.GetSyncStatus(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// GET /events?since=0&limit=100: outbox replay for consumers that missed
// broker messages.
func EventsSinceHandler(d *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since := int64(parseIntDefault(r.URL.Query().Get("since"), 0))
		limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
		evs, err := events.Since(r.Context(), d, since, limit)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		if evs == nil {
			evs = []events.Event{}
		}
		writeJSON(w, http.StatusOK, evs)
	}
}
