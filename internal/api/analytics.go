package api

import (
	"net/http"
	"time"

	"github.com/zombor/pantry-tracker/internal/analytics"
)

// handleAnalytics returns the spend report of the window containing as_of.
// Window defaults to month and as_of to today.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	window := analytics.Month
	if v := q.Get("window"); v != "" {
		parsed, err := analytics.ParseWindow(v)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		window = parsed
	}

	asOf := s.timeSource.Now()
	if v := q.Get("as_of"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, s.cfg.Location)
		if err != nil {
			jsonError(w, "Invalid as_of date", http.StatusBadRequest)
			return
		}
		asOf = d
	}

	report, err := s.services.Analytics.Aggregate(r.Context(), window, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
