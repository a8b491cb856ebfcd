package handler

import (
	"net/http"
	"time"

	"github.com/web3-frozen/yield-guardian/internal/alert"
)

const defaultAlertWindow = 24 * time.Hour

// maxAge reads ?max_age=<duration>, defaulting to 24h.
func maxAge(r *http.Request) (time.Duration, bool) {
	v := r.URL.Query().Get("max_age")
	if v == "" {
		return defaultAlertWindow, true
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func ListAlerts(s *alert.System) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		age, ok := maxAge(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid max_age")
			return
		}
		writeJSON(w, http.StatusOK, s.ActiveAlerts(age))
	}
}

func AlertStats(s *alert.System) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		age, ok := maxAge(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid max_age")
			return
		}
		writeJSON(w, http.StatusOK, s.Stats(age))
	}
}
