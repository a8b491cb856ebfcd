package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/web3-frozen/yield-guardian/internal/agent"
	"github.com/web3-frozen/yield-guardian/internal/yield"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, yield.ErrVenueNotFound):
		return http.StatusNotFound
	case errors.Is(err, yield.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, yield.ErrUpstream), errors.Is(err, yield.ErrNoQuotes):
		return http.StatusBadGateway
	case errors.Is(err, agent.ErrCycleInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
