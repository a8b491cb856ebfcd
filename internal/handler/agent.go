package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/web3-frozen/yield-guardian/internal/agent"
	"github.com/web3-frozen/yield-guardian/internal/cache"
	"github.com/web3-frozen/yield-guardian/internal/store"
)

// Runner is the guard cycle surface served over HTTP.
type Runner interface {
	RunCycle(ctx context.Context) (*agent.Cycle, error)
	Status() agent.Status
}

// CycleHistory lists persisted cycles.
type CycleHistory interface {
	RecentCycles(ctx context.Context, limit int) ([]store.CycleSummary, error)
}

func AgentStatus(run Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, run.Status())
	}
}

// TriggerCycle runs a cycle synchronously. A cycle already in flight
// yields 409.
func TriggerCycle(run Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := run.RunCycle(r.Context())
		if c == nil {
			writeErr(w, err)
			return
		}
		status := http.StatusOK
		if err != nil {
			status = statusFor(err)
		}
		writeJSON(w, status, c)
	}
}

func RecentCycles(h CycleHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h == nil {
			writeError(w, http.StatusServiceUnavailable, "cycle history not configured")
			return
		}
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 100 {
				limit = l
			}
		}
		cycles, err := h.RecentCycles(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list cycles")
			return
		}
		writeJSON(w, http.StatusOK, cycles)
	}
}

func CacheStats(c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, c.Stats())
	}
}
