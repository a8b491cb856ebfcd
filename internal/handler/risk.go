package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/web3-frozen/yield-guardian/internal/risk"
)

// PortfolioRisk scores a portfolio and checks it against the enforcer's
// limits. Reduction suggestions are included when limits are breached.
func PortfolioRisk(model *risk.Model, enf *risk.Enforcer) http.HandlerFunc {
	type request struct {
		Positions []risk.PortfolioPosition `json:"positions"`
	}
	type response struct {
		risk.PortfolioScore
		Limits    risk.LimitCheck `json:"limits"`
		Reduction *risk.Reduction `json:"reduction,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		score := model.ScorePortfolio(req.Positions)
		lim := enf.Limits()
		resp := response{
			PortfolioScore: score,
			Limits:         risk.CheckLimits(score.TotalScore, req.Positions, lim.MaxTotalRiskScore, lim.MaxSingleVenuePercent),
		}
		if !resp.Limits.WithinLimits {
			red := model.SuggestReduction(req.Positions, lim.MaxTotalRiskScore)
			resp.Reduction = &red
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func GetLimits(enf *risk.Enforcer) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, enf.Limits())
	}
}

// UpdateLimits applies a partial update. Absent fields keep their values.
func UpdateLimits(enf *risk.Enforcer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch risk.LimitsPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if (patch.MaxSingleVenuePercent != nil && (*patch.MaxSingleVenuePercent <= 0 || *patch.MaxSingleVenuePercent > 100)) ||
			(patch.MaxTotalRiskScore != nil && (*patch.MaxTotalRiskScore < 0 || *patch.MaxTotalRiskScore > 100)) ||
			(patch.MaxHighRiskVenues != nil && *patch.MaxHighRiskVenues < 0) ||
			(patch.MinDiversificationCount != nil && *patch.MinDiversificationCount < 1) {
			writeError(w, http.StatusBadRequest, "limit out of range")
			return
		}
		writeJSON(w, http.StatusOK, enf.UpdateLimits(patch))
	}
}

// ValidatePosition checks a candidate position against the current ones.
func ValidatePosition(enf *risk.Enforcer) http.HandlerFunc {
	type request struct {
		Current   []risk.PortfolioPosition `json:"current"`
		Candidate *risk.PortfolioPosition  `json:"candidate"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Candidate == nil || req.Candidate.Venue == "" {
			writeError(w, http.StatusBadRequest, "candidate with venue required")
			return
		}
		writeJSON(w, http.StatusOK, enf.ValidateNewPosition(req.Current, *req.Candidate))
	}
}

// ValidateRebalance checks moving an amount between two venues.
func ValidateRebalance(enf *risk.Enforcer) http.HandlerFunc {
	type request struct {
		Current []risk.PortfolioPosition `json:"current"`
		From    string                   `json:"from"`
		To      string                   `json:"to"`
		Amount  decimal.Decimal          `json:"amount"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.From == "" || req.To == "" || !req.Amount.IsPositive() {
			writeError(w, http.StatusBadRequest, "from, to and a positive amount required")
			return
		}
		writeJSON(w, http.StatusOK, enf.ValidateRebalance(req.Current, req.From, req.To, req.Amount))
	}
}

// SuggestAllocation splits a total across venues within the limits.
func SuggestAllocation(enf *risk.Enforcer) http.HandlerFunc {
	type request struct {
		Venues []string        `json:"venues"`
		Total  decimal.Decimal `json:"total"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Venues) == 0 || !req.Total.IsPositive() {
			writeError(w, http.StatusBadRequest, "venues and a positive total required")
			return
		}
		writeJSON(w, http.StatusOK, enf.SuggestAllocation(req.Venues, req.Total))
	}
}
