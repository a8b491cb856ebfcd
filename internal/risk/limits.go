package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Limits are the configurable position caps. MaxHighRiskVenues is carried
// for configuration parity but not enforced.
type Limits struct {
	MaxSingleVenuePercent   float64 `json:"max_single_venue_percent"`
	MaxTotalRiskScore       int     `json:"max_total_risk_score"`
	MaxHighRiskVenues       int     `json:"max_high_risk_venues"`
	MinDiversificationCount int     `json:"min_diversification_count"`
}

// DefaultLimits returns 50% per venue, score 60, one high-risk venue and at
// least two venues.
func DefaultLimits() Limits {
	return Limits{
		MaxSingleVenuePercent:   50,
		MaxTotalRiskScore:       60,
		MaxHighRiskVenues:       1,
		MinDiversificationCount: 2,
	}
}

// LimitsPatch updates only the non-nil fields.
type LimitsPatch struct {
	MaxSingleVenuePercent   *float64 `json:"max_single_venue_percent,omitempty"`
	MaxTotalRiskScore       *int     `json:"max_total_risk_score,omitempty"`
	MaxHighRiskVenues       *int     `json:"max_high_risk_venues,omitempty"`
	MinDiversificationCount *int     `json:"min_diversification_count,omitempty"`
}

// Validation is the structured outcome of a limit check. AdjustedAmount is
// set when a rebalance overshoots the single-venue cap and holds the largest
// move that would fit.
type Validation struct {
	Valid          bool             `json:"valid"`
	Violations     []string         `json:"violations"`
	AdjustedAmount *decimal.Decimal `json:"adjusted_amount,omitempty"`
}

// Enforcer validates hypothetical positions against Limits. Limits may be
// updated while the enforcer is in use.
type Enforcer struct {
	mu     sync.RWMutex
	limits Limits
	model  *Model
}

// NewEnforcer creates an Enforcer scoring portfolios with model.
func NewEnforcer(limits Limits, model *Model) *Enforcer {
	if model == nil {
		model = NewModel(nil)
	}
	return &Enforcer{limits: limits, model: model}
}

// Limits returns a copy of the current limits.
func (e *Enforcer) Limits() Limits {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.limits
}

// UpdateLimits applies patch and returns the resulting limits.
func (e *Enforcer) UpdateLimits(patch LimitsPatch) Limits {
	e.mu.Lock()
	defer e.mu.Unlock()
	if patch.MaxSingleVenuePercent != nil {
		e.limits.MaxSingleVenuePercent = *patch.MaxSingleVenuePercent
	}
	if patch.MaxTotalRiskScore != nil {
		e.limits.MaxTotalRiskScore = *patch.MaxTotalRiskScore
	}
	if patch.MaxHighRiskVenues != nil {
		e.limits.MaxHighRiskVenues = *patch.MaxHighRiskVenues
	}
	if patch.MinDiversificationCount != nil {
		e.limits.MinDiversificationCount = *patch.MinDiversificationCount
	}
	return e.limits
}

// ValidateNewPosition checks candidate against the single-venue cap, the
// total score of current+candidate, and the minimum venue count.
func (e *Enforcer) ValidateNewPosition(current []PortfolioPosition, candidate PortfolioPosition) Validation {
	l := e.Limits()
	violations := []string{}

	if candidate.Percentage > l.MaxSingleVenuePercent {
		violations = append(violations, fmt.Sprintf(
			"Position size (%s%%) exceeds max single protocol limit (%s%%)",
			fmtPct(candidate.Percentage), fmtPct(l.MaxSingleVenuePercent)))
	}

	next := make([]PortfolioPosition, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, candidate)

	if score := e.model.ScorePortfolio(next).TotalScore; score > l.MaxTotalRiskScore {
		violations = append(violations, fmt.Sprintf(
			"New portfolio risk score (%d) would exceed limit (%d)", score, l.MaxTotalRiskScore))
	}

	if n := distinctVenues(next); n < l.MinDiversificationCount {
		violations = append(violations, fmt.Sprintf(
			"Portfolio must have at least %d protocols (has %d)", l.MinDiversificationCount, n))
	}

	return Validation{Valid: len(violations) == 0, Violations: violations}
}

// SuggestAllocation splits total equally across venues. The weight is
// 100/n with n = max(len(venues), MinDiversificationCount), capped at five
// points below the single-venue limit.
func (e *Enforcer) SuggestAllocation(venues []string, total decimal.Decimal) []PortfolioPosition {
	l := e.Limits()
	n := len(venues)
	if n < l.MinDiversificationCount {
		n = l.MinDiversificationCount
	}
	if n == 0 {
		return []PortfolioPosition{}
	}

	pct := 100 / float64(n)
	if capPct := l.MaxSingleVenuePercent - 5; capPct < pct {
		pct = capPct
	}

	amount := total.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100)).Round(2)
	out := make([]PortfolioPosition, 0, len(venues))
	for _, v := range venues {
		out = append(out, PortfolioPosition{
			Venue:      v,
			Asset:      "USDC",
			Amount:     amount,
			Percentage: pct,
		})
	}
	return out
}

// ValidateRebalance checks moving amount from one venue to another. Only
// the two affected positions change; percentages use the unchanged total
// portfolio value as denominator. A destination not yet held is treated as
// an empty position.
func (e *Enforcer) ValidateRebalance(current []PortfolioPosition, from, to string, amount decimal.Decimal) Validation {
	l := e.Limits()
	violations := []string{}

	total := decimal.Zero
	for _, p := range current {
		total = total.Add(p.Amount)
	}

	pctOf := func(v decimal.Decimal) float64 {
		if !total.IsPositive() {
			return 0
		}
		f, _ := v.Div(total).Mul(decimal.NewFromInt(100)).Float64()
		return f
	}

	next := make([]PortfolioPosition, 0, len(current)+1)
	var foundFrom, foundTo bool
	destBefore := decimal.Zero
	var destAfter PortfolioPosition

	for _, p := range current {
		switch p.Venue {
		case from:
			foundFrom = true
			if p.Amount.LessThan(amount) {
				violations = append(violations, fmt.Sprintf(
					"Insufficient balance in %s (%s < %s)", from, p.Amount.String(), amount.String()))
			}
			p.Amount = p.Amount.Sub(amount)
			p.Percentage = pctOf(p.Amount)
		case to:
			foundTo = true
			destBefore = p.Amount
			p.Amount = p.Amount.Add(amount)
			p.Percentage = pctOf(p.Amount)
			destAfter = p
		}
		next = append(next, p)
	}
	if !foundFrom {
		violations = append(violations, fmt.Sprintf("Source protocol %s not in portfolio", from))
	}
	if !foundTo {
		asset := ""
		if len(current) > 0 {
			asset = current[0].Asset
		}
		destAfter = PortfolioPosition{Venue: to, Asset: asset, Amount: amount, Percentage: pctOf(amount)}
		next = append(next, destAfter)
	}

	var adjusted *decimal.Decimal
	if destAfter.Percentage > l.MaxSingleVenuePercent {
		violations = append(violations, fmt.Sprintf(
			"Rebalance would exceed max single protocol limit (%s%% > %s%%)",
			fmtPct(destAfter.Percentage), fmtPct(l.MaxSingleVenuePercent)))

		maxAmount := total.Mul(decimal.NewFromFloat(l.MaxSingleVenuePercent)).
			Div(decimal.NewFromInt(100)).Sub(destBefore)
		if maxAmount.IsNegative() {
			maxAmount = decimal.Zero
		}
		maxAmount = maxAmount.Round(2)
		adjusted = &maxAmount
	}

	// The score check runs even when the cap is already breached.
	if score := e.model.ScorePortfolio(next).TotalScore; score > l.MaxTotalRiskScore {
		violations = append(violations, fmt.Sprintf(
			"Rebalance would exceed max risk score (%d > %d)", score, l.MaxTotalRiskScore))
	}

	return Validation{Valid: len(violations) == 0, Violations: violations, AdjustedAmount: adjusted}
}

func distinctVenues(positions []PortfolioPosition) int {
	seen := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		seen[p.Venue] = struct{}{}
	}
	return len(seen)
}
