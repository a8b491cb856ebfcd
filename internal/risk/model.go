package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultTVL is assumed for venues whose TVL is not known to the model.
const DefaultTVL = "1000000000"

// venueSafety is the base protocol safety score per known venue.
var venueSafety = map[string]float64{
	"Aave V3":       10,
	"Compound V3":   12,
	"Frax Finance":  18,
	"Yearn Finance": 15,
}

const unknownVenueSafety = 30

// Factors is the per-venue risk breakdown. Concentration is always zero at
// venue level; it only has meaning for a whole portfolio.
type Factors struct {
	ProtocolSafety float64 `json:"protocol_safety"`
	AuditScore     float64 `json:"audit_score"`
	TVLRisk        float64 `json:"tvl_risk"`
	Volatility     float64 `json:"volatility"`
	Concentration  float64 `json:"concentration"`
}

// Total sums the four venue-level factors.
func (f Factors) Total() float64 {
	return f.ProtocolSafety + f.AuditScore + f.TVLRisk + f.Volatility
}

// ScoreVenue scores a single venue from its name, TVL (integer string, USD)
// and historical yield volatility.
func ScoreVenue(name, tvl string, volatility float64) Factors {
	safety, ok := venueSafety[name]
	if !ok {
		safety = unknownVenueSafety
	}

	var audit float64
	switch {
	case safety < 15:
		audit = 5
	case safety < 20:
		audit = 10
	default:
		audit = 15
	}

	return Factors{
		ProtocolSafety: safety,
		AuditScore:     audit,
		TVLRisk:        tvlRisk(tvl),
		Volatility:     volatility,
	}
}

func tvlRisk(tvl string) float64 {
	v, err := decimal.NewFromString(tvl)
	if err != nil || !v.IsPositive() {
		return 15
	}
	switch {
	case v.GreaterThan(decimal.New(1, 9)):
		return 3
	case v.GreaterThan(decimal.New(5, 8)):
		return 7
	case v.GreaterThan(decimal.New(1, 8)):
		return 12
	default:
		return 15
	}
}

// PortfolioPosition is one venue allocation as seen by the risk model.
// Percentage is on the 0-100 scale.
type PortfolioPosition struct {
	Venue      string          `json:"venue"`
	Asset      string          `json:"asset"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage float64         `json:"percentage"`
}

// PortfolioScore is the result of scoring a whole portfolio.
type PortfolioScore struct {
	TotalScore int            `json:"total_score"`
	Breakdown  map[string]int `json:"breakdown"`
	Level      Level          `json:"level"`
}

// TVLLookup returns the TVL (integer string) for a venue, or false if unknown.
type TVLLookup func(venue string) (string, bool)

// Model scores portfolios. The TVL lookup feeds the per-venue TVL tier;
// without it every venue is assumed to hold DefaultTVL.
type Model struct {
	tvl TVLLookup
}

// NewModel creates a Model. lookup may be nil.
func NewModel(lookup TVLLookup) *Model {
	return &Model{tvl: lookup}
}

// StaticTVL builds a TVLLookup from a fixed venue -> TVL map.
func StaticTVL(m map[string]string) TVLLookup {
	return func(venue string) (string, bool) {
		v, ok := m[venue]
		return v, ok
	}
}

func (m *Model) venueTVL(venue string) string {
	if m != nil && m.tvl != nil {
		if v, ok := m.tvl(venue); ok {
			return v
		}
	}
	return DefaultTVL
}

// ConcentrationIndex returns the Herfindahl index of 0-100 percentages,
// i.e. the sum of squared shares.
func ConcentrationIndex(percentages []float64) float64 {
	var hhi float64
	for _, p := range percentages {
		share := p / 100
		hhi += share * share
	}
	return hhi
}

// ScorePortfolio computes the portfolio risk score: the percentage-weighted
// sum of venue factor totals plus the concentration index scaled by 10.
func (m *Model) ScorePortfolio(positions []PortfolioPosition) PortfolioScore {
	if len(positions) == 0 {
		return PortfolioScore{TotalScore: 0, Breakdown: map[string]int{}, Level: LevelLow}
	}

	pcts := make([]float64, len(positions))
	var weighted float64
	for i, p := range positions {
		pcts[i] = p.Percentage
		f := ScoreVenue(p.Venue, m.venueTVL(p.Venue), 0)
		weighted += f.Total() * p.Percentage / 100
	}
	concentration := ConcentrationIndex(pcts) * 10

	total := int(math.Round(weighted + concentration))
	return PortfolioScore{
		TotalScore: total,
		Breakdown: map[string]int{
			"venue_risk":    int(math.Round(weighted)),
			"concentration": int(math.Round(concentration)),
		},
		Level: LevelFor(total),
	}
}

// LimitCheck lists the limit violations for a portfolio.
type LimitCheck struct {
	Violations   []string `json:"violations"`
	WithinLimits bool     `json:"within_limits"`
}

// CheckLimits reports a violation when the total score exceeds maxScore and
// for every position above maxSingleVenuePercent.
func CheckLimits(totalScore int, positions []PortfolioPosition, maxScore int, maxSingleVenuePercent float64) LimitCheck {
	violations := []string{}
	if totalScore > maxScore {
		violations = append(violations,
			fmt.Sprintf("Total risk score (%d) exceeds limit (%d)", totalScore, maxScore))
	}
	for _, p := range positions {
		if p.Percentage > maxSingleVenuePercent {
			violations = append(violations,
				fmt.Sprintf("%s concentration (%s%%) exceeds limit (%s%%)",
					p.Venue, fmtPct(p.Percentage), fmtPct(maxSingleVenuePercent)))
		}
	}
	return LimitCheck{Violations: violations, WithinLimits: len(violations) == 0}
}

// Reduction is advisory output from SuggestReduction.
type Reduction struct {
	Suggestions     []string            `json:"suggestions"`
	TargetPositions []PortfolioPosition `json:"target_positions"`
}

// SuggestReduction names the riskiest and safest venues in the portfolio.
// It does not compute a redistribution: TargetPositions is the input as-is.
func (m *Model) SuggestReduction(positions []PortfolioPosition, targetScore int) Reduction {
	type ranked struct {
		venue  string
		safety float64
	}
	rs := make([]ranked, len(positions))
	for i, p := range positions {
		rs[i] = ranked{venue: p.Venue, safety: ScoreVenue(p.Venue, m.venueTVL(p.Venue), 0).ProtocolSafety}
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].safety > rs[j].safety })

	suggestions := []string{}
	if len(rs) > 1 {
		hi, lo := rs[0], rs[len(rs)-1]
		suggestions = append(suggestions, fmt.Sprintf(
			"Move 10-20%% from %s (risk: %s) to %s (risk: %s) to approach target score %d",
			hi.venue, fmtPct(hi.safety), lo.venue, fmtPct(lo.safety), targetScore))
	}
	return Reduction{Suggestions: suggestions, TargetPositions: positions}
}

// fmtPct prints a float without trailing zeros ("50", "33.33").
func fmtPct(v float64) string {
	return decimal.NewFromFloat(v).Round(2).String()
}
