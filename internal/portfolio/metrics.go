package portfolio

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/web3-frozen/yield-guardian/internal/risk"
)

// Metrics is the per-cycle risk snapshot of the live portfolio. Risk values
// are 0-1 fractions; concentration maps hold shares summing to 1.
type Metrics struct {
	CurrentRisk           risk.Fraction      `json:"current_risk"`
	MaxRisk               risk.Fraction      `json:"max_risk"`
	Diversification       float64            `json:"diversification"`
	ProtocolConcentration map[string]float64 `json:"protocol_concentration"`
	AssetConcentration    map[string]float64 `json:"asset_concentration"`
}

// ComputeMetrics derives Metrics from positions. maxRisk is carried through
// from configuration.
func ComputeMetrics(positions []Position, maxRisk risk.Fraction) Metrics {
	return Metrics{
		CurrentRisk:           currentRisk(positions),
		MaxRisk:               maxRisk,
		Diversification:       diversification(positions),
		ProtocolConcentration: concentration(positions, func(p Position) string { return p.Venue.Name }),
		AssetConcentration:    concentration(positions, func(p Position) string { return p.Asset }),
	}
}

// currentRisk is the value-weighted mean of position risk.
func currentRisk(positions []Position) risk.Fraction {
	var total, weighted float64
	for _, p := range positions {
		total += p.Value
		weighted += p.Value * float64(p.RiskScore)
	}
	if total <= 0 {
		return 0
	}
	return risk.Fraction(weighted / total)
}

// diversification maps the HHI over venue/asset buckets onto [0,1], where 1
// is a perfectly even spread across all positions.
func diversification(positions []Position) float64 {
	if len(positions) <= 1 {
		return 0
	}
	total := TotalValue(positions)
	if total <= 0 {
		return 0
	}

	buckets := make(map[string]float64)
	for _, p := range positions {
		buckets[p.Venue.Name+"-"+p.Asset] += p.Value
	}
	var hhi float64
	for _, v := range buckets {
		share := v / total
		hhi += share * share
	}

	minHHI := 1 / float64(len(positions))
	d := (1 - hhi) / (1 - minHHI)
	switch {
	case d < 0:
		return 0
	case d > 1:
		return 1
	}
	return d
}

func concentration(positions []Position, key func(Position) string) map[string]float64 {
	out := make(map[string]float64)
	total := TotalValue(positions)
	for _, p := range positions {
		out[key(p)] += p.Value
	}
	for k, v := range out {
		if total > 0 {
			out[k] = v / total
		} else {
			out[k] = 0
		}
	}
	return out
}

func decimalFromBig(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}
