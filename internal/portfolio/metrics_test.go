package portfolio

import (
	"math"
	"math/big"
	"testing"

	"github.com/web3-frozen/yield-guardian/internal/risk"
)

func position(venue, asset string, value float64, r float64) Position {
	return Position{
		Venue:     Venue{Name: venue, Kind: KindLending},
		Asset:     asset,
		Amount:    big.NewInt(int64(value)),
		Value:     value,
		RiskScore: risk.Fraction(r),
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestComputeMetricsEmpty(t *testing.T) {
	m := ComputeMetrics(nil, 0.8)
	if m.CurrentRisk != 0 || m.Diversification != 0 || m.MaxRisk != 0.8 {
		t.Errorf("ComputeMetrics(nil) = %+v", m)
	}
}

func TestComputeMetricsSinglePosition(t *testing.T) {
	m := ComputeMetrics([]Position{position("Aave V3", "USDC", 1000, 0.15)}, 0.8)
	if !near(float64(m.CurrentRisk), 0.15) {
		t.Errorf("CurrentRisk = %v, want 0.15", m.CurrentRisk)
	}
	if m.Diversification != 0 {
		t.Errorf("Diversification = %v, want 0 for one position", m.Diversification)
	}
	if !near(m.ProtocolConcentration["Aave V3"], 1) {
		t.Errorf("ProtocolConcentration = %v", m.ProtocolConcentration)
	}
}

func TestComputeMetricsEvenSplit(t *testing.T) {
	m := ComputeMetrics([]Position{
		position("Aave V3", "USDC", 5000, 0.10),
		position("Compound V3", "USDC", 5000, 0.30),
	}, 0.8)

	if !near(float64(m.CurrentRisk), 0.20) {
		t.Errorf("CurrentRisk = %v, want 0.20", m.CurrentRisk)
	}
	if !near(m.Diversification, 1) {
		t.Errorf("Diversification = %v, want 1 for even split", m.Diversification)
	}
	if !near(m.AssetConcentration["USDC"], 1) {
		t.Errorf("AssetConcentration = %v", m.AssetConcentration)
	}
}

func TestComputeMetricsSkewed(t *testing.T) {
	m := ComputeMetrics([]Position{
		position("Aave V3", "USDC", 9000, 0.10),
		position("Compound V3", "DAI", 1000, 0.20),
	}, 0.8)

	// hhi = 0.81 + 0.01 = 0.82, normalized (1-0.82)/(1-0.5) = 0.36
	if !near(m.Diversification, 0.36) {
		t.Errorf("Diversification = %v, want 0.36", m.Diversification)
	}
	if !near(m.ProtocolConcentration["Aave V3"], 0.9) || !near(m.AssetConcentration["DAI"], 0.1) {
		t.Errorf("concentration = %v / %v", m.ProtocolConcentration, m.AssetConcentration)
	}
}

func TestToPortfolioPositions(t *testing.T) {
	got := ToPortfolioPositions([]Position{
		position("Aave V3", "USDC", 6000, 0.1),
		position("Frax Finance", "USDC", 4000, 0.2),
	})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !near(got[0].Percentage, 60) || !near(got[1].Percentage, 40) {
		t.Errorf("percentages = %v, %v", got[0].Percentage, got[1].Percentage)
	}
	if got[0].Amount.IntPart() != 6000 {
		t.Errorf("amount = %s, want 6000", got[0].Amount)
	}
}
