package risk

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func pos(venue string, amount int64, pct float64) PortfolioPosition {
	return PortfolioPosition{Venue: venue, Asset: "USDC", Amount: decimal.NewFromInt(amount), Percentage: pct}
}

func TestValidateNewPositionWithinLimits(t *testing.T) {
	e := NewEnforcer(DefaultLimits(), nil)
	got := e.ValidateNewPosition(
		[]PortfolioPosition{pos("Aave V3", 5000, 50)},
		pos("Compound V3", 5000, 50),
	)
	if !got.Valid || len(got.Violations) != 0 {
		t.Errorf("ValidateNewPosition = %+v, want valid", got)
	}
}

func TestValidateNewPositionExceedsSingleVenue(t *testing.T) {
	e := NewEnforcer(DefaultLimits(), nil)
	got := e.ValidateNewPosition(
		[]PortfolioPosition{pos("Aave V3", 3000, 30)},
		pos("Compound V3", 6000, 60),
	)
	if got.Valid {
		t.Fatal("Valid = true, want false")
	}
	found := false
	for _, v := range got.Violations {
		if strings.Contains(v, "exceeds max single protocol limit") {
			found = true
		}
	}
	if !found {
		t.Errorf("Violations = %v, want single protocol limit violation", got.Violations)
	}
}

func TestValidateNewPositionDiversification(t *testing.T) {
	e := NewEnforcer(DefaultLimits(), nil)
	got := e.ValidateNewPosition(nil, pos("Aave V3", 1000, 40))
	if got.Valid {
		t.Fatal("Valid = true, want false for single venue portfolio")
	}
	if !strings.Contains(strings.Join(got.Violations, ";"), "at least 2 protocols") {
		t.Errorf("Violations = %v", got.Violations)
	}
}

func TestValidateNewPositionRiskScore(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxTotalRiskScore = 20
	e := NewEnforcer(limits, nil)
	got := e.ValidateNewPosition(
		[]PortfolioPosition{pos("Unknown A", 5000, 50)},
		pos("Unknown B", 5000, 50),
	)
	if got.Valid {
		t.Fatal("Valid = true, want false")
	}
	if !strings.Contains(got.Violations[0], "would exceed limit (20)") {
		t.Errorf("Violations = %v", got.Violations)
	}
}

func TestSuggestAllocation(t *testing.T) {
	e := NewEnforcer(DefaultLimits(), nil)
	got := e.SuggestAllocation([]string{"Aave V3", "Compound V3", "Frax Finance"}, decimal.NewFromInt(10000))
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	var total float64
	for _, p := range got {
		if p.Percentage > 50 {
			t.Errorf("%s percentage %v > 50", p.Venue, p.Percentage)
		}
		total += p.Percentage
	}
	if total < 99.9 || total > 100.1 {
		t.Errorf("total percentage = %v, want ~100", total)
	}
	if !got[0].Amount.Equal(decimal.RequireFromString("3333.33")) {
		t.Errorf("amount = %s, want 3333.33", got[0].Amount)
	}
}

func TestSuggestAllocationCapped(t *testing.T) {
	e := NewEnforcer(DefaultLimits(), nil)
	// one venue is padded to the minimum of two, then capped at 50-5
	got := e.SuggestAllocation([]string{"Aave V3"}, decimal.NewFromInt(1000))
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Percentage != 45 {
		t.Errorf("percentage = %v, want 45", got[0].Percentage)
	}
	if !got[0].Amount.Equal(decimal.NewFromInt(450)) {
		t.Errorf("amount = %s, want 450", got[0].Amount)
	}
}

func TestValidateRebalanceWithinLimits(t *testing.T) {
	e := NewEnforcer(DefaultLimits(), nil)
	got := e.ValidateRebalance(
		[]PortfolioPosition{pos("Aave V3", 6000, 60), pos("Compound V3", 4000, 40)},
		"Aave V3", "Compound V3", decimal.NewFromInt(1000),
	)
	if !got.Valid {
		t.Errorf("ValidateRebalance = %+v, want valid", got)
	}
	if got.AdjustedAmount != nil {
		t.Errorf("AdjustedAmount = %v, want nil", got.AdjustedAmount)
	}
}

func TestValidateRebalanceAdjustsAmount(t *testing.T) {
	e := NewEnforcer(DefaultLimits(), nil)
	got := e.ValidateRebalance(
		[]PortfolioPosition{pos("Aave V3", 6000, 60), pos("Compound V3", 3000, 30), pos("Yearn Finance", 1000, 10)},
		"Aave V3", "Compound V3", decimal.NewFromInt(4000),
	)
	if got.Valid {
		t.Fatal("Valid = true, want false")
	}
	if got.AdjustedAmount == nil {
		t.Fatal("AdjustedAmount = nil, want remediation amount")
	}
	// cap is 5000 of 10000 total, destination already holds 3000
	if !got.AdjustedAmount.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("AdjustedAmount = %s, want 2000", got.AdjustedAmount)
	}

	again := e.ValidateRebalance(
		[]PortfolioPosition{pos("Aave V3", 6000, 60), pos("Compound V3", 3000, 30), pos("Yearn Finance", 1000, 10)},
		"Aave V3", "Compound V3", *got.AdjustedAmount,
	)
	if !again.Valid {
		t.Errorf("rebalance with adjusted amount = %+v, want valid", again)
	}
}

func TestValidateRebalanceAtCap(t *testing.T) {
	e := NewEnforcer(DefaultLimits(), nil)
	got := e.ValidateRebalance(
		[]PortfolioPosition{pos("Aave V3", 5000, 50), pos("Compound V3", 5000, 50)},
		"Aave V3", "Compound V3", decimal.NewFromInt(2000),
	)
	if got.Valid || got.AdjustedAmount == nil {
		t.Fatalf("ValidateRebalance = %+v, want invalid with adjusted amount", got)
	}
	if !got.AdjustedAmount.IsZero() {
		t.Errorf("AdjustedAmount = %s, want 0", got.AdjustedAmount)
	}
}

func TestValidateRebalanceReportsCapAndScore(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxTotalRiskScore = 10
	e := NewEnforcer(lim, nil)
	got := e.ValidateRebalance(
		[]PortfolioPosition{pos("Aave V3", 5000, 50), pos("Unknown", 5000, 50)},
		"Aave V3", "Unknown", decimal.NewFromInt(3000),
	)
	if got.Valid {
		t.Fatal("Valid = true, want false")
	}
	if len(got.Violations) != 2 {
		t.Fatalf("Violations = %q, want cap and score violations", got.Violations)
	}
	if !strings.Contains(got.Violations[0], "max single protocol limit") {
		t.Errorf("Violations[0] = %q", got.Violations[0])
	}
	if !strings.Contains(got.Violations[1], "max risk score") {
		t.Errorf("Violations[1] = %q", got.Violations[1])
	}
	if got.AdjustedAmount == nil || !got.AdjustedAmount.IsZero() {
		t.Errorf("AdjustedAmount = %v, want 0", got.AdjustedAmount)
	}
}

func TestValidateRebalanceNewDestination(t *testing.T) {
	e := NewEnforcer(DefaultLimits(), nil)
	got := e.ValidateRebalance(
		[]PortfolioPosition{pos("Aave V3", 5000, 50), pos("Compound V3", 5000, 50)},
		"Aave V3", "Yearn Finance", decimal.NewFromInt(1000),
	)
	if !got.Valid {
		t.Errorf("ValidateRebalance to new venue = %+v, want valid", got)
	}
}

func TestValidateRebalanceUnknownSource(t *testing.T) {
	e := NewEnforcer(DefaultLimits(), nil)
	got := e.ValidateRebalance(
		[]PortfolioPosition{pos("Aave V3", 5000, 50), pos("Compound V3", 5000, 50)},
		"Frax Finance", "Compound V3", decimal.NewFromInt(100),
	)
	if got.Valid {
		t.Errorf("ValidateRebalance from unknown venue = %+v, want invalid", got)
	}
}

func TestUpdateLimits(t *testing.T) {
	e := NewEnforcer(DefaultLimits(), nil)
	cap := 70.0
	got := e.UpdateLimits(LimitsPatch{MaxSingleVenuePercent: &cap})
	if got.MaxSingleVenuePercent != 70 || got.MaxTotalRiskScore != 60 {
		t.Errorf("UpdateLimits = %+v", got)
	}

	v := e.ValidateNewPosition([]PortfolioPosition{pos("Aave V3", 3000, 30)}, pos("Compound V3", 6000, 60))
	if !v.Valid {
		t.Errorf("after raising cap, ValidateNewPosition = %+v, want valid", v)
	}
}
