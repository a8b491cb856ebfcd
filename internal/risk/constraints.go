package risk

import (
	"errors"
	"fmt"
)

// ErrRiskExceeded is returned when a proposed risk level breaks the
// configured maximum exposure.
var ErrRiskExceeded = errors.New("risk exceeds maximum exposure")

// CheckConstraints rejects a proposed portfolio risk above max.
func CheckConstraints(proposed, max Fraction) error {
	if proposed > max {
		return fmt.Errorf("%w: proposed %.2f%% > max %.2f%%",
			ErrRiskExceeded, float64(proposed)*100, float64(max)*100)
	}
	return nil
}

// RiskAdjustedYield discounts a 0-1 yield by its 0-1 risk: y / (1 + r).
func RiskAdjustedYield(yield float64, r Fraction) float64 {
	return yield / (1 + float64(r))
}
