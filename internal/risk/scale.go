package risk

// Score is a risk value on the 0-100 scale used by venue and portfolio
// scoring. Higher is riskier.
type Score float64

// Fraction is a risk value on the 0-1 scale carried by positions and
// yield opportunities. Higher is riskier.
type Fraction float64

// Fraction converts a 0-100 score to the 0-1 scale.
func (s Score) Fraction() Fraction { return Fraction(float64(s) / 100) }

// Score converts a 0-1 fraction to the 0-100 scale.
func (f Fraction) Score() Score { return Score(float64(f) * 100) }

// Level classifies a portfolio score.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// LevelFor maps a total portfolio score to its level: below 30 is LOW,
// below 50 MEDIUM, anything else HIGH.
func LevelFor(total int) Level {
	switch {
	case total < 30:
		return LevelLow
	case total < 50:
		return LevelMedium
	default:
		return LevelHigh
	}
}
