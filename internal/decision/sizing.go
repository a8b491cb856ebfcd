package decision

import (
	"math/big"

	"github.com/web3-frozen/yield-guardian/internal/portfolio"
)

// Sizer decides how much of a position to move into an opportunity. A nil
// or non-positive amount leaves the position alone.
type Sizer interface {
	Size(p portfolio.Position, into portfolio.Opportunity) *big.Int
}

// MoveAll moves the entire position.
type MoveAll struct{}

func (MoveAll) Size(p portfolio.Position, _ portfolio.Opportunity) *big.Int {
	if p.Amount == nil {
		return nil
	}
	return new(big.Int).Set(p.Amount)
}

// Fraction moves a fixed share of each position, rounded down. Shares
// outside (0, 1] move nothing.
type Fraction struct {
	Share float64
}

func (f Fraction) Size(p portfolio.Position, _ portfolio.Opportunity) *big.Int {
	if p.Amount == nil || f.Share <= 0 || f.Share > 1 {
		return nil
	}
	amt := new(big.Float).SetInt(p.Amount)
	amt.Mul(amt, big.NewFloat(f.Share))
	out, _ := amt.Int(nil)
	return out
}
