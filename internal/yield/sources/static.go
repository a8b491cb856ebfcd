// Package sources contains the yield.Source implementations for each
// supported venue.
package sources

import (
	"context"
	"time"

	"github.com/web3-frozen/yield-guardian/internal/risk"
	"github.com/web3-frozen/yield-guardian/internal/yield"
)

// Static is a venue with a fixed rate table. Assets missing from the table
// quote an APY of zero.
type Static struct {
	name string
	apys map[string]float64
	tvl  string
	risk risk.Score
	now  func() time.Time
}

// NewStatic creates a fixed-table venue.
func NewStatic(name string, apys map[string]float64, tvl string, score risk.Score) *Static {
	return &Static{name: name, apys: apys, tvl: tvl, risk: score, now: time.Now}
}

// NewAave returns the Aave V3 lending market.
func NewAave() *Static {
	return NewStatic("Aave V3", map[string]float64{
		"USDC": 4.2,
		"USDT": 4.1,
		"DAI":  3.9,
		"WETH": 2.8,
	}, "1200000000", 15)
}

// NewCompound returns the Compound V3 lending market.
func NewCompound() *Static {
	return NewStatic("Compound V3", map[string]float64{
		"USDC": 3.8,
		"USDT": 3.7,
		"DAI":  3.5,
		"WETH": 2.5,
	}, "850000000", 18)
}

// NewFrax returns the Frax Finance staking vaults (sFRAX, sfrxETH).
func NewFrax() *Static {
	return NewStatic("Frax Finance", map[string]float64{
		"FRAX":   5.1,
		"frxETH": 3.8,
	}, "450000000", 22)
}

// NewYearn returns the Yearn Finance vaults.
func NewYearn() *Static {
	return NewStatic("Yearn Finance", map[string]float64{
		"USDC": 4.5,
		"USDT": 4.4,
		"DAI":  4.3,
		"WETH": 3.2,
	}, "650000000", 20)
}

// Builtin returns the built-in static venue with the given name.
func Builtin(name string) (*Static, bool) {
	switch name {
	case "Aave V3":
		return NewAave(), true
	case "Compound V3":
		return NewCompound(), true
	case "Frax Finance":
		return NewFrax(), true
	case "Yearn Finance":
		return NewYearn(), true
	}
	return nil, false
}

func (s *Static) Name() string { return s.name }

func (s *Static) FetchYield(ctx context.Context, asset string) (*yield.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &yield.Quote{
		Venue:     s.name,
		Asset:     asset,
		APY:       s.apys[asset],
		TVL:       s.tvl,
		RiskScore: s.risk,
		Timestamp: s.now().UTC(),
	}, nil
}

func (s *Static) FetchTVL(_ context.Context, _ string) (string, error) {
	return s.tvl, nil
}

func (s *Static) FetchRiskScore(_ context.Context) (risk.Score, error) {
	return s.risk, nil
}
