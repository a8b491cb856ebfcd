// Package portfolio holds the venue, position and opportunity types shared by
// the aggregator, decision engine and execution layer.
package portfolio

import (
	"math/big"
	"time"

	"github.com/web3-frozen/yield-guardian/internal/risk"
)

// VenueKind classifies what a venue does with deposited capital.
type VenueKind string

const (
	KindLending VenueKind = "lending"
	KindStaking VenueKind = "staking"
	KindVault   VenueKind = "vault"
	KindAMM     VenueKind = "amm"
	KindOther   VenueKind = "other"
)

// Venue describes a yield source. Created once at startup.
type Venue struct {
	Name    string    `json:"name" yaml:"name"`
	Address string    `json:"address" yaml:"address"`
	Kind    VenueKind `json:"kind" yaml:"kind"`
	ChainID int64     `json:"chain_id" yaml:"chain_id"`
}

// Position is capital currently deployed in a venue. Amount is in the
// asset's smallest unit, CurrentYield a 0-1 fraction.
type Position struct {
	Venue        Venue         `json:"venue"`
	Asset        string        `json:"asset"`
	Amount       *big.Int      `json:"amount"`
	Value        float64       `json:"value_usd"`
	CurrentYield float64       `json:"current_yield"`
	RiskScore    risk.Fraction `json:"risk_score"`
}

// Opportunity is a place capital could be moved to, produced per
// monitoring pass.
type Opportunity struct {
	Venue        Venue         `json:"venue"`
	Asset        string        `json:"asset"`
	CurrentYield float64       `json:"current_yield"`
	RiskScore    risk.Fraction `json:"risk_score"`
	Liquidity    float64       `json:"liquidity"`
	Timestamp    time.Time     `json:"timestamp"`
}

// TotalValue sums the USD value of positions.
func TotalValue(positions []Position) float64 {
	var total float64
	for _, p := range positions {
		total += p.Value
	}
	return total
}

// ToPortfolioPositions converts live positions into the percentage view used
// by the risk model. Percentages are shares of total USD value.
func ToPortfolioPositions(positions []Position) []risk.PortfolioPosition {
	total := TotalValue(positions)
	out := make([]risk.PortfolioPosition, 0, len(positions))
	for _, p := range positions {
		var pct float64
		if total > 0 {
			pct = p.Value / total * 100
		}
		out = append(out, risk.PortfolioPosition{
			Venue:      p.Venue.Name,
			Asset:      p.Asset,
			Amount:     decimalFromBig(p.Amount),
			Percentage: pct,
		})
	}
	return out
}
