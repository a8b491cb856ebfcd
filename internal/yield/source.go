// Package yield aggregates APY quotes from the registered venues, caches the
// ranked result and answers whether moving capital between venues pays for
// its gas.
package yield

import (
	"context"
	"errors"
	"time"

	"github.com/web3-frozen/yield-guardian/internal/portfolio"
	"github.com/web3-frozen/yield-guardian/internal/risk"
)

var (
	// ErrVenueNotFound is returned when a named venue has no quote for the asset.
	ErrVenueNotFound = errors.New("venue not found")
	// ErrUpstream wraps a failing quote source.
	ErrUpstream = errors.New("quote source failed")
	// ErrNoQuotes is returned when no source produced a quote.
	ErrNoQuotes = errors.New("no quotes available")
	// ErrInvalidAmount is returned for amounts that are not positive decimals.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Venue is the static descriptor of a yield source.
type Venue = portfolio.Venue

// Source is implemented by every venue the aggregator can query. To add a
// venue, implement this interface and pass it to NewAggregator.
type Source interface {
	// Name is the venue name reported in quotes (e.g. "Aave V3").
	Name() string

	// FetchYield returns the current quote for asset.
	FetchYield(ctx context.Context, asset string) (*Quote, error)

	// FetchTVL returns the venue TVL in USD as an integer string.
	FetchTVL(ctx context.Context, asset string) (string, error)

	// FetchRiskScore returns the venue's own risk rating on the 0-100 scale.
	FetchRiskScore(ctx context.Context) (risk.Score, error)
}

// Quote is one venue's yield for an asset. APY is a percentage (4.2 means
// 4.2%).
type Quote struct {
	Venue     string     `json:"venue"`
	Asset     string     `json:"asset"`
	APY       float64    `json:"apy"`
	TVL       string     `json:"tvl"`
	RiskScore risk.Score `json:"risk_score"`
	Timestamp time.Time  `json:"timestamp"`
}

// SourceResult is the per-source outcome of a best-effort collection.
// Exactly one of Quote and Err is set.
type SourceResult struct {
	Source string `json:"source"`
	Quote  *Quote `json:"quote,omitempty"`
	Err    error  `json:"-"`
}
