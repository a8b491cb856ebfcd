package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/web3-frozen/yield-guardian/internal/portfolio"
)

// StaticPositions serves a configured set of holdings as the current
// portfolio.
type StaticPositions struct {
	mu        sync.RWMutex
	positions []portfolio.Position
}

// NewStaticPositions creates a position source holding positions.
func NewStaticPositions(positions []portfolio.Position) *StaticPositions {
	return &StaticPositions{positions: clonePositions(positions)}
}

// CurrentPositions returns a copy of the holdings.
func (s *StaticPositions) CurrentPositions(_ context.Context) ([]portfolio.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePositions(s.positions), nil
}

// Replace swaps the holdings wholesale.
func (s *StaticPositions) Replace(positions []portfolio.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = clonePositions(positions)
}

func clonePositions(in []portfolio.Position) []portfolio.Position {
	out := make([]portfolio.Position, len(in))
	for i, p := range in {
		out[i] = p
		if p.Amount != nil {
			out[i].Amount = new(big.Int).Set(p.Amount)
		}
	}
	return out
}
