package config

import (
	"fmt"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/web3-frozen/yield-guardian/internal/portfolio"
	"github.com/web3-frozen/yield-guardian/internal/risk"
)

// Quote source kinds a venue can be backed by.
const (
	SourceStatic    = "static"
	SourceDefiLlama = "defillama"
)

// VenueEntry describes a venue and where its quotes come from.
type VenueEntry struct {
	portfolio.Venue `yaml:",inline"`
	Source          string     `yaml:"source"`
	Project         string     `yaml:"project"`
	Chain           string     `yaml:"chain"`
	RiskScore       risk.Score `yaml:"risk_score"`
}

// PositionEntry is a configured holding.
type PositionEntry struct {
	Venue        string        `yaml:"venue"`
	Asset        string        `yaml:"asset"`
	Amount       string        `yaml:"amount"`
	ValueUSD     float64       `yaml:"value_usd"`
	CurrentYield float64       `yaml:"current_yield"`
	RiskScore    risk.Fraction `yaml:"risk_score"`
}

// Registry is the venue and holdings file.
type Registry struct {
	Venues    []VenueEntry    `yaml:"venues"`
	Positions []PositionEntry `yaml:"positions"`
}

// DefaultRegistry lists the four built-in static venues and no holdings.
func DefaultRegistry() *Registry {
	return &Registry{Venues: []VenueEntry{
		{Venue: portfolio.Venue{Name: "Aave V3", Kind: portfolio.KindLending, ChainID: 1}, Source: SourceStatic},
		{Venue: portfolio.Venue{Name: "Compound V3", Kind: portfolio.KindLending, ChainID: 1}, Source: SourceStatic},
		{Venue: portfolio.Venue{Name: "Frax Finance", Kind: portfolio.KindStaking, ChainID: 1}, Source: SourceStatic},
		{Venue: portfolio.Venue{Name: "Yearn Finance", Kind: portfolio.KindVault, ChainID: 1}, Source: SourceStatic},
	}}
}

// LoadRegistry reads a YAML registry. An empty path yields DefaultRegistry.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read venues file: %w", err)
	}
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse venues file: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Registry) validate() error {
	if len(r.Venues) == 0 {
		return fmt.Errorf("venues file lists no venues")
	}
	seen := make(map[string]bool, len(r.Venues))
	for i, v := range r.Venues {
		if v.Name == "" {
			return fmt.Errorf("venue %d: missing name", i)
		}
		if seen[v.Name] {
			return fmt.Errorf("venue %q listed twice", v.Name)
		}
		seen[v.Name] = true
		switch v.Source {
		case SourceStatic:
		case SourceDefiLlama:
			if v.Project == "" {
				return fmt.Errorf("venue %q: defillama source needs a project", v.Name)
			}
		default:
			return fmt.Errorf("venue %q: unknown source %q", v.Name, v.Source)
		}
	}
	for i, p := range r.Positions {
		if !seen[p.Venue] {
			return fmt.Errorf("position %d: unknown venue %q", i, p.Venue)
		}
	}
	return nil
}

// PortfolioVenues returns the venue descriptors.
func (r *Registry) PortfolioVenues() []portfolio.Venue {
	out := make([]portfolio.Venue, len(r.Venues))
	for i, v := range r.Venues {
		out[i] = v.Venue
	}
	return out
}

// PortfolioPositions converts holdings into positions.
func (r *Registry) PortfolioPositions() ([]portfolio.Position, error) {
	venues := make(map[string]portfolio.Venue, len(r.Venues))
	for _, v := range r.Venues {
		venues[v.Name] = v.Venue
	}
	out := make([]portfolio.Position, 0, len(r.Positions))
	for i, p := range r.Positions {
		amount, ok := new(big.Int).SetString(p.Amount, 10)
		if !ok || amount.Sign() < 0 {
			return nil, fmt.Errorf("position %d: invalid amount %q", i, p.Amount)
		}
		out = append(out, portfolio.Position{
			Venue:        venues[p.Venue],
			Asset:        p.Asset,
			Amount:       amount,
			Value:        p.ValueUSD,
			CurrentYield: p.CurrentYield,
			RiskScore:    p.RiskScore,
		})
	}
	return out, nil
}
