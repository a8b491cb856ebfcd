// Package decision turns live opportunities, current positions and risk
// metrics into a rebalance decision and the actions that carry it out.
package decision

import (
	"fmt"
	"log/slog"
	"math/big"
	"sort"

	"github.com/web3-frozen/yield-guardian/internal/metrics"
	"github.com/web3-frozen/yield-guardian/internal/portfolio"
	"github.com/web3-frozen/yield-guardian/internal/risk"
)

// ActionType is the kind of on-chain step an Action performs.
type ActionType string

const (
	ActionDeposit  ActionType = "deposit"
	ActionWithdraw ActionType = "withdraw"
	// ActionTransfer is accepted everywhere but has no effect when applied.
	ActionTransfer ActionType = "transfer"
)

// Action is one step of a rebalance. Amount is in the asset's smallest unit.
type Action struct {
	Type   ActionType `json:"type"`
	Venue  string     `json:"venue"`
	Asset  string     `json:"asset"`
	Amount *big.Int   `json:"amount"`
}

// RiskImpact compares portfolio risk before and after the decision.
type RiskImpact struct {
	Before risk.Fraction `json:"before"`
	After  risk.Fraction `json:"after"`
	Change float64       `json:"change"`
}

// Decision is the immutable output of one optimization cycle. Yields are
// 0-1 fractions.
type Decision struct {
	ShouldRebalance     bool       `json:"should_rebalance"`
	Reason              string     `json:"reason"`
	ExpectedImprovement float64    `json:"expected_improvement"`
	CurrentYield        float64    `json:"current_yield"`
	TargetYield         float64    `json:"target_yield"`
	Actions             []Action   `json:"actions"`
	RiskImpact          RiskImpact `json:"risk_impact"`
	GasEstimate         *big.Int   `json:"gas_estimate"`
}

// Config holds the decision thresholds and the fixed gas model.
type Config struct {
	MaxRiskExposure     risk.Fraction
	MinYieldImprovement float64
	TopN                int
	GasUnitsPerAction   uint64
	GasPriceWei         *big.Int
}

// DefaultConfig returns 0.8 max risk, 0.5% minimum improvement, the top five
// opportunities and 100k gas per action at 20 gwei.
func DefaultConfig() Config {
	return Config{
		MaxRiskExposure:     0.8,
		MinYieldImprovement: 0.005,
		TopN:                5,
		GasUnitsPerAction:   100_000,
		GasPriceWei:         big.NewInt(20_000_000_000),
	}
}

// Engine makes rebalance decisions. It holds no mutable state.
type Engine struct {
	cfg    Config
	sizer  Sizer
	logger *slog.Logger
}

// NewEngine creates an Engine. A nil sizer moves whole positions.
func NewEngine(cfg Config, sizer Sizer, logger *slog.Logger) *Engine {
	if sizer == nil {
		sizer = MoveAll{}
	}
	if cfg.GasPriceWei == nil {
		cfg.GasPriceWei = new(big.Int)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, sizer: sizer, logger: logger}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

type ranked struct {
	opp      portfolio.Opportunity
	adjusted float64
}

// MakeDecision evaluates opportunities against the current positions.
func (e *Engine) MakeDecision(opps []portfolio.Opportunity, positions []portfolio.Position, m portfolio.Metrics) *Decision {
	current := portfolioYield(positions)
	top := e.bestOpportunities(opps)
	target := meanYield(top)

	improvement := target - current
	should := improvement >= e.cfg.MinYieldImprovement

	var actions []Action
	if should {
		actions = e.actions(positions, top)
	}
	if actions == nil {
		actions = []Action{}
	}

	d := &Decision{
		ShouldRebalance:     should,
		Reason:              e.reason(should, improvement),
		ExpectedImprovement: improvement,
		CurrentYield:        current,
		TargetYield:         target,
		Actions:             actions,
		RiskImpact:          e.riskImpact(top, m),
		GasEstimate:         e.gasEstimate(len(actions)),
	}

	outcome := "hold"
	if should {
		outcome = "rebalance"
	}
	metrics.DecisionsTotal.WithLabelValues(outcome).Inc()
	e.logger.Debug("decision",
		"outcome", outcome,
		"current_yield", current,
		"target_yield", target,
		"improvement", improvement,
		"actions", len(actions),
	)
	return d
}

// portfolioYield is the value-weighted mean of position yields.
func portfolioYield(positions []portfolio.Position) float64 {
	var total, weighted float64
	for _, p := range positions {
		total += p.Value
		weighted += p.Value * p.CurrentYield
	}
	if total <= 0 {
		return 0
	}
	return weighted / total
}

// bestOpportunities keeps opportunities within the risk cap, ranked by
// risk-adjusted yield, limited to TopN.
func (e *Engine) bestOpportunities(opps []portfolio.Opportunity) []portfolio.Opportunity {
	rs := make([]ranked, 0, len(opps))
	for _, o := range opps {
		if o.RiskScore > e.cfg.MaxRiskExposure {
			continue
		}
		rs = append(rs, ranked{opp: o, adjusted: risk.RiskAdjustedYield(o.CurrentYield, o.RiskScore)})
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].adjusted > rs[j].adjusted })

	if e.cfg.TopN > 0 && len(rs) > e.cfg.TopN {
		rs = rs[:e.cfg.TopN]
	}
	out := make([]portfolio.Opportunity, len(rs))
	for i, r := range rs {
		out[i] = r.opp
	}
	return out
}

func meanYield(opps []portfolio.Opportunity) float64 {
	if len(opps) == 0 {
		return 0
	}
	var sum float64
	for _, o := range opps {
		sum += o.CurrentYield
	}
	return sum / float64(len(opps))
}

func (e *Engine) riskImpact(top []portfolio.Opportunity, m portfolio.Metrics) RiskImpact {
	before := m.CurrentRisk
	after := before
	if len(top) > 0 {
		var sum float64
		for _, o := range top {
			sum += float64(o.RiskScore)
		}
		after = risk.Fraction(sum / float64(len(top)))
	}
	if after > e.cfg.MaxRiskExposure {
		after = e.cfg.MaxRiskExposure
	}
	return RiskImpact{Before: before, After: after, Change: float64(after - before)}
}

// actions pairs a withdraw and a deposit into the best opportunity for
// every position yielding less than it.
func (e *Engine) actions(positions []portfolio.Position, top []portfolio.Opportunity) []Action {
	if len(top) == 0 {
		return nil
	}
	best := top[0]

	var out []Action
	for _, p := range positions {
		if p.CurrentYield >= best.CurrentYield {
			continue
		}
		amount := e.sizer.Size(p, best)
		if amount == nil || amount.Sign() <= 0 {
			continue
		}
		out = append(out,
			Action{Type: ActionWithdraw, Venue: p.Venue.Name, Asset: p.Asset, Amount: new(big.Int).Set(amount)},
			Action{Type: ActionDeposit, Venue: best.Venue.Name, Asset: best.Asset, Amount: new(big.Int).Set(amount)},
		)
	}
	return out
}

func (e *Engine) gasEstimate(actions int) *big.Int {
	gas := new(big.Int).SetUint64(e.cfg.GasUnitsPerAction)
	gas.Mul(gas, big.NewInt(int64(actions)))
	return gas.Mul(gas, e.cfg.GasPriceWei)
}

func (e *Engine) reason(should bool, improvement float64) string {
	if should {
		return fmt.Sprintf("Yield improvement of %.2f%% exceeds threshold", improvement*100)
	}
	return fmt.Sprintf("Yield improvement of %.2f%% below threshold of %.2f%%",
		improvement*100, e.cfg.MinYieldImprovement*100)
}
