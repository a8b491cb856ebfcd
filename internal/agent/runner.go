// Package agent runs the guard cycle: read positions, gather opportunities,
// decide, execute and raise alerts.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/web3-frozen/yield-guardian/internal/alert"
	"github.com/web3-frozen/yield-guardian/internal/decision"
	"github.com/web3-frozen/yield-guardian/internal/execution"
	"github.com/web3-frozen/yield-guardian/internal/metrics"
	"github.com/web3-frozen/yield-guardian/internal/portfolio"
	"github.com/web3-frozen/yield-guardian/internal/risk"
)

// ErrCycleInFlight is returned when a cycle is requested while one is
// already running.
var ErrCycleInFlight = errors.New("cycle already in flight")

// State of the runner.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Outcome of a cycle.
type Outcome string

const (
	OutcomeHold     Outcome = "hold"
	OutcomeExecuted Outcome = "executed"
	OutcomeRejected Outcome = "rejected"
	OutcomeError    Outcome = "error"
)

// PositionSource reports the portfolio's current holdings.
type PositionSource interface {
	CurrentPositions(ctx context.Context) ([]portfolio.Position, error)
}

// OpportunityFinder lists candidate venues for the given assets.
type OpportunityFinder interface {
	Opportunities(ctx context.Context, assets []string) ([]portfolio.Opportunity, error)
}

// Executor applies a decision.
type Executor interface {
	Apply(ctx context.Context, d *decision.Decision) *execution.Result
}

// Recorder persists finished cycles. Failures are logged only.
type Recorder interface {
	RecordCycle(ctx context.Context, c *Cycle) error
}

// Cycle is the record of one run.
type Cycle struct {
	ID         string              `json:"id"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Outcome    Outcome             `json:"outcome"`
	Metrics    portfolio.Metrics   `json:"metrics"`
	Risk       risk.PortfolioScore `json:"risk"`
	Decision   *decision.Decision  `json:"decision,omitempty"`
	Execution  *execution.Result   `json:"execution,omitempty"`
	Alerts     []alert.Alert       `json:"alerts"`
	Error      string              `json:"error,omitempty"`
}

// Status is a point-in-time view of the runner.
type Status struct {
	State     State    `json:"state"`
	Cycles    uint64   `json:"cycles"`
	Assets    []string `json:"assets"`
	LastCycle *Cycle   `json:"last_cycle,omitempty"`
}

// Deps bundles the collaborators of a Runner.
type Deps struct {
	Positions PositionSource
	Finder    OpportunityFinder
	Model     *risk.Model
	Engine    *decision.Engine
	Executor  Executor
	Alerts    *alert.System
	Recorder  Recorder
}

// Runner executes guard cycles one at a time.
type Runner struct {
	deps    Deps
	assets  []string
	maxRisk risk.Fraction
	logger  *slog.Logger
	now     func() time.Time

	state  atomic.Int32
	cycles atomic.Uint64

	mu        sync.RWMutex
	last      *Cycle
	venueRisk map[string]risk.Score
}

const (
	idle int32 = iota
	running
)

// NewRunner creates a Runner watching assets. Recorder may be nil.
func NewRunner(deps Deps, assets []string, maxRisk risk.Fraction, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		deps:      deps,
		assets:    assets,
		maxRisk:   maxRisk,
		logger:    logger,
		now:       time.Now,
		venueRisk: make(map[string]risk.Score),
	}
}

// RunCycle runs one full cycle. It returns ErrCycleInFlight without side
// effects if another cycle is running. Any other error is also recorded on
// the returned Cycle.
func (r *Runner) RunCycle(ctx context.Context) (*Cycle, error) {
	if !r.state.CompareAndSwap(idle, running) {
		metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		return nil, ErrCycleInFlight
	}
	defer r.state.Store(idle)

	c := &Cycle{ID: uuid.NewString(), StartedAt: r.now(), Alerts: []alert.Alert{}}
	err := r.run(ctx, c)
	if err != nil {
		c.Outcome = OutcomeError
		c.Error = err.Error()
		r.logger.Error("cycle failed", "cycle", c.ID, "error", err)
	}
	c.FinishedAt = r.now()

	metrics.CyclesTotal.WithLabelValues(string(c.Outcome)).Inc()
	metrics.CycleDuration.Observe(c.FinishedAt.Sub(c.StartedAt).Seconds())

	r.cycles.Add(1)
	r.mu.Lock()
	r.last = c
	r.mu.Unlock()

	if r.deps.Recorder != nil {
		if rerr := r.deps.Recorder.RecordCycle(ctx, c); rerr != nil {
			r.logger.Error("record cycle failed", "cycle", c.ID, "error", rerr)
		}
	}
	return c, err
}

func (r *Runner) run(ctx context.Context, c *Cycle) error {
	positions, err := r.deps.Positions.CurrentPositions(ctx)
	if err != nil {
		return fmt.Errorf("read positions: %w", err)
	}
	c.Metrics = portfolio.ComputeMetrics(positions, r.maxRisk)
	metrics.PortfolioValueUSD.Set(portfolio.TotalValue(positions))

	opps, err := r.deps.Finder.Opportunities(ctx, r.assets)
	if err != nil {
		return fmt.Errorf("gather opportunities: %w", err)
	}

	c.Decision = r.deps.Engine.MakeDecision(opps, positions, c.Metrics)
	c.Outcome = OutcomeHold
	if c.Decision.ShouldRebalance {
		c.Execution = r.deps.Executor.Apply(ctx, c.Decision)
		if c.Execution.Success {
			c.Outcome = OutcomeExecuted
		} else {
			c.Outcome = OutcomeRejected
		}
	}

	held := portfolio.ToPortfolioPositions(positions)
	c.Risk = r.deps.Model.ScorePortfolio(held)
	metrics.PortfolioRiskScore.Set(float64(c.Risk.TotalScore))

	c.Alerts = append(c.Alerts, r.deps.Alerts.CheckPortfolio(c.Risk.TotalScore, held)...)
	c.Alerts = append(c.Alerts, r.venueRiskAlerts(opps)...)
	r.deps.Alerts.Dispatch(ctx, c.Alerts)

	r.logger.Info("cycle complete",
		"cycle", c.ID,
		"outcome", c.Outcome,
		"risk_score", c.Risk.TotalScore,
		"alerts", len(c.Alerts),
	)
	return nil
}

// venueRiskAlerts compares each venue's risk reading with the previous
// cycle's and remembers the new reading.
func (r *Runner) venueRiskAlerts(opps []portfolio.Opportunity) []alert.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []alert.Alert
	for _, o := range opps {
		cur := o.RiskScore.Score()
		if prev, ok := r.venueRisk[o.Venue.Name]; ok {
			out = append(out, r.deps.Alerts.CheckVenueRisk(o.Venue.Name, prev, cur)...)
		}
		r.venueRisk[o.Venue.Name] = cur
	}
	return out
}

// Status reports the runner state and the last finished cycle.
func (r *Runner) Status() Status {
	st := StateIdle
	if r.state.Load() == running {
		st = StateRunning
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		State:     st,
		Cycles:    r.cycles.Load(),
		Assets:    r.assets,
		LastCycle: r.last,
	}
}
