package agent

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/web3-frozen/yield-guardian/internal/alert"
	"github.com/web3-frozen/yield-guardian/internal/chain"
	"github.com/web3-frozen/yield-guardian/internal/decision"
	"github.com/web3-frozen/yield-guardian/internal/execution"
	"github.com/web3-frozen/yield-guardian/internal/portfolio"
	"github.com/web3-frozen/yield-guardian/internal/risk"
)

type fakeFinder struct {
	mu    sync.Mutex
	opps  []portfolio.Opportunity
	err   error
	enter chan struct{}
	block chan struct{}
}

func (f *fakeFinder) Opportunities(context.Context, []string) ([]portfolio.Opportunity, error) {
	if f.enter != nil {
		f.enter <- struct{}{}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opps, f.err
}

func (f *fakeFinder) set(opps []portfolio.Opportunity) {
	f.mu.Lock()
	f.opps = opps
	f.mu.Unlock()
}

type fakeExecutor struct {
	calls   int
	success bool
}

func (f *fakeExecutor) Apply(_ context.Context, d *decision.Decision) *execution.Result {
	f.calls++
	return &execution.Result{Success: f.success, TxIDs: []string{"0x1"}, GasUsed: big.NewInt(1)}
}

type fakeRecorder struct{ cycles []*Cycle }

func (f *fakeRecorder) RecordCycle(_ context.Context, c *Cycle) error {
	f.cycles = append(f.cycles, c)
	return errors.New("database unavailable")
}

type failingPositions struct{}

func (failingPositions) CurrentPositions(context.Context) ([]portfolio.Position, error) {
	return nil, errors.New("rpc down")
}

func holding(venue string, yield float64) portfolio.Position {
	return portfolio.Position{
		Venue:        portfolio.Venue{Name: venue},
		Asset:        "USDC",
		Amount:       big.NewInt(1000),
		Value:        1000,
		CurrentYield: yield,
		RiskScore:    0.12,
	}
}

func offer(venue string, yield float64, r risk.Fraction) portfolio.Opportunity {
	return portfolio.Opportunity{Venue: portfolio.Venue{Name: venue}, Asset: "USDC", CurrentYield: yield, RiskScore: r}
}

func newTestRunner(pos PositionSource, f *fakeFinder, ex *fakeExecutor, rec Recorder) (*Runner, *alert.System) {
	alerts := alert.NewSystem(alert.DefaultThresholds(), nil, nil)
	r := NewRunner(Deps{
		Positions: pos,
		Finder:    f,
		Model:     risk.NewModel(nil),
		Engine:    decision.NewEngine(decision.DefaultConfig(), nil, nil),
		Executor:  ex,
		Alerts:    alerts,
		Recorder:  rec,
	}, []string{"USDC"}, 0.8, nil)
	return r, alerts
}

func TestRunCycleExecutes(t *testing.T) {
	pos := chain.NewStaticPositions([]portfolio.Position{holding("Compound V3", 0.038)})
	f := &fakeFinder{opps: []portfolio.Opportunity{offer("Yearn Finance", 0.06, 0.2)}}
	ex := &fakeExecutor{success: true}
	rec := &fakeRecorder{}
	r, _ := newTestRunner(pos, f, ex, rec)

	c, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if c.Outcome != OutcomeExecuted || ex.calls != 1 {
		t.Errorf("outcome = %s, executor calls = %d", c.Outcome, ex.calls)
	}
	if len(c.Decision.Actions) != 2 {
		t.Errorf("actions = %+v", c.Decision.Actions)
	}

	var concentrated bool
	for _, a := range c.Alerts {
		if a.Kind == alert.KindConcentration {
			concentrated = true
		}
	}
	if !concentrated {
		t.Errorf("single-venue portfolio should raise a concentration alert, got %+v", c.Alerts)
	}

	if len(rec.cycles) != 1 || rec.cycles[0].ID != c.ID {
		t.Error("finished cycle should be recorded even if the recorder fails")
	}
	st := r.Status()
	if st.State != StateIdle || st.Cycles != 1 || st.LastCycle.ID != c.ID {
		t.Errorf("Status = %+v", st)
	}
}

func TestRunCycleHoldAndRejected(t *testing.T) {
	pos := chain.NewStaticPositions([]portfolio.Position{holding("Yearn Finance", 0.06)})
	f := &fakeFinder{opps: []portfolio.Opportunity{offer("Yearn Finance", 0.06, 0.2)}}
	ex := &fakeExecutor{}
	r, _ := newTestRunner(pos, f, ex, nil)

	c, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.Outcome != OutcomeHold || ex.calls != 0 || c.Execution != nil {
		t.Errorf("outcome = %s, executor calls = %d", c.Outcome, ex.calls)
	}

	f.set([]portfolio.Opportunity{offer("Frax Finance", 0.09, 0.3)})
	c, err = r.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.Outcome != OutcomeRejected {
		t.Errorf("outcome = %s, want rejected when execution fails", c.Outcome)
	}
}

func TestRunCycleError(t *testing.T) {
	r, _ := newTestRunner(failingPositions{}, &fakeFinder{}, &fakeExecutor{}, nil)
	c, err := r.RunCycle(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if c.Outcome != OutcomeError || c.Error == "" {
		t.Errorf("cycle = %+v", c)
	}
	if r.Status().LastCycle != c {
		t.Error("failed cycle should still be the last cycle")
	}
}

func TestRunCycleInFlight(t *testing.T) {
	pos := chain.NewStaticPositions([]portfolio.Position{holding("Yearn Finance", 0.06)})
	f := &fakeFinder{
		opps:  []portfolio.Opportunity{offer("Yearn Finance", 0.06, 0.2)},
		enter: make(chan struct{}),
		block: make(chan struct{}),
	}
	r, _ := newTestRunner(pos, f, &fakeExecutor{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.RunCycle(context.Background())
		done <- err
	}()
	<-f.enter

	if st := r.Status(); st.State != StateRunning {
		t.Errorf("State = %s, want running", st.State)
	}
	if _, err := r.RunCycle(context.Background()); !errors.Is(err, ErrCycleInFlight) {
		t.Errorf("overlapping RunCycle err = %v, want ErrCycleInFlight", err)
	}

	close(f.block)
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if st := r.Status(); st.State != StateIdle || st.Cycles != 1 {
		t.Errorf("Status = %+v", st)
	}
}

func TestRunCycleVenueRiskChange(t *testing.T) {
	pos := chain.NewStaticPositions([]portfolio.Position{
		holding("Yearn Finance", 0.06),
		holding("Aave V3", 0.06),
	})
	f := &fakeFinder{opps: []portfolio.Opportunity{offer("Yearn Finance", 0.06, 0.20)}}
	r, _ := newTestRunner(pos, f, &fakeExecutor{}, nil)

	if c, _ := r.RunCycle(context.Background()); hasKind(c.Alerts, alert.KindVenueRisk) {
		t.Error("first reading must not raise a venue risk alert")
	}

	f.set([]portfolio.Opportunity{offer("Yearn Finance", 0.06, 0.35)})
	c, _ := r.RunCycle(context.Background())
	if !hasKind(c.Alerts, alert.KindVenueRisk) {
		t.Errorf("alerts = %+v, want venue risk change", c.Alerts)
	}
}

func hasKind(alerts []alert.Alert, k alert.Kind) bool {
	for _, a := range alerts {
		if a.Kind == k {
			return true
		}
	}
	return false
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	r, _ := newTestRunner(failingPositions{}, &fakeFinder{}, &fakeExecutor{}, nil)
	if _, err := NewScheduler(context.Background(), r, "not a schedule", nil); err == nil {
		t.Error("expected error for invalid schedule")
	}
	s, err := NewScheduler(context.Background(), r, "@every 30s", nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.Start()
	s.Stop()
}
