package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// AlertRetention is how long alerts stay in the in-memory log.
const AlertRetention = 7 * 24 * time.Hour

// Scheduler triggers cycles on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	ctx    context.Context
	logger *slog.Logger
}

// NewScheduler registers the cycle job and the daily alert pruning job.
// spec accepts standard cron expressions and descriptors such as
// "@every 30s".
func NewScheduler(ctx context.Context, r *Runner, spec string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger}
	s := &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		runner: r,
		ctx:    ctx,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("register cycle schedule %q: %w", spec, err)
	}
	if _, err := s.cron.AddFunc("@daily", s.prune); err != nil {
		return nil, fmt.Errorf("register alert pruning: %w", err)
	}
	return s, nil
}

// HistoryPruner deletes persisted cycles older than maxAge.
type HistoryPruner interface {
	CleanupOldCycles(ctx context.Context, maxAge time.Duration) (int64, error)
}

// PruneHistory registers a daily job removing persisted cycles older than
// maxAge.
func (s *Scheduler) PruneHistory(p HistoryPruner, maxAge time.Duration) error {
	_, err := s.cron.AddFunc("@daily", func() {
		n, err := p.CleanupOldCycles(s.ctx, maxAge)
		if err != nil {
			s.logger.Error("prune cycle history failed", "error", err)
			return
		}
		s.logger.Info("pruned cycle history", "removed", n)
	})
	if err != nil {
		return fmt.Errorf("register history pruning: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop stops scheduling and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick() {
	if _, err := s.runner.RunCycle(s.ctx); errors.Is(err, ErrCycleInFlight) {
		s.logger.Warn("skipping scheduled cycle", "error", err)
	}
}

func (s *Scheduler) prune() {
	removed := s.runner.deps.Alerts.ClearOldAlerts(AlertRetention)
	s.logger.Info("pruned alerts", "removed", removed)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug(msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error(msg, append(kv, "error", err)...)
}
