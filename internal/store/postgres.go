package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/web3-frozen/yield-guardian/internal/agent"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- Cycles ---

// RecordCycle stores a finished cycle and its alerts in one transaction.
func (s *Store) RecordCycle(ctx context.Context, c *agent.Cycle) error {
	var (
		decision, execution *string
		current, target     float64
		err                 error
	)
	if c.Decision != nil {
		current, target = c.Decision.CurrentYield, c.Decision.TargetYield
		if decision, err = jsonText(c.Decision); err != nil {
			return fmt.Errorf("encode decision: %w", err)
		}
	}
	if c.Execution != nil {
		if execution, err = jsonText(c.Execution); err != nil {
			return fmt.Errorf("encode execution: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO cycles (id, started_at, finished_at, outcome, risk_score, risk_level, current_yield, target_yield, decision, execution, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.StartedAt, c.FinishedAt, string(c.Outcome), c.Risk.TotalScore, string(c.Risk.Level),
		current, target, decision, execution, c.Error)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	for _, a := range c.Alerts {
		_, err := tx.Exec(ctx, `
			INSERT INTO alerts (id, cycle_id, raised_at, severity, kind, message, recommendation)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ID, c.ID, a.Timestamp, string(a.Severity), string(a.Kind), a.Message, a.Recommendation)
		if err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// CycleSummary is a stored cycle without its decision and execution detail.
type CycleSummary struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Outcome      string    `json:"outcome"`
	RiskScore    int       `json:"risk_score"`
	RiskLevel    string    `json:"risk_level"`
	CurrentYield float64   `json:"current_yield"`
	TargetYield  float64   `json:"target_yield"`
	Error        string    `json:"error,omitempty"`
	Alerts       int       `json:"alerts"`
}

// RecentCycles returns up to limit cycles, newest first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]CycleSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id::text, c.started_at, c.finished_at, c.outcome, c.risk_score, c.risk_level,
		       c.current_yield, c.target_yield, c.error,
		       (SELECT COUNT(*) FROM alerts a WHERE a.cycle_id = c.id)
		FROM cycles c
		ORDER BY c.finished_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cycles := []CycleSummary{}
	for rows.Next() {
		var c CycleSummary
		if err := rows.Scan(&c.ID, &c.StartedAt, &c.FinishedAt, &c.Outcome, &c.RiskScore, &c.RiskLevel,
			&c.CurrentYield, &c.TargetYield, &c.Error, &c.Alerts); err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// CleanupOldCycles deletes cycles (and their alerts) older than maxAge.
func (s *Store) CleanupOldCycles(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM cycles WHERE finished_at < $1`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func jsonText(v any) (*string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := string(b)
	return &out, nil
}
