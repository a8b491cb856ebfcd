package store

import "context"

const migrationSQL = `
CREATE TABLE IF NOT EXISTS cycles (
    id UUID PRIMARY KEY,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    outcome TEXT NOT NULL,
    risk_score INT NOT NULL DEFAULT 0,
    risk_level TEXT NOT NULL DEFAULT '',
    current_yield DOUBLE PRECISION NOT NULL DEFAULT 0,
    target_yield DOUBLE PRECISION NOT NULL DEFAULT 0,
    decision JSONB,
    execution JSONB,
    error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS cycles_finished_at_idx ON cycles (finished_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
    id UUID PRIMARY KEY,
    cycle_id UUID REFERENCES cycles(id) ON DELETE CASCADE,
    raised_at TIMESTAMPTZ NOT NULL,
    severity TEXT NOT NULL,
    kind TEXT NOT NULL,
    message TEXT NOT NULL,
    recommendation TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS alerts_raised_at_idx ON alerts (raised_at DESC);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migrationSQL)
	return err
}
