package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema holds the review queue, the published audit table and the tip audit trail.
const Schema = `
CREATE TABLE IF NOT EXISTS review_tips (
	id          TEXT PRIMARY KEY,
	text        TEXT NOT NULL,
	city        TEXT,
	country     TEXT,
	confidence  DOUBLE PRECISION,
	moderation  JSONB,
	reason      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_review_tips_created ON review_tips(created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS approved_tips (
	id          TEXT PRIMARY KEY,
	text        TEXT NOT NULL,
	city        TEXT,
	country     TEXT,
	confidence  DOUBLE PRECISION,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS tip_events (
	id           BIGSERIAL PRIMARY KEY,
	tip_id       TEXT NOT NULL,
	action       TEXT NOT NULL,
	payload      JSONB NOT NULL DEFAULT '{}'::jsonb,
	occurred_at  TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_tip_events_tip ON tip_events(tip_id);
CREATE INDEX IF NOT EXISTS idx_tip_events_occurred ON tip_events(occurred_at);
`

// vectorSchema is only applied when tips are indexed in Postgres.
const vectorSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS tip_vectors (
	id          TEXT NOT NULL,
	namespace   TEXT NOT NULL,
	embedding   vector(%d) NOT NULL,
	city        TEXT NOT NULL,
	country     TEXT NOT NULL,
	text        TEXT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (namespace, id)
);
`

type MigrateOptions struct {
	WithVectors     bool
	VectorDimension int
}

func Migrate(ctx context.Context, pool *pgxpool.Pool, opts MigrateOptions) error {
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	if !opts.WithVectors {
		return nil
	}
	if opts.VectorDimension <= 0 {
		return fmt.Errorf("vector dimension must be positive")
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(vectorSchema, opts.VectorDimension)); err != nil {
		return fmt.Errorf("apply vector schema: %w", err)
	}

	return nil
}
