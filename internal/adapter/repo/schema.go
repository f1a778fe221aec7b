package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the tables this service needs. Run at startup; the
// statements are idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS sessions (
	id         UUID PRIMARY KEY,
	state      TEXT NOT NULL,
	prompt     TEXT NOT NULL DEFAULT '',
	video_id   TEXT NOT NULL DEFAULT '',
	fail_stage TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
		`
CREATE TABLE IF NOT EXISTS payment_verifications (
	video_id    TEXT PRIMARY KEY,
	tx_hash     TEXT NOT NULL,
	amount_wei  TEXT NOT NULL,
	payer       TEXT NOT NULL,
	verified_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("repo: ensure schema: %w", err)
		}
	}
	return nil
}
