package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"miniapp-server/internal/domain"
)

// SessionRepositoryPG implements domain.SessionRepository.
type SessionRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a session repository backed by PostgreSQL.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepositoryPG {
	return &SessionRepositoryPG{pool: pool}
}

// Create inserts a new session record.
func (r *SessionRepositoryPG) Create(ctx context.Context, session *domain.Session) error {
	query := `
INSERT INTO sessions (id, state, prompt, video_id, fail_stage, last_error)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.State,
		session.Prompt,
		session.VideoID,
		session.FailStage,
		session.LastError,
	)
	return err
}

// Update persists the current workflow state of a session.
func (r *SessionRepositoryPG) Update(ctx context.Context, session *domain.Session) error {
	query := `
UPDATE sessions
SET state = $2,
    prompt = $3,
    video_id = $4,
    fail_stage = $5,
    last_error = $6,
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.State,
		session.Prompt,
		session.VideoID,
		session.FailStage,
		session.LastError,
	)
	return err
}

// GetByID fetches a session by its identifier.
func (r *SessionRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	query := `
SELECT id, state, prompt, video_id, fail_stage, last_error, created_at, updated_at
FROM sessions
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, id)
	var session domain.Session
	if err := row.Scan(
		&session.ID,
		&session.State,
		&session.Prompt,
		&session.VideoID,
		&session.FailStage,
		&session.LastError,
		&session.CreatedAt,
		&session.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

var _ domain.SessionRepository = (*SessionRepositoryPG)(nil)
