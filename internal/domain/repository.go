package domain

import "context"

// SessionRepository persists workflow sessions so state survives a
// controller restart.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	Update(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
}

// VerificationRepository records server-confirmed payments. Lookup is keyed
// by video id; download and share recheck against it rather than trusting
// in-memory state.
type VerificationRepository interface {
	Save(ctx context.Context, v *Verification) error
	GetByVideoID(ctx context.Context, videoID string) (*Verification, error)
}
