package repo

import (
	"context"
	"errors"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"miniapp-server/internal/domain"
)

// VerificationRepositoryPG implements domain.VerificationRepository. Rows
// are only written after the verifier confirms a payment, so a row's
// presence is itself the verified fact.
type VerificationRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewVerificationRepository creates a verification repository backed by
// PostgreSQL.
func NewVerificationRepository(pool *pgxpool.Pool) *VerificationRepositoryPG {
	return &VerificationRepositoryPG{pool: pool}
}

// Save records a server-confirmed payment. A receipt is valid for exactly
// one video id; the primary key on video_id enforces single consumption.
func (r *VerificationRepositoryPG) Save(ctx context.Context, v *domain.Verification) error {
	if !v.Verified {
		return domain.ErrNotVerified
	}
	query := `
INSERT INTO payment_verifications (video_id, tx_hash, amount_wei, payer, verified_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (video_id) DO NOTHING;
`
	_, err := r.pool.Exec(ctx, query, v.VideoID, v.TxHash, v.AmountWei.String(), v.Payer)
	return err
}

// GetByVideoID returns the persisted verification for a video, or
// domain.ErrNotFound when the video has never been paid for.
func (r *VerificationRepositoryPG) GetByVideoID(ctx context.Context, videoID string) (*domain.Verification, error) {
	query := `
SELECT video_id, tx_hash, amount_wei, payer, verified_at
FROM payment_verifications
WHERE video_id = $1;
`
	row := r.pool.QueryRow(ctx, query, videoID)
	var v domain.Verification
	var amount string
	if err := row.Scan(&v.VideoID, &v.TxHash, &amount, &v.Payer, &v.VerifiedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	wei, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, errors.New("repo: malformed amount_wei in storage")
	}
	v.AmountWei = wei
	v.Verified = true
	return &v, nil
}

var _ domain.VerificationRepository = (*VerificationRepositoryPG)(nil)
