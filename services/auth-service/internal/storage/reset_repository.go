package storage

import (
	"context"
	"errors"
	"time"

	"github.com/itaybe6/barber-English-sub002/libs/db"
	"github.com/jackc/pgx/v5"
)

// ErrTokenUnknown is returned when no reset token matches the hash.
var ErrTokenUnknown = errors.New("reset token not found")

type ResetToken struct {
	ID         string
	UserID     string
	BusinessID string
	ExpiresAt  time.Time
	UsedAt     *time.Time
}

type ResetRepository struct {
	pool *db.Pool
}

func NewResetRepository(pool *db.Pool) *ResetRepository {
	return &ResetRepository{pool: pool}
}

// Issue stores a new token hash and retires the user's earlier unused tokens.
func (r *ResetRepository) Issue(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE password_reset_tokens
			SET used_at = now()
			WHERE user_id = $1 AND used_at IS NULL
		`, userID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO password_reset_tokens (user_id, token_hash, expires_at)
			VALUES ($1, $2, $3)
		`, userID, tokenHash, expiresAt)
		return err
	})
}

// Redeem locks the token row and hands it to check. When check returns a
// password hash, the user's password is replaced and the token marked used in
// the same transaction. Any error rolls everything back.
func (r *ResetRepository) Redeem(ctx context.Context, tokenHash string, check func(ResetToken) (string, error)) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var tok ResetToken
		err := tx.QueryRow(ctx, `
			SELECT t.id, t.user_id, u.business_id, t.expires_at, t.used_at
			FROM password_reset_tokens t
			JOIN users u ON u.id = t.user_id
			WHERE t.token_hash = $1
			FOR UPDATE OF t
		`, tokenHash).Scan(&tok.ID, &tok.UserID, &tok.BusinessID, &tok.ExpiresAt, &tok.UsedAt)
		if db.IsNotFound(err) {
			return ErrTokenUnknown
		}
		if err != nil {
			return err
		}

		passwordHash, err := check(tok)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1
		`, tok.UserID, passwordHash)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, `
			UPDATE password_reset_tokens SET used_at = now() WHERE id = $1
		`, tok.ID)
		return err
	})
}
