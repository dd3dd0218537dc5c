package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/innovatewithkishlay/justlputhings/internal/model"
)

// TokenRepo persists refresh-token family records. Each row id is a UUID
// acting as the rotation anchor; only a SHA-256 hash of the raw secret is
// stored.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Store inserts a new family record.
func (r *TokenRepo) Store(ctx context.Context, familyID string, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at) VALUES (?,?,?,?)",
		familyID, userID, tokenHash, exp)
	return err
}

// Get loads a family record by id. ErrNotFound when no row exists.
func (r *TokenRepo) Get(ctx context.Context, familyID string) (model.RefreshToken, error) {
	var (
		t         model.RefreshToken
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, expires_at, revoked_at, created_at FROM refresh_tokens WHERE id=? LIMIT 1",
		familyID).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &revokedAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return model.RefreshToken{}, ErrNotFound
	}
	if err != nil {
		return model.RefreshToken{}, err
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return t, nil
}

// Revoke marks a family record revoked if and only if it is still live.
// ErrAlreadyRevoked signals that a concurrent refresh won the race; the
// conditional update is what guarantees exactly one of two concurrent
// rotations succeeds.
func (r *TokenRepo) Revoke(ctx context.Context, familyID string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE id=? AND revoked_at IS NULL",
		familyID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyRevoked
	}
	return nil
}

// RevokeAllForUser revokes every live family for a user. Used for theft
// containment, logout-everywhere, account block and account deletion.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return err
}

// DeleteExpired removes rows past their expiry. Passive cleanup; callers
// run it opportunistically.
func (r *TokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at < NOW()")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
