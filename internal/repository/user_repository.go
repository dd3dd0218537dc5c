package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/innovatewithkishlay/justlputhings/internal/model"
)

// UserRepo reads and writes the `users` table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,password_hash,google_id,role,is_blocked,created_at,updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.GoogleID, &u.Role,
		&u.IsBlocked, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// Create inserts a password-credentialed user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, passwordHash, role string) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role) VALUES (?,?,?)",
		email, passwordHash, role)
	if err != nil {
		// MySQL duplicate-key error number
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// CreateWithGoogle inserts a user whose only credential is an external
// Google identity.
func (r *UserRepo) CreateWithGoogle(ctx context.Context, email, googleID, role string) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, google_id, role) VALUES (?,?,?)",
		email, googleID, role)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// LinkGoogle attaches an external identity to an existing account.
func (r *UserRepo) LinkGoogle(ctx context.Context, userID uint64, googleID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET google_id=? WHERE id=?", googleID, userID)
	return err
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetByGoogleID fetches a user by its external identity reference.
func (r *UserRepo) GetByGoogleID(ctx context.Context, googleID string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE google_id=? LIMIT 1", googleID))
}

// SetBlocked toggles the block flag. Revoking the user's refresh
// families on block is the caller's responsibility.
func (r *UserRepo) SetBlocked(ctx context.Context, id uint64, blocked bool) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_blocked=? WHERE id=?", blocked, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a user row. Refresh tokens cascade at the schema level,
// but callers revoke them explicitly first so in-flight sessions die even
// if the delete later fails.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
