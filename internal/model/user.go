package model

import (
	"database/sql"
	"time"
)

// Role values stored in users.role.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User represents an application user record as stored in the `users`
// table. A user holds at least one credential path: a bcrypt password
// hash, an external Google identity, or both after account linking.
// Login accepts either. The json tags are omitted because these structs
// are used internally by the repository layer; handlers define separate
// response types.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique email address.
//	PasswordHash – bcrypt hashed password (null for Google-only accounts).
//	GoogleID     – external identity reference (null unless linked).
//	Role         – USER or ADMIN.
//	IsBlocked    – whether the account is blocked from all access.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64         // users.id
	Email        string         // users.email
	PasswordHash sql.NullString // users.password_hash (nullable)
	GoogleID     sql.NullString // users.google_id (nullable)
	Role         string         // users.role
	IsBlocked    bool           // users.is_blocked
	CreatedAt    time.Time      // users.created_at
	UpdatedAt    time.Time      // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table. The row id
// is the token family id: the rotation anchor a session presents on
// refresh. Each successful refresh revokes the presented row and mints a
// new one, so a given id is valid for exactly one exchange. The plain
// secret is never stored; only its SHA-256 hash.
//
// Fields:
//
//	ID        – family id (UUID string, primary key).
//	UserID    – owner of the token.
//	TokenHash – SHA-256 hex digest of the raw secret.
//	ExpiresAt – expiration timestamp of the token.
//	RevokedAt – when the token was revoked (null if still live).
//	CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        string     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
