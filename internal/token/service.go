package token

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/innovatewithkishlay/justlputhings/internal/model"
	"github.com/innovatewithkishlay/justlputhings/internal/repository"
)

// Sentinel errors returned by the service. Every refresh failure
// collapses to ErrUnauthorized at the boundary so callers cannot probe
// which check failed; the distinction is logged for operators.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRoleMismatch = errors.New("role mismatch")
)

// UserStore is the slice of the user repository the service needs.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash, role string) (uint64, error)
	CreateWithGoogle(ctx context.Context, email, googleID, role string) (uint64, error)
	LinkGoogle(ctx context.Context, userID uint64, googleID string) error
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (model.User, error)
}

// TokenStore is the slice of the refresh-token repository the service
// needs.
type TokenStore interface {
	Store(ctx context.Context, familyID string, userID uint64, tokenHash string, exp time.Time) error
	Get(ctx context.Context, familyID string) (model.RefreshToken, error)
	Revoke(ctx context.Context, familyID string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// Pair is one issued credential set: a short-lived access token plus a
// single-use refresh token. RefreshRaw is "<familyID>.<secret>"; the
// family id is also carried separately for cookie scoping.
type Pair struct {
	UserID     uint64
	Role       string
	Access     AccessToken
	RefreshRaw string
	RefreshExp time.Time
	FamilyID   string
}

// Service implements issuance, rotation, reuse detection and logout.
type Service struct {
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
	users      UserStore
	tokens     TokenStore
	denylist   Denylist
	log        zerolog.Logger
}

func NewService(secret string, accessTTL, refreshTTL time.Duration, bcryptCost int,
	users UserStore, tokens TokenStore, denylist Denylist, log zerolog.Logger) *Service {
	return &Service{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		bcryptCost: bcryptCost,
		users:      users,
		tokens:     tokens,
		denylist:   denylist,
		log:        log.With().Str("component", "token").Logger(),
	}
}

// Issue mints a fresh pair for a user: an access JWT and a brand-new
// refresh family record.
func (s *Service) Issue(ctx context.Context, userID uint64, role string) (Pair, error) {
	access, err := NewAccessToken(s.secret, userID, role, s.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	secret, err := NewRefreshSecret()
	if err != nil {
		return Pair{}, err
	}
	familyID := uuid.NewString()
	exp := time.Now().UTC().Add(s.refreshTTL)
	if err := s.tokens.Store(ctx, familyID, userID, HashRefreshSecret(secret), exp); err != nil {
		return Pair{}, err
	}
	return Pair{
		UserID:     userID,
		Role:       role,
		Access:     access,
		RefreshRaw: familyID + "." + secret,
		RefreshExp: exp,
		FamilyID:   familyID,
	}, nil
}

// Refresh rotates a refresh token. The presented family id is revoked
// and a new pair minted; presenting an already-revoked id is treated as
// theft and revokes every live family for that user before failing.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (Pair, error) {
	familyID, secret, ok := splitRefresh(rawRefresh)
	if !ok {
		return Pair{}, ErrUnauthorized
	}
	rec, err := s.tokens.Get(ctx, familyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Info().Str("family_id", familyID).Msg("refresh with unknown family id")
			return Pair{}, ErrUnauthorized
		}
		return Pair{}, err
	}
	if rec.RevokedAt != nil {
		// Reuse of a revoked anchor proves a race or theft; treat it as
		// theft and terminate every session for the user.
		s.containTheft(ctx, rec.UserID, familyID)
		return Pair{}, ErrUnauthorized
	}
	if time.Now().UTC().After(rec.ExpiresAt) {
		s.log.Info().Str("family_id", familyID).Msg("refresh with expired token")
		return Pair{}, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(HashRefreshSecret(secret)), []byte(rec.TokenHash)) != 1 {
		s.log.Warn().Str("family_id", familyID).Msg("refresh secret hash mismatch")
		return Pair{}, ErrUnauthorized
	}
	// Conditional revoke: under two concurrent refreshes exactly one
	// lands, the other observes ErrAlreadyRevoked and takes the theft
	// path.
	if err := s.tokens.Revoke(ctx, familyID); err != nil {
		if errors.Is(err, repository.ErrAlreadyRevoked) {
			s.containTheft(ctx, rec.UserID, familyID)
			return Pair{}, ErrUnauthorized
		}
		return Pair{}, err
	}
	u, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Pair{}, ErrUnauthorized
		}
		return Pair{}, err
	}
	if u.IsBlocked {
		return Pair{}, ErrForbidden
	}
	return s.Issue(ctx, u.ID, u.Role)
}

func (s *Service) containTheft(ctx context.Context, userID uint64, familyID string) {
	s.log.Warn().Uint64("user_id", userID).Str("family_id", familyID).
		Msg("refresh token reuse detected, revoking all sessions")
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		s.log.Error().Err(err).Uint64("user_id", userID).Msg("revoke-all after reuse failed")
	}
}

// Logout denylists the access token's jti for its remaining validity and
// revokes the named refresh family. An expired access token needs no
// denylist entry but the family is still revoked. Logout is idempotent:
// an already-revoked family is not an error.
func (s *Service) Logout(ctx context.Context, rawAccess, familyID string) error {
	claims, expired, err := ParseAccessTokenAllowExpired(s.secret, rawAccess)
	if err != nil {
		return ErrUnauthorized
	}
	if !expired {
		if remaining := time.Until(claims.Exp); remaining > 0 {
			_ = s.denylist.Add(ctx, claims.JTI, remaining) // best effort, logged inside
		}
	}
	if familyID != "" {
		if err := s.tokens.Revoke(ctx, familyID); err != nil &&
			!errors.Is(err, repository.ErrAlreadyRevoked) &&
			!errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}
	return nil
}

// Register creates a password-credentialed user and issues its first
// pair.
func (s *Service) Register(ctx context.Context, email, password string) (Pair, error) {
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return Pair{}, err
	}
	uid, err := s.users.Create(ctx, email, hash, model.RoleUser)
	if err != nil {
		return Pair{}, err
	}
	return s.Issue(ctx, uid, model.RoleUser)
}

// Login verifies credentials and issues a pair. expectedRole, when
// non-empty, asserts the stored role: a mismatch is a 403-class error,
// not a credential failure. Bad credentials stay generic.
func (s *Service) Login(ctx context.Context, email, password, expectedRole string) (Pair, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Pair{}, ErrUnauthorized
		}
		return Pair{}, err
	}
	if !u.PasswordHash.Valid || !VerifyPassword(u.PasswordHash.String, password) {
		return Pair{}, ErrUnauthorized
	}
	if u.IsBlocked {
		return Pair{}, ErrForbidden
	}
	if expectedRole != "" && expectedRole != u.Role {
		return Pair{}, ErrRoleMismatch
	}
	return s.Issue(ctx, u.ID, u.Role)
}

// LoginWithGoogle handles external-identity sign-in: find by google id,
// else link by email to an existing password account, else create a new
// user. Only the issuance is here; the OAuth exchange happens upstream.
func (s *Service) LoginWithGoogle(ctx context.Context, googleID, email string) (Pair, error) {
	u, err := s.users.GetByGoogleID(ctx, googleID)
	switch {
	case err == nil:
		// existing Google-linked account
	case errors.Is(err, repository.ErrNotFound):
		u, err = s.users.GetByEmail(ctx, email)
		switch {
		case err == nil:
			// account linking: same email, first Google sign-in
			if err := s.users.LinkGoogle(ctx, u.ID, googleID); err != nil {
				return Pair{}, err
			}
		case errors.Is(err, repository.ErrNotFound):
			uid, cerr := s.users.CreateWithGoogle(ctx, email, googleID, model.RoleUser)
			if cerr != nil {
				return Pair{}, cerr
			}
			return s.Issue(ctx, uid, model.RoleUser)
		default:
			return Pair{}, err
		}
	default:
		return Pair{}, err
	}
	if u.IsBlocked {
		return Pair{}, ErrForbidden
	}
	return s.Issue(ctx, u.ID, u.Role)
}

// Revoked reports whether an access token's jti has been denylisted.
func (s *Service) Revoked(ctx context.Context, jti string) bool {
	return s.denylist.Revoked(ctx, jti)
}

// AccessTTL exposes the configured access-token lifetime (cookie
// max-age derivation).
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL exposes the configured refresh-token lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// ParseAccess verifies a bearer token against the service secret.
func (s *Service) ParseAccess(raw string) (AccessClaims, error) {
	return ParseAccessToken(s.secret, raw)
}

func splitRefresh(raw string) (familyID, secret string, ok bool) {
	raw = strings.TrimSpace(raw)
	i := strings.IndexByte(raw, '.')
	if i <= 0 || i == len(raw)-1 {
		return "", "", false
	}
	return raw[:i], raw[i+1:], true
}
