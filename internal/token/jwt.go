// Package token issues, rotates and revokes paired access/refresh
// credentials and detects refresh-token reuse.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessToken is a signed JWT access token together with the metadata
// the service needs afterwards: its expiry and its unique id (jti),
// which is what the logout denylist keys on.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // UTC expiration time
	JTI   string    // per-issuance unique id
}

// AccessClaims is the validated claim set of a parsed access token.
type AccessClaims struct {
	UserID uint64
	Role   string
	JTI    string
	Exp    time.Time
}

// NewAccessToken builds and signs an HS256 JWT. Claims: subject (sub) is
// the user id, role, jti for individual revocation, exp and iat. Every
// issuance gets a fresh jti so one session's logout cannot affect
// another's still-valid token.
func NewAccessToken(secret string, userID uint64, role string, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	jti := uuid.NewString()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(userID, 10),
		"role": role,
		"jti":  jti,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp, JTI: jti}, nil
}

// ParseAccessToken verifies signature and validity window and extracts
// the claim set. Expired tokens return jwt.ErrTokenExpired wrapped in
// the parse error; callers that only need the claims of an expired but
// authentically signed token (logout) use ParseAccessTokenAllowExpired.
func ParseAccessToken(secret, raw string) (AccessClaims, error) {
	tok, err := jwt.Parse(raw, hmacKeyFunc(secret))
	if err != nil {
		return AccessClaims{}, err
	}
	return claimsFrom(tok)
}

// ParseAccessTokenAllowExpired verifies the signature but tolerates an
// elapsed validity window. An expired token needs no denylist entry, but
// its family must still be revocable at logout.
func ParseAccessTokenAllowExpired(secret, raw string) (AccessClaims, bool, error) {
	tok, err := jwt.Parse(raw, hmacKeyFunc(secret))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			// Re-parse without window validation to recover the claims.
			tok, err = jwt.Parse(raw, hmacKeyFunc(secret), jwt.WithoutClaimsValidation())
			if err != nil {
				return AccessClaims{}, false, err
			}
			c, cerr := claimsFrom(tok)
			return c, true, cerr
		}
		return AccessClaims{}, false, err
	}
	c, cerr := claimsFrom(tok)
	return c, false, cerr
}

func hmacKeyFunc(secret string) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(secret), nil
	}
}

func claimsFrom(tok *jwt.Token) (AccessClaims, error) {
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return AccessClaims{}, errors.New("invalid claims")
	}
	var out AccessClaims
	switch sub := claims["sub"].(type) {
	case string:
		id, err := strconv.ParseUint(sub, 10, 64)
		if err != nil {
			return AccessClaims{}, errors.New("invalid sub claim")
		}
		out.UserID = id
	case float64:
		out.UserID = uint64(sub)
	default:
		return AccessClaims{}, errors.New("missing sub claim")
	}
	out.Role, _ = claims["role"].(string)
	out.JTI, _ = claims["jti"].(string)
	if exp, ok := claims["exp"].(float64); ok {
		out.Exp = time.Unix(int64(exp), 0).UTC()
	}
	return out, nil
}

// NewRefreshSecret returns a cryptographically random refresh secret
// (48 bytes, hex encoded). The raw value goes back to the client; only
// its SHA-256 hash is stored, so a database leak does not by itself
// grant replay capability.
func NewRefreshSecret() (string, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashRefreshSecret returns the SHA-256 hex digest of a raw refresh
// secret.
func HashRefreshSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
