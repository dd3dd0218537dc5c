// Package handler contains the HTTP handlers for the auth, access and
// admin surfaces.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/innovatewithkishlay/justlputhings/internal/middleware"
	"github.com/innovatewithkishlay/justlputhings/internal/repository"
	"github.com/innovatewithkishlay/justlputhings/internal/token"
)

// AuthHandler bundles the token service behind the auth endpoints.
type AuthHandler struct {
	Tokens *token.Service
}

func NewAuthHandler(t *token.Service) *AuthHandler {
	return &AuthHandler{Tokens: t}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"` // optional role assertion; mismatch is 403
}
type googleReq struct {
	GoogleID string `json:"google_id"`
	Email    string `json:"email"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type authResp struct {
	UserID   uint64    `json:"user_id"`
	Role     string    `json:"role"`
	Access   tokenPart `json:"access"`
	Refresh  tokenPart `json:"refresh"`
	FamilyID string    `json:"refresh_family_id"`
}

// ----- cookie plumbing -----

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
	familyCookie  = "refresh_family"
	authPath      = "/v1/auth"
)

// setPairCookies writes the three session cookies. The refresh pair is
// path-scoped to the auth endpoints so it never rides along on material
// requests.
func (h *AuthHandler) setPairCookies(c echo.Context, p token.Pair) {
	c.SetCookie(&http.Cookie{
		Name: accessCookie, Value: p.Access.Token, Path: "/",
		MaxAge: int(h.Tokens.AccessTTL().Seconds()), HttpOnly: true, SameSite: http.SameSiteStrictMode,
	})
	c.SetCookie(&http.Cookie{
		Name: refreshCookie, Value: p.RefreshRaw, Path: authPath,
		MaxAge: int(h.Tokens.RefreshTTL().Seconds()), HttpOnly: true, SameSite: http.SameSiteStrictMode,
	})
	c.SetCookie(&http.Cookie{
		Name: familyCookie, Value: p.FamilyID, Path: authPath,
		MaxAge: int(h.Tokens.RefreshTTL().Seconds()), HttpOnly: true, SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearPairCookies(c echo.Context) {
	for _, ck := range []struct{ name, path string }{
		{accessCookie, "/"}, {refreshCookie, authPath}, {familyCookie, authPath},
	} {
		c.SetCookie(&http.Cookie{
			Name: ck.name, Value: "", Path: ck.path,
			MaxAge: -1, HttpOnly: true, SameSite: http.SameSiteStrictMode,
		})
	}
}

func pairResponse(p token.Pair) authResp {
	return authResp{
		UserID:   p.UserID,
		Role:     p.Role,
		Access:   tokenPart{Token: p.Access.Token, Expires: p.Access.Exp},
		Refresh:  tokenPart{Token: p.RefreshRaw, Expires: p.RefreshExp},
		FamilyID: p.FamilyID,
	}
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

// ----- endpoints -----

// Register creates a user and returns its first token pair.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	pair, err := h.Tokens.Register(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}
	h.setPairCookies(c, pair)
	return c.JSON(http.StatusCreated, pairResponse(pair))
}

// Login verifies credentials and returns a fresh pair. A role assertion
// in the body ("role") that does not match the stored role is rejected
// with 403 rather than 401.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	pair, err := h.Tokens.Login(ctx, req.Email, req.Password, strings.ToUpper(strings.TrimSpace(req.Role)))
	if err != nil {
		return authError(c, err)
	}
	h.setPairCookies(c, pair)
	return c.JSON(http.StatusOK, pairResponse(pair))
}

// GoogleLogin issues a pair for an already-verified external identity.
// The OAuth code exchange happens upstream; this endpoint only handles
// the session issuance it triggers.
func (h *AuthHandler) GoogleLogin(c echo.Context) error {
	var req googleReq
	if err := c.Bind(&req); err != nil || req.GoogleID == "" || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "google_id/email required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	pair, err := h.Tokens.LoginWithGoogle(ctx, req.GoogleID, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return authError(c, err)
	}
	h.setPairCookies(c, pair)
	return c.JSON(http.StatusOK, pairResponse(pair))
}

// Refresh rotates the presented refresh token. The token is read from
// the refresh_token cookie first, then the JSON body. The client must
// atomically swap its stored pair: the presented token is dead after
// this call whether or not the response arrives.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := ""
	if ck, err := c.Cookie(refreshCookie); err == nil {
		raw = ck.Value
	}
	if raw == "" {
		var req refreshReq
		_ = c.Bind(&req)
		raw = strings.TrimSpace(req.RefreshToken)
	}
	if raw == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	pair, err := h.Tokens.Refresh(ctx, raw)
	if err != nil {
		// The presented pair is dead whatever the reason; clear it so the
		// client does not loop on a rotation that can never succeed.
		if errors.Is(err, token.ErrUnauthorized) || errors.Is(err, token.ErrForbidden) {
			h.clearPairCookies(c)
		}
		return authError(c, err)
	}
	h.setPairCookies(c, pair)
	return c.JSON(http.StatusOK, pairResponse(pair))
}

// Logout denylists the current access token for its remaining validity
// and revokes the refresh family named by the refresh_family cookie (or
// body field). Cookies are cleared either way.
func (h *AuthHandler) Logout(c echo.Context) error {
	rawAccess := ""
	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		rawAccess = strings.TrimPrefix(auth, "Bearer ")
	} else if ck, err := c.Cookie(accessCookie); err == nil {
		rawAccess = ck.Value
	}
	familyID := ""
	if ck, err := c.Cookie(familyCookie); err == nil {
		familyID = ck.Value
	}
	if familyID == "" {
		var req struct {
			FamilyID string `json:"refresh_family_id"`
		}
		_ = c.Bind(&req)
		familyID = strings.TrimSpace(req.FamilyID)
	}
	if rawAccess == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Tokens.Logout(ctx, rawAccess, familyID); err != nil {
		return authError(c, err)
	}
	h.clearPairCookies(c)
	return c.NoContent(http.StatusNoContent)
}

// Me is a simple protected endpoint echoing the token claims.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": middleware.UserID(c),
		"role":    c.Get(middleware.CtxRole),
	})
}

// authError maps token-service sentinels to HTTP. Everything
// credential-shaped stays a generic 401 so callers cannot probe which
// check failed.
func authError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, token.ErrRoleMismatch), errors.Is(err, token.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, token.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
