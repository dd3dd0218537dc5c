package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/innovatewithkishlay/justlputhings/internal/limiter"
	"github.com/innovatewithkishlay/justlputhings/internal/middleware"
	"github.com/innovatewithkishlay/justlputhings/internal/repository"
	"github.com/innovatewithkishlay/justlputhings/internal/storage"
)

// AccessGate is the gate surface the handler calls.
type AccessGate interface {
	RequestAccess(ctx context.Context, slug string, userID uint64, ip, userAgent string) (string, error)
}

// AccessHandler serves GET /v1/materials/:slug/access.
type AccessHandler struct {
	Gate AccessGate
}

func NewAccessHandler(g AccessGate) *AccessHandler {
	return &AccessHandler{Gate: g}
}

// RequestAccess returns a short-lived signed download URL for an ACTIVE
// material. The response never contains the storage key, and an
// inactive slug is indistinguishable from an absent one.
func (h *AccessHandler) RequestAccess(c echo.Context) error {
	slug := c.Param("slug")
	if slug == "" {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	userID := middleware.UserID(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	url, err := h.Gate.RequestAccess(ctx, slug, userID, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
		case errors.Is(err, limiter.ErrRateLimited):
			return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too_many_requests"})
		case errors.Is(err, storage.ErrUnavailable):
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage unavailable"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"url": url})
}
