package handler

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/innovatewithkishlay/justlputhings/internal/middleware"
	"github.com/innovatewithkishlay/justlputhings/internal/model"
	"github.com/innovatewithkishlay/justlputhings/internal/repository"
)

// maxUploadBytes caps material uploads (PDFs and short videos).
const maxUploadBytes = 64 << 20

// ObjectStore is the storage surface the admin handlers use.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// StatsStore is the analytics surface the admin handlers use: the audit
// trail and the per-material aggregate read.
type StatsStore interface {
	InsertAudit(ctx context.Context, userID uint64, action, detail, ip string) error
	GetMaterialStats(ctx context.Context, materialID uint64) (model.MaterialStats, error)
}

// AdminHandler implements the moderation surface: material upload and
// removal, user block/unblock and user deletion.
type AdminHandler struct {
	DB        *sql.DB
	Materials *repository.MaterialRepo
	Users     *repository.UserRepo
	Tokens    *repository.TokenRepo
	Stats     StatsStore
	Store     ObjectStore
	Log       zerolog.Logger
}

func NewAdminHandler(db *sql.DB, m *repository.MaterialRepo, u *repository.UserRepo,
	t *repository.TokenRepo, s StatsStore, store ObjectStore, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		DB: db, Materials: m, Users: u, Tokens: t, Stats: s, Store: store,
		Log: log.With().Str("component", "admin").Logger(),
	}
}

// UploadMaterial inserts the material row and writes the object inside
// one logical unit: the row is created in a transaction that only
// commits after the object write succeeds. A failed write rolls the row
// back and best-effort deletes any partially written object, so neither
// store is left pointing at the other's ghost.
func (h *AdminHandler) UploadMaterial(c echo.Context) error {
	slug := strings.TrimSpace(c.FormValue("slug"))
	title := strings.TrimSpace(c.FormValue("title"))
	if slug == "" || title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "slug/title required"})
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file required"})
	}
	if fh.Size > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "file too large"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable file"})
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil || int64(len(data)) > maxUploadBytes {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable file"})
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	storageKey := "materials/" + uuid.NewString() + path.Ext(fh.Filename)

	ctx := c.Request().Context()
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	id, err := h.Materials.CreateTx(ctx, tx, model.Material{
		Slug:       slug,
		Title:      title,
		StorageKey: storageKey,
		Status:     model.MaterialActive,
		UploaderID: middleware.UserID(c),
	})
	if err != nil {
		_ = tx.Rollback()
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return c.JSON(http.StatusConflict, echo.Map{"error": "slug already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if err := h.Store.Put(ctx, storageKey, data, contentType); err != nil {
		_ = tx.Rollback()
		// The put may have written a partial object before failing.
		if derr := h.Store.Delete(context.Background(), storageKey); derr != nil {
			h.Log.Warn().Err(derr).Str("key", storageKey).Msg("orphan cleanup failed")
		}
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage unavailable"})
	}
	if err := tx.Commit(); err != nil {
		if derr := h.Store.Delete(context.Background(), storageKey); derr != nil {
			h.Log.Warn().Err(derr).Str("key", storageKey).Msg("orphan cleanup failed")
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": id, "slug": slug})
}

// RemoveMaterial marks the row REMOVED and best-effort deletes the
// object. The row state is authoritative; a failed object delete is
// logged, not surfaced, because the access gate already refuses
// non-ACTIVE materials (after the cache TTL elapses).
func (h *AdminHandler) RemoveMaterial(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	ctx := c.Request().Context()
	m, err := h.Materials.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if err := h.Materials.SetStatus(ctx, id, model.MaterialRemoved); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if err := h.Store.Delete(ctx, m.StorageKey); err != nil {
		h.Log.Warn().Err(err).Str("key", m.StorageKey).Msg("object delete failed")
	}
	h.audit(ctx, middleware.UserID(c), "MATERIAL_REMOVED", m.Slug, c.RealIP())
	return c.NoContent(http.StatusNoContent)
}

// MaterialStats returns the aggregate counters for one material. A
// material that exists but has never been viewed reads the same as an
// unknown id: 404.
func (h *AdminHandler) MaterialStats(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	s, err := h.Stats.GetMaterialStats(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"material_id":    s.MaterialID,
		"total_views":    s.TotalViews,
		"unique_users":   s.UniqueUsers,
		"last_24h_views": s.Last24hViews,
		"updated_at":     s.UpdatedAt,
	})
}

// BlockUser blocks an account and kills all its sessions.
func (h *AdminHandler) BlockUser(c echo.Context) error {
	return h.setBlocked(c, true)
}

// UnblockUser lifts a block. Existing sessions stay revoked; the user
// logs in again.
func (h *AdminHandler) UnblockUser(c echo.Context) error {
	return h.setBlocked(c, false)
}

func (h *AdminHandler) setBlocked(c echo.Context, blocked bool) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	ctx := c.Request().Context()
	if err := h.Users.SetBlocked(ctx, id, blocked); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	action := "USER_UNBLOCKED"
	if blocked {
		action = "USER_BLOCKED"
		if err := h.Tokens.RevokeAllForUser(ctx, id); err != nil {
			h.Log.Error().Err(err).Uint64("user_id", id).Msg("revoke-all on block failed")
		}
	}
	h.audit(ctx, middleware.UserID(c), action, strconv.FormatUint(id, 10), c.RealIP())
	return c.NoContent(http.StatusNoContent)
}

// DeleteUser hard-deletes an account. Admin accounts cannot be deleted
// through this endpoint, and all refresh families are revoked before
// the row goes so in-flight sessions die even if the delete fails.
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	ctx := c.Request().Context()
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if u.Role == model.RoleAdmin {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	if err := h.Tokens.RevokeAllForUser(ctx, id); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if err := h.Users.Delete(ctx, id); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	h.audit(ctx, middleware.UserID(c), "USER_DELETED", u.Email, c.RealIP())
	return c.NoContent(http.StatusNoContent)
}

// audit appends a best-effort trail entry.
func (h *AdminHandler) audit(ctx context.Context, adminID uint64, action, detail, ip string) {
	if err := h.Stats.InsertAudit(ctx, adminID, action, detail, ip); err != nil {
		h.Log.Warn().Err(err).Str("action", action).Msg("audit write failed")
	}
}
