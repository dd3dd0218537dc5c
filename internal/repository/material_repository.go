package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/innovatewithkishlay/justlputhings/internal/model"
)

// MaterialRepo reads and writes the `materials` table. The access gate
// only uses GetActiveMeta; the remaining methods back the admin surface.
type MaterialRepo struct{ DB *sql.DB }

func NewMaterialRepo(db *sql.DB) *MaterialRepo { return &MaterialRepo{DB: db} }

// GetActiveMeta resolves the access-path projection for a slug. Inactive
// and absent slugs are indistinguishable: both return ErrNotFound.
func (r *MaterialRepo) GetActiveMeta(ctx context.Context, slug string) (model.MaterialMeta, error) {
	var m model.MaterialMeta
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, storage_key FROM materials WHERE slug=? AND status='ACTIVE' LIMIT 1",
		slug).Scan(&m.ID, &m.StorageKey)
	if err == sql.ErrNoRows {
		return model.MaterialMeta{}, ErrNotFound
	}
	if err != nil {
		return model.MaterialMeta{}, err
	}
	return m, nil
}

// CreateTx inserts a material row inside the caller's transaction and
// returns its id. The transaction lets an upload roll the row back when
// the object write fails afterwards.
func (r *MaterialRepo) CreateTx(ctx context.Context, tx *sql.Tx, m model.Material) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO materials (slug, title, storage_key, status, uploader_id) VALUES (?,?,?,?,?)",
		strings.TrimSpace(m.Slug), m.Title, m.StorageKey, m.Status, m.UploaderID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a full material row.
func (r *MaterialRepo) GetByID(ctx context.Context, id uint64) (model.Material, error) {
	var m model.Material
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, slug, title, storage_key, status, uploader_id, created_at, updated_at FROM materials WHERE id=? LIMIT 1",
		id).Scan(&m.ID, &m.Slug, &m.Title, &m.StorageKey, &m.Status, &m.UploaderID, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.Material{}, ErrNotFound
	}
	return m, err
}

// SetStatus updates a material's status.
func (r *MaterialRepo) SetStatus(ctx context.Context, id uint64, status string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE materials SET status=? WHERE id=?", status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
