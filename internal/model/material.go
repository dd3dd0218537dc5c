package model

import "time"

// Material status values stored in materials.status. Only ACTIVE
// materials are reachable through the access endpoint; PENDING and
// REMOVED collapse to "not found" for callers.
const (
	MaterialActive  = "ACTIVE"
	MaterialPending = "PENDING"
	MaterialRemoved = "REMOVED"
)

// Material represents a row in the `materials` table. The access path
// only needs the id, slug, storage key and status; the remaining columns
// belong to the content-management surface.
type Material struct {
	ID         uint64    // materials.id
	Slug       string    // materials.slug
	Title      string    // materials.title
	StorageKey string    // materials.storage_key (never exposed to clients)
	Status     string    // materials.status
	UploaderID uint64    // materials.uploader_id
	CreatedAt  time.Time // materials.created_at
	UpdatedAt  time.Time // materials.updated_at
}

// MaterialMeta is the cached projection of a material used on the access
// hot path: just enough to authorize and sign a download without a
// relational round trip.
type MaterialMeta struct {
	ID         uint64 `json:"id"`
	StorageKey string `json:"storage_key"`
}
