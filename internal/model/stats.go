package model

import "time"

// Abuse event types written to abuse_events.event_type.
const (
	AbuseRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	AbuseHighFrequency     = "HIGH_FREQUENCY_TRAFFIC"
	AbuseSevereDDoS        = "SEVERE_DDOS_ATTEMPT"
)

// MaterialStats mirrors a row of the `material_stats` aggregate table.
// Counters are updated exclusively through additive upserts by the
// analytics worker and are monotonically non-decreasing under normal
// operation.
type MaterialStats struct {
	MaterialID   uint64    // material_stats.material_id
	TotalViews   uint64    // material_stats.total_views
	UniqueUsers  uint64    // material_stats.unique_users
	Last24hViews uint64    // material_stats.last_24h_views
	UpdatedAt    time.Time // material_stats.updated_at
}

// AbuseEvent is one append-only detection record. One row is written per
// firing; detections are not deduplicated across drain cycles.
type AbuseEvent struct {
	ID        uint64    // abuse_events.id
	UserID    uint64    // abuse_events.user_id
	EventType string    // abuse_events.event_type
	Count     int       // abuse_events.count
	CreatedAt time.Time // abuse_events.created_at
}
