package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/innovatewithkishlay/justlputhings/internal/model"
)

// MaterialDelta is the per-material contribution of one drained batch:
// how many events the material received and how many distinct users
// produced them.
type MaterialDelta struct {
	Count       int
	UniqueUsers int
}

// BatchAggregate is everything the analytics worker derives from one
// popped batch. SaveBatch persists it in a single transaction.
type BatchAggregate struct {
	Events      []model.AccessEvent
	PerMaterial map[uint64]MaterialDelta
	Date        time.Time // day bucket for the platform rollup
	ActiveUsers int       // distinct users across the whole batch
	Abuse       []model.AbuseEvent
}

// StatsRepo owns all analytics writes: the raw event archive, the
// additive aggregate upserts and the abuse/audit trails.
type StatsRepo struct{ DB *sql.DB }

func NewStatsRepo(db *sql.DB) *StatsRepo { return &StatsRepo{DB: db} }

// SaveBatch writes one drained batch inside a single transaction: bulk
// raw-event insert, one additive upsert per distinct material, one
// platform day-rollup upsert and the batch's abuse detections. Any error
// rolls the whole transaction back so the caller can requeue the batch.
//
// The upserts are strictly additive (total_views = total_views + N);
// that commutativity is what makes at-least-once delivery safe: a
// replayed batch adds again instead of overwriting, and counters never
// move backwards.
func (r *StatsRepo) SaveBatch(ctx context.Context, agg BatchAggregate) error {
	if len(agg.Events) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	if err := insertEvents(ctx, tx, agg.Events); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	for materialID, d := range agg.PerMaterial {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO material_stats (material_id, total_views, unique_users, last_24h_views)
			 VALUES (?,?,?,?)
			 ON DUPLICATE KEY UPDATE
			   total_views = total_views + VALUES(total_views),
			   unique_users = unique_users + VALUES(unique_users),
			   last_24h_views = last_24h_views + VALUES(last_24h_views)`,
			materialID, d.Count, d.UniqueUsers, d.Count); err != nil {
			return fmt.Errorf("upsert material %d: %w", materialID, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO platform_stats (stat_date, total_views, active_users)
		 VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE
		   total_views = total_views + VALUES(total_views),
		   active_users = active_users + VALUES(active_users)`,
		agg.Date.UTC().Format("2006-01-02"), len(agg.Events), agg.ActiveUsers); err != nil {
		return fmt.Errorf("upsert platform rollup: %w", err)
	}
	for _, a := range agg.Abuse {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO abuse_events (user_id, event_type, count) VALUES (?,?,?)",
			a.UserID, a.EventType, a.Count); err != nil {
			return fmt.Errorf("insert abuse event: %w", err)
		}
	}
	return tx.Commit()
}

// insertEvents bulk-inserts raw events with a single multi-row statement.
func insertEvents(ctx context.Context, tx *sql.Tx, events []model.AccessEvent) error {
	var (
		sb   strings.Builder
		args = make([]interface{}, 0, len(events)*5)
	)
	sb.WriteString("INSERT INTO access_events (user_id, material_id, ip, user_agent, occurred_at) VALUES ")
	for i, ev := range events {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?)")
		args = append(args, ev.UserID, ev.MaterialID, ev.IP, ev.UserAgent, ev.OccurredAt.UTC())
	}
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

// InsertAbuseEvent writes one detection row outside any transaction.
// Used by the rate limiter's best-effort path.
func (r *StatsRepo) InsertAbuseEvent(ctx context.Context, userID uint64, eventType string, count int) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO abuse_events (user_id, event_type, count) VALUES (?,?,?)",
		userID, eventType, count)
	return err
}

// InsertAudit appends an audit-log row. Best effort; callers log and
// swallow failures.
func (r *StatsRepo) InsertAudit(ctx context.Context, userID uint64, action, detail, ip string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO audit_logs (user_id, action, detail, ip) VALUES (?,?,?,?)",
		userID, action, detail, ip)
	return err
}

// GetMaterialStats reads one aggregate row. ErrNotFound when the
// material has never been viewed.
func (r *StatsRepo) GetMaterialStats(ctx context.Context, materialID uint64) (model.MaterialStats, error) {
	var s model.MaterialStats
	err := r.DB.QueryRowContext(ctx,
		"SELECT material_id, total_views, unique_users, last_24h_views, updated_at FROM material_stats WHERE material_id=? LIMIT 1",
		materialID).Scan(&s.MaterialID, &s.TotalViews, &s.UniqueUsers, &s.Last24hViews, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.MaterialStats{}, ErrNotFound
	}
	return s, err
}
