// Package queue implements the durable FIFO buffer between the access
// gate and the analytics worker, backed by a Redis list. Delivery is
// at-least-once: a popped batch that fails downstream is requeued to the
// front, so nothing is lost at the cost of possible duplicates.
package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/innovatewithkishlay/justlputhings/internal/model"
)

const eventsKey = "analytics:events"

// ErrUnavailable is returned when the queue store is not configured or
// unreachable. Producers swallow it; the worker logs and skips the
// cycle.
var ErrUnavailable = errors.New("event queue unavailable")

// EventQueue is the Redis-list FIFO. Producers RPUSH, the worker LPOPs
// in batches, and failed batches are LPUSHed back so they are retried
// first.
type EventQueue struct {
	rdb *redis.Client
	log zerolog.Logger
}

func New(rdb *redis.Client, log zerolog.Logger) *EventQueue {
	return &EventQueue{rdb: rdb, log: log.With().Str("component", "event_queue").Logger()}
}

// Push appends one event to the tail of the queue.
func (q *EventQueue) Push(ctx context.Context, ev model.AccessEvent) error {
	if q.rdb == nil {
		return ErrUnavailable
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, eventsKey, raw).Err()
}

// PopBatch removes and returns up to maxN events from the head of the
// queue without blocking; it returns fewer (including zero) when the
// queue is shallow. Undecodable entries are logged and dropped rather
// than requeued, so one poison entry cannot wedge the drain loop.
func (q *EventQueue) PopBatch(ctx context.Context, maxN int) ([]model.AccessEvent, error) {
	if q.rdb == nil {
		return nil, ErrUnavailable
	}
	raws, err := q.rdb.LPopCount(ctx, eventsKey, maxN).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	events := make([]model.AccessEvent, 0, len(raws))
	for _, raw := range raws {
		var ev model.AccessEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			q.log.Warn().Err(err).Msg("dropping undecodable event")
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Requeue reinserts a failed batch at the head of the queue, preserving
// its order, so the next drain cycle retries it before newer events.
func (q *EventQueue) Requeue(ctx context.Context, events []model.AccessEvent) error {
	if q.rdb == nil {
		return ErrUnavailable
	}
	if len(events) == 0 {
		return nil
	}
	// LPUSH prepends in argument order, so push in reverse to keep the
	// original head at the head.
	raws := make([]interface{}, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		raw, err := json.Marshal(events[i])
		if err != nil {
			return err
		}
		raws = append(raws, raw)
	}
	return q.rdb.LPush(ctx, eventsKey, raws...).Err()
}

// Len reports the current queue depth.
func (q *EventQueue) Len(ctx context.Context) (int64, error) {
	if q.rdb == nil {
		return 0, ErrUnavailable
	}
	return q.rdb.LLen(ctx, eventsKey).Result()
}
