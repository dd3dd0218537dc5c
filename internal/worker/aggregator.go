// Package worker contains the analytics aggregator: a timer-driven
// batch consumer that drains the event queue into the aggregate tables
// with at-least-once delivery.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/innovatewithkishlay/justlputhings/internal/model"
	"github.com/innovatewithkishlay/justlputhings/internal/repository"
)

// Abuse thresholds, evaluated per drained batch (not per wall-clock
// unit, so sensitivity scales with drain cadence; recorded as an open
// product question rather than silently changed).
const (
	highFrequencyThreshold = 20  // strictly more than this fires HIGH_FREQUENCY_TRAFFIC
	severeDDoSThreshold    = 100 // this many or more fires SEVERE_DDOS_ATTEMPT
)

// EventSource is the queue surface the aggregator drains.
type EventSource interface {
	PopBatch(ctx context.Context, maxN int) ([]model.AccessEvent, error)
	Requeue(ctx context.Context, events []model.AccessEvent) error
	Len(ctx context.Context) (int64, error)
}

// Sink persists one batch aggregate transactionally.
type Sink interface {
	SaveBatch(ctx context.Context, agg repository.BatchAggregate) error
}

// AlertPublisher fans detections out to operators. Best effort.
type AlertPublisher interface {
	PublishAbuse(ctx context.Context, events []model.AbuseEvent) error
}

// Status is the aggregator's observational state, exposed on the worker
// health endpoint. It is a snapshot, never authoritative.
type Status struct {
	IsRunning          bool      `json:"is_running"`
	LastRunAt          time.Time `json:"last_run_at"`
	LastDurationMS     int64     `json:"last_duration_ms"`
	LastProcessedCount int       `json:"last_processed_count"`
	HitDeadline        bool      `json:"hit_deadline"`
}

// Aggregator drains the event queue on a fixed tick. A process-local
// guard flag skips a tick entirely when the previous cycle is still
// running; drain requests are never queued. Each cycle is bounded by a
// deadline that marks, but does not cancel, writes already in flight.
type Aggregator struct {
	source    EventSource
	sink      Sink
	alerts    AlertPublisher // may be nil
	metrics   *Metrics
	batchSize int
	interval  time.Duration
	timeout   time.Duration
	log       zerolog.Logger

	running atomic.Bool

	mu     sync.Mutex
	status Status
}

func New(source EventSource, sink Sink, alerts AlertPublisher, metrics *Metrics,
	batchSize int, interval, timeout time.Duration, log zerolog.Logger) *Aggregator {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Aggregator{
		source:    source,
		sink:      sink,
		alerts:    alerts,
		metrics:   metrics,
		batchSize: batchSize,
		interval:  interval,
		timeout:   timeout,
		log:       log.With().Str("component", "aggregator").Logger(),
	}
}

// Start runs the drain loop until ctx is cancelled: one kick shortly
// after process start, then the fixed ticker.
func (a *Aggregator) Start(ctx context.Context) {
	a.log.Info().Dur("interval", a.interval).Int("batch_size", a.batchSize).Msg("aggregator started")

	kick := time.NewTimer(5 * time.Second)
	defer kick.Stop()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info().Msg("aggregator stopped")
			return
		case <-kick.C:
			a.RunOnce(ctx)
		case <-ticker.C:
			a.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single drain cycle unless one is already running,
// in which case the tick is skipped.
func (a *Aggregator) RunOnce(ctx context.Context) {
	if !a.running.CompareAndSwap(false, true) {
		a.log.Warn().Msg("previous drain cycle still running, skipping tick")
		return
	}
	defer a.running.Store(false)

	start := time.Now()
	cycleCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	batch, err := a.source.PopBatch(cycleCtx, a.batchSize)
	if err != nil {
		a.log.Error().Err(err).Msg("pop batch failed")
		a.finishCycle(start, 0, false, false)
		return
	}
	if len(batch) == 0 {
		a.finishCycle(start, 0, false, false)
		return
	}

	agg := Aggregate(batch, start)

	if err := a.sink.SaveBatch(cycleCtx, agg); err != nil {
		// The transaction rolled back; push the whole batch back so no
		// event is lost. Duplicate processing on retry is the accepted
		// cost of at-least-once.
		a.log.Error().Err(err).Int("batch", len(batch)).Msg("batch save failed, requeueing")
		requeueCtx, rcancel := context.WithTimeout(context.Background(), 10*time.Second)
		if rerr := a.source.Requeue(requeueCtx, batch); rerr != nil {
			a.log.Error().Err(rerr).Int("batch", len(batch)).Msg("requeue failed, events lost")
		}
		rcancel()
		a.finishCycle(start, len(batch), cycleCtx.Err() != nil, true)
		return
	}

	for _, ab := range agg.Abuse {
		a.log.Warn().Uint64("user_id", ab.UserID).Str("type", ab.EventType).
			Int("count", ab.Count).Msg("abuse pattern detected")
		if a.metrics != nil {
			a.metrics.recordAbuse(ab.EventType)
		}
	}
	if a.alerts != nil && len(agg.Abuse) > 0 {
		alertCtx, acancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.alerts.PublishAbuse(alertCtx, agg.Abuse); err != nil {
			a.log.Warn().Err(err).Msg("abuse alert publish failed")
		}
		acancel()
	}

	a.finishCycle(start, len(batch), cycleCtx.Err() != nil, false)
	a.log.Info().Int("events", len(batch)).Int("materials", len(agg.PerMaterial)).
		Dur("took", time.Since(start)).Msg("drain cycle committed")
}

// finishCycle records metrics and the status snapshot for one cycle.
func (a *Aggregator) finishCycle(start time.Time, processed int, hitDeadline, failed bool) {
	if a.metrics != nil {
		a.metrics.recordCycle(processed, time.Since(start), failed)
	}
	a.setStatus(start, processed, hitDeadline)
}

// Status returns a snapshot of the worker state. Queue depth is read
// separately by the health handler; this struct is observational only.
func (a *Aggregator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.status
	s.IsRunning = a.running.Load()
	return s
}

func (a *Aggregator) setStatus(start time.Time, processed int, hitDeadline bool) {
	a.mu.Lock()
	a.status = Status{
		LastRunAt:          start.UTC(),
		LastDurationMS:     time.Since(start).Milliseconds(),
		LastProcessedCount: processed,
		HitDeadline:        hitDeadline,
	}
	a.mu.Unlock()
}

// Aggregate reduces one popped batch into its transactional write set:
// per-material deltas, the platform day rollup and the batch's abuse
// detections. Pure function; the math is strictly additive so replaying
// a batch is linear, never divergent.
func Aggregate(batch []model.AccessEvent, now time.Time) repository.BatchAggregate {
	perMaterial := make(map[uint64]repository.MaterialDelta)
	materialUsers := make(map[uint64]map[uint64]struct{})
	batchUsers := make(map[uint64]struct{})
	userCounts := make(map[uint64]int)

	for _, ev := range batch {
		d := perMaterial[ev.MaterialID]
		d.Count++
		perMaterial[ev.MaterialID] = d

		if materialUsers[ev.MaterialID] == nil {
			materialUsers[ev.MaterialID] = make(map[uint64]struct{})
		}
		materialUsers[ev.MaterialID][ev.UserID] = struct{}{}
		batchUsers[ev.UserID] = struct{}{}
		userCounts[ev.UserID]++
	}
	for id, users := range materialUsers {
		d := perMaterial[id]
		d.UniqueUsers = len(users)
		perMaterial[id] = d
	}

	return repository.BatchAggregate{
		Events:      batch,
		PerMaterial: perMaterial,
		Date:        now.UTC(),
		ActiveUsers: len(batchUsers),
		Abuse:       DetectAbuse(userCounts),
	}
}

// DetectAbuse applies the volume heuristics to per-user counts within
// one batch window. Exactly the high threshold fires nothing; at or
// above the severe threshold only the severe type fires.
func DetectAbuse(userCounts map[uint64]int) []model.AbuseEvent {
	var out []model.AbuseEvent
	for userID, n := range userCounts {
		switch {
		case n >= severeDDoSThreshold:
			out = append(out, model.AbuseEvent{UserID: userID, EventType: model.AbuseSevereDDoS, Count: n})
		case n > highFrequencyThreshold:
			out = append(out, model.AbuseEvent{UserID: userID, EventType: model.AbuseHighFrequency, Count: n})
		}
	}
	return out
}
