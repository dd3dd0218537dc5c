package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ExpiredDeleter is the repository surface the janitor sweeps.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Janitor periodically deletes refresh-token rows past their expiry.
// Expired rows are already unusable (the refresh path checks expires_at
// before the hash), so this is pure storage hygiene and every failure
// just waits for the next tick.
type Janitor struct {
	store    ExpiredDeleter
	interval time.Duration
	log      zerolog.Logger
}

func NewJanitor(store ExpiredDeleter, interval time.Duration, log zerolog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		store:    store,
		interval: interval,
		log:      log.With().Str("component", "token_janitor").Logger(),
	}
}

// Start sweeps until ctx is cancelled: once at startup, then on the
// interval.
func (j *Janitor) Start(ctx context.Context) {
	j.log.Info().Dur("interval", j.interval).Msg("token janitor started")

	j.RunOnce(ctx)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("token janitor stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := j.store.DeleteExpired(sweepCtx)
	if err != nil {
		j.log.Warn().Err(err).Msg("expired token sweep failed")
		return
	}
	if n > 0 {
		j.log.Info().Int64("deleted", n).Msg("expired refresh tokens removed")
	}
}
