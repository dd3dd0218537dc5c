// Package gate answers the per-request question "can this user read
// this material right now, and via what URL". It combines the rate
// limiter, the metadata cache, the event queue and the signed-URL
// issuer; the caller's token was already validated upstream.
package gate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/innovatewithkishlay/justlputhings/internal/limiter"
	"github.com/innovatewithkishlay/justlputhings/internal/model"
	"github.com/innovatewithkishlay/justlputhings/internal/repository"
)

// MaterialSource resolves the access-path projection from the
// relational store.
type MaterialSource interface {
	GetActiveMeta(ctx context.Context, slug string) (model.MaterialMeta, error)
}

// MetaCache is the short-TTL front for MaterialSource lookups.
type MetaCache interface {
	Get(ctx context.Context, slug string) (model.MaterialMeta, bool)
	Set(ctx context.Context, slug string, meta model.MaterialMeta)
}

// Limiter is the per-user sliding-window counter.
type Limiter interface {
	Allow(ctx context.Context, userID uint64) (bool, int, error)
}

// Signer mints short-lived read URLs for storage keys.
type Signer interface {
	Sign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Emitter is the fire-and-forget telemetry hand-off.
type Emitter interface {
	Emit(ev model.AccessEvent)
}

// AbuseSink records rate-limit violations; both writes are best effort.
type AbuseSink interface {
	InsertAbuseEvent(ctx context.Context, userID uint64, eventType string, count int) error
	InsertAudit(ctx context.Context, userID uint64, action, detail, ip string) error
}

// Gate wires the access decision. Errors surface as the collaborating
// packages' sentinels: repository.ErrNotFound, limiter.ErrRateLimited,
// storage.ErrUnavailable.
type Gate struct {
	materials MaterialSource
	cache     MetaCache
	limiter   Limiter
	signer    Signer
	emitter   Emitter
	abuse     AbuseSink
	urlTTL    time.Duration
	log       zerolog.Logger
}

func New(materials MaterialSource, cache MetaCache, lim Limiter, signer Signer,
	emitter Emitter, abuse AbuseSink, urlTTL time.Duration, log zerolog.Logger) *Gate {
	return &Gate{
		materials: materials,
		cache:     cache,
		limiter:   lim,
		signer:    signer,
		emitter:   emitter,
		abuse:     abuse,
		urlTTL:    urlTTL,
		log:       log.With().Str("component", "gate").Logger(),
	}
}

// RequestAccess authorizes one read and returns a signed URL. Steps in
// order: rate limit, metadata resolve (cache then store), telemetry
// emit, URL signing. Only the URL leaves the gate, never the raw
// storage key.
func (g *Gate) RequestAccess(ctx context.Context, slug string, userID uint64, ip, userAgent string) (string, error) {
	allowed, count, err := g.limiter.Allow(ctx, userID)
	if !allowed {
		g.recordRateLimitHit(ctx, userID, count, ip)
		if err == nil {
			err = limiter.ErrRateLimited
		}
		return "", err
	}

	meta, ok := g.cache.Get(ctx, slug)
	if !ok {
		meta, err = g.materials.GetActiveMeta(ctx, slug)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return "", repository.ErrNotFound
			}
			return "", err
		}
		g.cache.Set(ctx, slug, meta)
	}

	// Telemetry is fire-and-forget: a lost event must never block a read.
	g.emitter.Emit(model.AccessEvent{
		UserID:     userID,
		MaterialID: meta.ID,
		IP:         ip,
		UserAgent:  userAgent,
		OccurredAt: time.Now().UTC(),
	})

	url, err := g.signer.Sign(ctx, meta.StorageKey, g.urlTTL)
	if err != nil {
		g.log.Error().Err(err).Str("slug", slug).Msg("signing failed after retry")
		return "", err
	}
	return url, nil
}

// recordRateLimitHit writes the abuse event and audit entry for an
// explicit limiter rejection. Failures are logged and swallowed.
func (g *Gate) recordRateLimitHit(ctx context.Context, userID uint64, count int, ip string) {
	if err := g.abuse.InsertAbuseEvent(ctx, userID, model.AbuseRateLimitExceeded, count); err != nil {
		g.log.Warn().Err(err).Uint64("user_id", userID).Msg("abuse event write failed")
	}
	if err := g.abuse.InsertAudit(ctx, userID, "RATE_LIMIT_EXCEEDED", "material access ceiling hit", ip); err != nil {
		g.log.Warn().Err(err).Uint64("user_id", userID).Msg("audit write failed")
	}
}
