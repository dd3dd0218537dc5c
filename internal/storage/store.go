// Package storage wraps the S3-compatible object store behind a small
// interface: presigned read URLs, uploads and deletes, each raced
// against a timeout and retried once.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// ErrUnavailable is returned when the object store is unreachable after
// the retry. Handlers translate it into HTTP 503.
var ErrUnavailable = errors.New("object storage unavailable")

// Client is the minio surface the store uses; narrowed for tests.
type Client interface {
	PresignedGetObject(ctx context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error)
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
}

// Store issues short-lived signed URLs and performs object writes with
// retry-on-timeout semantics. Sign never leaks the storage key to the
// caller's caller; the URL is the only thing that leaves the gate.
type Store struct {
	client  Client
	bucket  string
	timeout time.Duration
	log     zerolog.Logger
}

// Config carries the connection parameters for NewStore.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Timeout   time.Duration
}

// NewStore dials the object store.
func NewStore(cfg Config, log zerolog.Logger) (*Store, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return NewStoreWithClient(mc, cfg.Bucket, cfg.Timeout, log), nil
}

// NewStoreWithClient wires an existing client; used by tests.
func NewStoreWithClient(c Client, bucket string, timeout time.Duration, log zerolog.Logger) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{
		client:  c,
		bucket:  bucket,
		timeout: timeout,
		log:     log.With().Str("component", "storage").Logger(),
	}
}

// Sign mints a presigned, read-only GET URL for a storage key. The
// response overrides force inline rendering and forbid caching so the
// capability cannot outlive its expiry in an intermediary.
func (s *Store) Sign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", "inline")
	params.Set("response-cache-control", "no-store")

	var u *url.URL
	err := s.withRetry(ctx, "sign", func(attempt context.Context) error {
		var err error
		u, err = s.client.PresignedGetObject(attempt, s.bucket, key, ttl, params)
		return err
	})
	if err != nil {
		return "", ErrUnavailable
	}
	return u.String(), nil
}

// Put uploads an object. It takes the full payload so the retry can
// replay it from the start. Failure is returned to the caller, which
// owns the compensating action (for uploads: roll back the database row
// and best-effort delete any partial object).
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return s.withRetry(ctx, "put", func(attempt context.Context) error {
		_, err := s.client.PutObject(attempt, s.bucket, key,
			bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType})
		return err
	})
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.withRetry(ctx, "delete", func(attempt context.Context) error {
		return s.client.RemoveObject(attempt, s.bucket, key, minio.RemoveObjectOptions{})
	})
}

// withRetry runs op with a per-attempt timeout and retries exactly once.
func (s *Store) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		lastErr = fn(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		s.log.Warn().Err(lastErr).Str("op", op).Int("attempt", attempt+1).Msg("storage call failed")
		if ctx.Err() != nil {
			break
		}
	}
	return lastErr
}
