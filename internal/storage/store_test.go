package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
)

type mockClient struct {
	presignFn func(ctx context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error)
	putFn     func(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	removeFn  func(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error

	presignCalls int
	putCalls     int
	removeCalls  int
}

func (m *mockClient) PresignedGetObject(ctx context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error) {
	m.presignCalls++
	return m.presignFn(ctx, bucket, key, expiry, params)
}

func (m *mockClient) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	m.putCalls++
	if m.putFn != nil {
		return m.putFn(ctx, bucket, key, r, size, opts)
	}
	return minio.UploadInfo{}, nil
}

func (m *mockClient) RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error {
	m.removeCalls++
	if m.removeFn != nil {
		return m.removeFn(ctx, bucket, key, opts)
	}
	return nil
}

func newTestStore(c Client) *Store {
	return NewStoreWithClient(c, "materials", time.Second, zerolog.Nop())
}

func TestSignSetsResponseOverrides(t *testing.T) {
	var gotParams url.Values
	var gotTTL time.Duration
	c := &mockClient{presignFn: func(_ context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error) {
		gotParams = params
		gotTTL = expiry
		return url.Parse("https://s3.example/" + bucket + "/" + key + "?X-Amz-Signature=abc")
	}}
	s := newTestStore(c)

	got, err := s.Sign(context.Background(), "materials/lec1.pdf", 2*time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if got == "" {
		t.Fatal("empty url")
	}
	if gotTTL != 2*time.Minute {
		t.Fatalf("expiry = %v, want 2m", gotTTL)
	}
	if gotParams.Get("response-content-disposition") != "inline" {
		t.Fatal("inline disposition override missing")
	}
	if gotParams.Get("response-cache-control") != "no-store" {
		t.Fatal("no-store override missing")
	}
}

func TestSignRetriesOnceThenSucceeds(t *testing.T) {
	fail := true
	c := &mockClient{presignFn: func(context.Context, string, string, time.Duration, url.Values) (*url.URL, error) {
		if fail {
			fail = false
			return nil, errors.New("connection reset")
		}
		return url.Parse("https://s3.example/ok")
	}}
	s := newTestStore(c)

	if _, err := s.Sign(context.Background(), "k", time.Minute); err != nil {
		t.Fatalf("Sign after transient failure: %v", err)
	}
	if c.presignCalls != 2 {
		t.Fatalf("presign calls = %d, want 2", c.presignCalls)
	}
}

func TestSignBothAttemptsFail(t *testing.T) {
	c := &mockClient{presignFn: func(context.Context, string, string, time.Duration, url.Values) (*url.URL, error) {
		return nil, errors.New("connection refused")
	}}
	s := newTestStore(c)

	_, err := s.Sign(context.Background(), "k", time.Minute)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if c.presignCalls != 2 {
		t.Fatalf("presign calls = %d, want exactly 2", c.presignCalls)
	}
}

func TestPutReplaysFullPayloadOnRetry(t *testing.T) {
	payload := []byte("pdf bytes")
	var reads [][]byte
	fail := true
	c := &mockClient{putFn: func(_ context.Context, _, _ string, r io.Reader, size int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
		b, _ := io.ReadAll(r)
		reads = append(reads, b)
		if int64(len(b)) != size {
			t.Errorf("declared size %d, reader held %d", size, len(b))
		}
		if fail {
			fail = false
			return minio.UploadInfo{}, errors.New("broken pipe")
		}
		return minio.UploadInfo{}, nil
	}}
	s := newTestStore(c)

	if err := s.Put(context.Background(), "k", payload, "application/pdf"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(reads) != 2 {
		t.Fatalf("put attempts = %d, want 2", len(reads))
	}
	// The second attempt must see the payload from the start, not a
	// half-consumed reader.
	for i, b := range reads {
		if string(b) != string(payload) {
			t.Fatalf("attempt %d read %q, want full payload", i+1, b)
		}
	}
}

func TestPutPropagatesFinalError(t *testing.T) {
	wantErr := errors.New("quota exceeded")
	c := &mockClient{putFn: func(context.Context, string, string, io.Reader, int64, minio.PutObjectOptions) (minio.UploadInfo, error) {
		return minio.UploadInfo{}, wantErr
	}}
	s := newTestStore(c)

	if err := s.Put(context.Background(), "k", []byte("x"), ""); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestDeleteRetries(t *testing.T) {
	fail := true
	c := &mockClient{removeFn: func(context.Context, string, string, minio.RemoveObjectOptions) error {
		if fail {
			fail = false
			return errors.New("timeout")
		}
		return nil
	}}
	s := newTestStore(c)

	if err := s.Delete(context.Background(), "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if c.removeCalls != 2 {
		t.Fatalf("remove calls = %d, want 2", c.removeCalls)
	}
}

func TestCancelledContextStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &mockClient{presignFn: func(context.Context, string, string, time.Duration, url.Values) (*url.URL, error) {
		cancel()
		return nil, context.Canceled
	}}
	s := newTestStore(c)

	if _, err := s.Sign(ctx, "k", time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if c.presignCalls != 1 {
		t.Fatalf("presign calls = %d, want 1 after parent cancellation", c.presignCalls)
	}
}
