package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestAllowDisabled(t *testing.T) {
	l := NewSlidingWindow(nil, 60, 5*time.Minute, false, zerolog.Nop())
	allowed, count, err := l.Allow(context.Background(), 9)
	if !allowed || count != 0 || err != nil {
		t.Fatalf("disabled limiter: allowed=%v count=%d err=%v", allowed, count, err)
	}
}

func TestAllowNilClient(t *testing.T) {
	l := NewSlidingWindow(nil, 60, 5*time.Minute, true, zerolog.Nop())
	allowed, _, err := l.Allow(context.Background(), 9)
	if !allowed || err != nil {
		t.Fatalf("nil-client limiter must allow: allowed=%v err=%v", allowed, err)
	}
}

// An unreachable counter store must fail open: the request is admitted
// and no error escapes to the caller.
func TestAllowFailsOpenOnBackendError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	l := NewSlidingWindow(rdb, 60, 5*time.Minute, true, zerolog.Nop())
	allowed, count, err := l.Allow(context.Background(), 9)
	if !allowed || err != nil {
		t.Fatalf("unreachable backend: allowed=%v err=%v", allowed, err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0 on fail-open", count)
	}
}

func TestAsInt64(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want int64
	}{
		{name: "int64", in: int64(7), want: 7},
		{name: "int", in: 7, want: 7},
		{name: "float64", in: float64(7), want: 7},
		{name: "unsupported", in: "7", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := asInt64(tt.in); got != tt.want {
				t.Fatalf("asInt64(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
