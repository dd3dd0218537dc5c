package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type mockDeleter struct {
	mu    sync.Mutex
	n     int64
	err   error
	calls int
}

func (d *mockDeleter) DeleteExpired(context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.n, d.err
}

func (d *mockDeleter) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func TestJanitorRunOnce(t *testing.T) {
	d := &mockDeleter{n: 7}
	j := NewJanitor(d, time.Hour, zerolog.Nop())

	j.RunOnce(context.Background())

	if d.callCount() != 1 {
		t.Fatalf("sweeps = %d, want 1", d.callCount())
	}
}

func TestJanitorSweepErrorIsSwallowed(t *testing.T) {
	d := &mockDeleter{err: errors.New("db down")}
	j := NewJanitor(d, time.Hour, zerolog.Nop())

	j.RunOnce(context.Background())
	j.RunOnce(context.Background())

	if d.callCount() != 2 {
		t.Fatalf("sweeps = %d, want 2 despite errors", d.callCount())
	}
}

func TestJanitorStartSweepsImmediatelyThenTicks(t *testing.T) {
	d := &mockDeleter{}
	j := NewJanitor(d, 20*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for d.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("janitor never reached a second sweep")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
