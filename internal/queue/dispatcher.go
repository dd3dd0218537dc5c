package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/innovatewithkishlay/justlputhings/internal/model"
)

// Pusher is the queue surface the dispatcher writes to.
type Pusher interface {
	Push(ctx context.Context, ev model.AccessEvent) error
}

// Dispatcher decouples telemetry emission from the request path: the
// gate hands an event to a buffered channel and returns immediately,
// and a single goroutine drains the channel into the queue. A full
// buffer or a failed push drops the event with a warning; telemetry
// loss must never block or fail a read.
type Dispatcher struct {
	ch   chan model.AccessEvent
	q    Pusher
	log  zerolog.Logger
	done chan struct{}

	// mu orders Emit against Close: Close sets closed and closes ch under
	// the write lock, so no Emit can be mid-send when the channel closes.
	// In-flight handlers during shutdown drop their events instead of
	// panicking on a closed channel.
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the drain goroutine. bufSize bounds how many
// events may be in flight before drops begin.
func NewDispatcher(q Pusher, bufSize int, log zerolog.Logger) *Dispatcher {
	if bufSize <= 0 {
		bufSize = 1024
	}
	d := &Dispatcher{
		ch:   make(chan model.AccessEvent, bufSize),
		q:    q,
		log:  log.With().Str("component", "event_dispatcher").Logger(),
		done: make(chan struct{}),
	}
	go d.drain()
	return d
}

// Emit hands an event off without blocking. Fire and forget; after Close
// the event is dropped with a warning.
func (d *Dispatcher) Emit(ev model.AccessEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn().Uint64("user_id", ev.UserID).Msg("dispatcher closed, dropping event")
		return
	}
	select {
	case d.ch <- ev:
	default:
		d.log.Warn().Uint64("user_id", ev.UserID).Msg("dispatch buffer full, dropping event")
	}
}

// Close stops accepting events and waits for the buffer to flush.
// Idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) drain() {
	defer close(d.done)
	for ev := range d.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.q.Push(ctx, ev); err != nil {
			d.log.Warn().Err(err).Msg("event enqueue failed, dropping")
		}
		cancel()
	}
}
