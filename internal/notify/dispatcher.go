package notify

import (
	"context"
	"log/slog"
	"sync"
)

type job struct {
	ctx context.Context
	to  Recipient
	n   Notification
}

// Dispatcher delivers notifications on a background worker so request
// handlers do not wait on SMTP. When the queue is full, or after Close,
// delivery happens synchronously on the caller's goroutine.
type Dispatcher struct {
	next   Emitter
	queue  chan job
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts a dispatcher with a queue of the given size.
func NewDispatcher(next Emitter, size int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		next:   next,
		queue:  make(chan job, size),
		logger: logger,
		done:   make(chan struct{}),
	}
	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for j := range d.queue {
		if !d.next.Emit(j.ctx, j.to, j.n) {
			d.logger.Warn("notification delivery failed", "kind", j.n.Kind(), "user_id", j.to.UserID)
		}
	}
}

// Emit queues the notification and reports true once it is accepted.
// The caller's context is detached from cancellation so delivery survives
// the end of the request.
func (d *Dispatcher) Emit(ctx context.Context, to Recipient, n Notification) bool {
	j := job{ctx: context.WithoutCancel(ctx), to: to, n: n}

	d.mu.RLock()
	if !d.closed {
		select {
		case d.queue <- j:
			d.mu.RUnlock()
			return true
		default:
		}
	}
	d.mu.RUnlock()

	// queue full or closed
	return d.next.Emit(ctx, to, n)
}

// Close stops accepting work and waits until queued notifications are delivered
// or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
