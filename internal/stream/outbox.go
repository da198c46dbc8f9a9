package stream

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/Guillaume-slize/digitalsolitude/internal/presence"
)

const (
	DefaultBuffer    = 16
	DefaultKeepalive = 20 * time.Second
)

// outbox is the part of a stream the registry sees. Send never blocks.
type outbox struct {
	out     chan presence.Event
	done    chan struct{}
	closed  atomic.Bool
	dropped atomic.Int64
	once    sync.Once
}

func newOutbox(size int) *outbox {
	if size <= 0 {
		size = DefaultBuffer
	}
	return &outbox{out: make(chan presence.Event, size), done: make(chan struct{})}
}

// Send queues ev for the writer loop
func (o *outbox) Send(ev presence.Event) error {
	if o.closed.Load() {
		return presence.ErrStreamClosed
	}
	select {
	case o.out <- ev:
		return nil
	default:
		o.dropped.Inc()
		return presence.ErrStreamBackpressure
	}
}

// Close stops the writer loop after it flushes what is already queued
func (o *outbox) Close() {
	o.once.Do(func() {
		o.closed.Store(true)
		close(o.done)
	})
}

// Done is closed once the stream is closed
func (o *outbox) Done() <-chan struct{} { return o.done }

// Dropped counts events refused because the outbox was full
func (o *outbox) Dropped() int64 { return o.dropped.Load() }

type (
	writeFunc func(context.Context, presence.Event) error
	pingFunc  func(context.Context) error
)

// pump writes queued events and periodic pings until the outbox is closed,
// ctx ends, or a write fails. Any exit leaves the outbox closed.
func (o *outbox) pump(ctx context.Context, keepalive time.Duration, write writeFunc, ping pingFunc) error {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	t := time.NewTicker(keepalive)
	defer t.Stop()
	defer o.Close()

	for {
		select {
		case ev := <-o.out:
			if err := write(ctx, ev); err != nil {
				return err
			}
		case <-t.C:
			if err := ping(ctx); err != nil {
				return err
			}
		case <-o.done:
			return o.drain(ctx, write)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (o *outbox) drain(ctx context.Context, write writeFunc) error {
	for {
		select {
		case ev := <-o.out:
			if err := write(ctx, ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}
