package queue

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// defaultInProcCapacity bounds the in-process channel.
const defaultInProcCapacity = 1024

// InProcBackend is the single-node delivery backend: a bounded channel inside
// the process. A restart loses in-flight deliveries; with the in-memory store
// the whole queue state is gone too. That trade-off is accepted for
// single-node development and is why production deployments configure
// QUEUE_URL.
type InProcBackend struct {
	ch        chan Payload
	seq       atomic.Int64
	closeOnce sync.Once
	closed    chan struct{}
}

// NewInProcBackend builds a channel-backed queue. capacity <= 0 uses the
// default.
func NewInProcBackend(capacity int) *InProcBackend {
	if capacity <= 0 {
		capacity = defaultInProcCapacity
	}
	return &InProcBackend{
		ch:     make(chan Payload, capacity),
		closed: make(chan struct{}),
	}
}

// Publish implements Backend. A full channel reports ErrQueueFull instead of
// blocking the pump.
func (b *InProcBackend) Publish(ctx context.Context, p Payload) error {
	select {
	case <-b.closed:
		return ErrQueueFull
	case b.ch <- p:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue implements Backend.
func (b *InProcBackend) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.closed:
		return nil, nil
	case <-timer.C:
		return nil, nil
	case p := <-b.ch:
		return &Delivery{
			Payload:       p,
			Receipt:       strconv.FormatInt(b.seq.Add(1), 10),
			DeliveryCount: 1,
		}, nil
	}
}

// Ack implements Backend. Channel receive already consumed the entry, so ack
// is a no-op; an un-acked in-process delivery is simply lost on crash.
func (b *InProcBackend) Ack(ctx context.Context, d *Delivery) error { return nil }

// Ping implements Backend.
func (b *InProcBackend) Ping(ctx context.Context) error { return nil }

// Close implements Backend.
func (b *InProcBackend) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

// Compile-time interface check.
var _ Backend = (*InProcBackend)(nil)
