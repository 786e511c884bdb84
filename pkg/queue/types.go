// Package queue implements the asynchronous job pipeline: a transactional
// outbox pump, two interchangeable delivery backends (Redis Streams for
// distributed deployments, a bounded channel for single-node), and the worker
// pool that turns queued run_analysis jobs into orchestrator runs.
//
// Durable job state lives in the jobs store; backends move opaque payloads.
// Delivery is at-least-once: workers are idempotent against duplicates and a
// job is retried at most models.MaxJobAttempts times before it is marked
// failed.
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrQueueFull is reported by the in-process backend when its channel is
	// at capacity. Callers surface it as a retryable store_busy condition.
	ErrQueueFull = errors.New("queue full")
)

// Payload is what travels through a delivery backend. Everything else about
// the job is read from the store by job id.
type Payload struct {
	JobID      string `json:"job_id"`
	Type       string `json:"type"`
	AnalysisID string `json:"analysis_id"`
	OrgID      string `json:"org_id"`
}

// Delivery is one received payload plus backend bookkeeping. Receipt
// identifies the delivery for ack; DeliveryCount is how many times the
// backend has handed this entry out (1 on first delivery).
type Delivery struct {
	Payload
	Receipt       string
	DeliveryCount int
}

// Backend moves payloads between the outbox pump and workers. Both
// implementations present identical semantics; callers never branch on the
// backend in use.
type Backend interface {
	// Publish appends the payload for delivery.
	Publish(ctx context.Context, p Payload) error

	// Dequeue blocks up to timeout for the next delivery and returns nil when
	// none arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error)

	// Ack marks the delivery as consumed. Idempotent.
	Ack(ctx context.Context, d *Delivery) error

	// Ping reports backend reachability for readiness checks.
	Ping(ctx context.Context) error

	Close() error
}
