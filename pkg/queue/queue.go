package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

// Queue is the one contract callers see over either delivery backend plus
// the durable jobs store. Submission normally flows through the outbox
// (store.Jobs.CreateWithAnalysis + Pump); Enqueue exists for jobs created
// outside an analysis transaction.
type Queue struct {
	backend Backend
	jobs    store.Jobs
	logger  *slog.Logger
}

// New wires a queue facade.
func New(backend Backend, jobs store.Jobs, logger *slog.Logger) *Queue {
	if backend == nil {
		panic("queue.New: backend is required")
	}
	if jobs == nil {
		panic("queue.New: jobs store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{backend: backend, jobs: jobs, logger: logger}
}

// Enqueue publishes an already-persisted job directly, bypassing the pump.
func (q *Queue) Enqueue(ctx context.Context, j *models.Job) (string, error) {
	if err := q.backend.Publish(ctx, payloadFor(j)); err != nil {
		return "", err
	}
	return j.ID, nil
}

// Dequeue blocks up to timeout for the next delivery; nil when none arrived.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	return q.backend.Dequeue(ctx, timeout)
}

// Ack marks the delivery consumed. Idempotent.
func (q *Queue) Ack(ctx context.Context, d *Delivery) error {
	return q.backend.Ack(ctx, d)
}

// Nack records a delivery failure. The job's attempts are bumped and it is
// either requeued for republication by the pump or, at the attempt ceiling,
// marked failed. The delivery itself is acked so the backend does not also
// redeliver it.
func (q *Queue) Nack(ctx context.Context, d *Delivery, reason string) error {
	j, err := q.jobs.RequeueForRetry(ctx, d.JobID, reason, models.MaxJobAttempts)
	if err != nil {
		return fmt.Errorf("failed to requeue job %s: %w", d.JobID, err)
	}
	if j.Status == models.JobStatusFailed {
		q.logger.ErrorContext(ctx, "job failed after max attempts",
			"job_id", j.ID,
			"attempts", j.Attempts,
			"error", reason,
		)
	} else {
		q.logger.WarnContext(ctx, "job requeued",
			"job_id", j.ID,
			"attempts", j.Attempts,
			"error", reason,
		)
	}
	return q.backend.Ack(ctx, d)
}

// Status reports the durable job state.
func (q *Queue) Status(ctx context.Context, jobID string) (*models.Job, error) {
	return q.jobs.Get(ctx, jobID)
}

// Ping reports delivery-backend reachability.
func (q *Queue) Ping(ctx context.Context) error {
	return q.backend.Ping(ctx)
}

func payloadFor(j *models.Job) Payload {
	return Payload{
		JobID:      j.ID,
		Type:       j.Type,
		AnalysisID: j.AnalysisID,
		OrgID:      j.OrgID,
	}
}
