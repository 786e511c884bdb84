package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream layout.
const (
	defaultStream     = "boardroom:jobs"
	defaultDeadStream = "boardroom:jobs:dead"
	defaultGroup      = "workers"
)

// defaultVisibilityTimeout is how long a dequeued entry stays invisible
// before the reclaimer hands it out again.
const defaultVisibilityTimeout = 600 * time.Second

// reclaimInterval is how often pending entries are scanned for expiry.
const reclaimInterval = time.Minute

// RedisBackend is the distributed delivery backend on a Redis Streams
// consumer group. Entries are appended with XADD, delivered with XREADGROUP,
// and acked with XACK+XDEL. A reclaimer goroutine re-publishes entries whose
// visibility timeout elapsed; entries past the attempt ceiling are
// dead-lettered instead so one poison message cannot wedge the stream.
type RedisBackend struct {
	client      *redis.Client
	stream      string
	deadStream  string
	group       string
	consumer    string
	visibility  time.Duration
	maxAttempts int
	logger      *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// RedisOption configures the backend.
type RedisOption func(*RedisBackend)

// RedisVisibilityTimeout overrides the default 600s redelivery window.
func RedisVisibilityTimeout(d time.Duration) RedisOption {
	return func(b *RedisBackend) { b.visibility = d }
}

// RedisMaxAttempts overrides the delivery ceiling before dead-lettering.
func RedisMaxAttempts(n int) RedisOption {
	return func(b *RedisBackend) { b.maxAttempts = n }
}

// RedisLogger sets the reclaimer logger.
func RedisLogger(l *slog.Logger) RedisOption {
	return func(b *RedisBackend) { b.logger = l }
}

// NewRedisBackend connects to url, ensures the consumer group exists, and
// starts the reclaimer. consumer should identify this process (pod id).
func NewRedisBackend(ctx context.Context, url, consumer string, opts ...RedisOption) (*RedisBackend, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse queue url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to queue: %w", err)
	}
	b, err := newRedisBackend(ctx, client, consumer, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return b, nil
}

// NewRedisBackendFromClient wraps an existing client; used in tests.
func NewRedisBackendFromClient(ctx context.Context, client *redis.Client, consumer string, opts ...RedisOption) (*RedisBackend, error) {
	return newRedisBackend(ctx, client, consumer, opts...)
}

func newRedisBackend(ctx context.Context, client *redis.Client, consumer string, opts ...RedisOption) (*RedisBackend, error) {
	b := &RedisBackend{
		client:      client,
		stream:      defaultStream,
		deadStream:  defaultDeadStream,
		group:       defaultGroup,
		consumer:    consumer,
		visibility:  defaultVisibilityTimeout,
		maxAttempts: 3,
		logger:      slog.Default(),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	err := client.XGroupCreateMkStream(ctx, b.stream, b.group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	b.wg.Add(1)
	go b.runReclaimer()
	return b, nil
}

func isBusyGroup(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

// Publish implements Backend.
func (b *RedisBackend) Publish(ctx context.Context, p Payload) error {
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: payloadValues(p, 1),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish job %s: %w", p.JobID, err)
	}
	return nil
}

// Dequeue implements Backend.
func (b *RedisBackend) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumer,
		Streams:  []string{b.stream, ">"},
		Count:    1,
		Block:    timeout,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			return deliveryFromMessage(msg), nil
		}
	}
	return nil, nil
}

// Ack implements Backend. XACK of an already-acked or unknown id is a no-op,
// which makes ack idempotent.
func (b *RedisBackend) Ack(ctx context.Context, d *Delivery) error {
	pipe := b.client.TxPipeline()
	pipe.XAck(ctx, b.stream, b.group, d.Receipt)
	pipe.XDel(ctx, b.stream, d.Receipt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack delivery %s: %w", d.Receipt, err)
	}
	return nil
}

// Ping implements Backend.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close stops the reclaimer and releases the client.
func (b *RedisBackend) Close() error {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
	return b.client.Close()
}

// runReclaimer periodically requeues pending entries whose visibility
// timeout elapsed. Every pod runs one; the claim step makes the scan safe to
// run concurrently.
func (b *RedisBackend) runReclaimer() {
	defer b.wg.Done()
	ticker := time.NewTicker(reclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := b.reclaimExpired(ctx); err != nil {
				b.logger.Error("queue reclaim pass failed", "error", err)
			}
			cancel()
		}
	}
}

// reclaimExpired scans pending entries older than the visibility timeout.
// Entries under the attempt ceiling are re-published as fresh stream entries
// with the attempt count bumped; entries at the ceiling go to the dead-letter
// stream. The expired original is acked either way.
func (b *RedisBackend) reclaimExpired(ctx context.Context) error {
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: b.stream,
		Group:  b.group,
		Idle:   b.visibility,
		Start:  "-",
		End:    "+",
		Count:  64,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to scan pending entries: %w", err)
	}

	for _, entry := range pending {
		claimed, err := b.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   b.stream,
			Group:    b.group,
			Consumer: b.consumer + "-reclaimer",
			MinIdle:  b.visibility,
			Messages: []string{entry.ID},
		}).Result()
		if err != nil && err != redis.Nil {
			b.logger.Warn("failed to claim expired entry", "entry_id", entry.ID, "error", err)
			continue
		}
		// Another pod won the claim race, or the entry was acked meanwhile.
		if len(claimed) == 0 {
			continue
		}

		d := deliveryFromMessage(claimed[0])
		if int(entry.RetryCount) >= b.maxAttempts || d.DeliveryCount >= b.maxAttempts {
			if err := b.deadLetter(ctx, d); err != nil {
				b.logger.Error("failed to dead-letter entry", "entry_id", entry.ID, "error", err)
				continue
			}
			b.logger.Warn("job dead-lettered after max deliveries",
				"job_id", d.JobID,
				"deliveries", d.DeliveryCount,
			)
		} else {
			if err := b.client.XAdd(ctx, &redis.XAddArgs{
				Stream: b.stream,
				Values: payloadValues(d.Payload, d.DeliveryCount+1),
			}).Err(); err != nil {
				b.logger.Error("failed to requeue expired entry", "entry_id", entry.ID, "error", err)
				continue
			}
			b.logger.Info("expired delivery requeued",
				"job_id", d.JobID,
				"delivery", d.DeliveryCount+1,
			)
		}
		if err := b.Ack(ctx, d); err != nil {
			b.logger.Warn("failed to ack reclaimed entry", "entry_id", entry.ID, "error", err)
		}
	}
	return nil
}

func (b *RedisBackend) deadLetter(ctx context.Context, d *Delivery) error {
	values := payloadValues(d.Payload, d.DeliveryCount)
	values["dead_lettered_at"] = time.Now().UTC().Format(time.RFC3339)
	return b.client.XAdd(ctx, &redis.XAddArgs{Stream: b.deadStream, Values: values}).Err()
}

func payloadValues(p Payload, delivery int) map[string]any {
	return map[string]any{
		"job_id":      p.JobID,
		"type":        p.Type,
		"analysis_id": p.AnalysisID,
		"org_id":      p.OrgID,
		"delivery":    strconv.Itoa(delivery),
	}
}

func deliveryFromMessage(msg redis.XMessage) *Delivery {
	field := func(name string) string {
		if v, ok := msg.Values[name].(string); ok {
			return v
		}
		return ""
	}
	count, _ := strconv.Atoi(field("delivery"))
	if count < 1 {
		count = 1
	}
	return &Delivery{
		Payload: Payload{
			JobID:      field("job_id"),
			Type:       field("type"),
			AnalysisID: field("analysis_id"),
			OrgID:      field("org_id"),
		},
		Receipt:       msg.ID,
		DeliveryCount: count,
	}
}

// Compile-time interface check.
var _ Backend = (*RedisBackend)(nil)
