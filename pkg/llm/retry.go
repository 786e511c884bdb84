package llm

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// retryProvider wraps a CompletionProvider and retries rate_limited and
// upstream_unavailable failures with exponential backoff. Defaults follow the
// orchestration contract: at most 2 retries (3 attempts), base delay 500ms,
// per-delay cap 4s, and a 10s budget across the whole sequence.
type retryProvider struct {
	inner      CompletionProvider
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	budget     time.Duration
	logger     *slog.Logger
}

// RetryOption configures the retry decorator.
type RetryOption func(*retryProvider)

// RetryMaxRetries sets how many times a failed call is retried (default 2).
func RetryMaxRetries(n int) RetryOption {
	return func(r *retryProvider) { r.maxRetries = n }
}

// RetryBaseDelay sets the delay before the first retry; each subsequent delay
// doubles (default 500ms).
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.baseDelay = d }
}

// RetryMaxDelay caps a single backoff delay (default 4s).
func RetryMaxDelay(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.maxDelay = d }
}

// RetryBudget bounds the whole retry sequence; attempts stop when it is
// exhausted (default 10s).
func RetryBudget(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.budget = d }
}

// RetryLogger sets the logger for retry warnings (default slog.Default()).
func RetryLogger(l *slog.Logger) RetryOption {
	return func(r *retryProvider) { r.logger = l }
}

// WithRetry wraps p with bounded-backoff retry on retryable provider errors.
// When the provider reports Retry-After, the delay is at least that long
// (still capped by RetryMaxDelay). Fatal kinds (invalid_input, auth) and
// context errors pass through immediately.
func WithRetry(p CompletionProvider, opts ...RetryOption) CompletionProvider {
	r := &retryProvider{
		inner:      p,
		maxRetries: 2,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   4 * time.Second,
		budget:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Complete implements CompletionProvider with retry.
func (r *retryProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	ctx, cancel := r.withBudget(ctx)
	defer cancel()

	var last error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		result, err := r.inner.Complete(ctx, req)
		if err == nil || !IsRetryable(err) {
			return result, err
		}
		last = err
		r.logger.WarnContext(ctx, "retrying provider error",
			"model", req.Model,
			"status", statusOf(err),
			"attempt", attempt+1,
			"max_retries", r.maxRetries)
		if attempt < r.maxRetries {
			timer := time.NewTimer(r.delay(attempt, err))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	r.logger.ErrorContext(ctx, "provider retries exhausted",
		"model", req.Model,
		"retries", r.maxRetries,
		"error", last)
	return nil, last
}

// delay computes the sleep before retry attempt i (0-indexed): exponential
// base*2^i with up to 50% jitter, raised to the server's Retry-After when
// larger, and capped at maxDelay.
func (r *retryProvider) delay(i int, err error) time.Duration {
	exp := r.baseDelay * (1 << i)
	d := exp + time.Duration(rand.Int63n(int64(exp)/2+1))
	if ra := retryAfterOf(err); ra > d {
		d = ra
	}
	if d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

// withBudget applies the sequence budget unless the caller's deadline is
// already earlier.
func (r *retryProvider) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.budget <= 0 {
		return ctx, func() {}
	}
	deadline := time.Now().Add(r.budget)
	if existing, ok := ctx.Deadline(); ok && existing.Before(deadline) {
		return ctx, func() {}
	}
	return context.WithDeadline(ctx, deadline)
}

// Compile-time interface check.
var _ CompletionProvider = (*retryProvider)(nil)
