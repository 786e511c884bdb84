package queue

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

// Pump defaults.
const (
	defaultPumpInterval = time.Second
	defaultPumpBatch    = 32
)

// Pump relays unpublished outbox entries to the delivery backend. Jobs are
// inserted in the same transaction as their analysis; the pump is the only
// publisher, so a crash between commit and publish delays a job by at most
// one poll interval instead of losing it.
type Pump struct {
	jobs     store.Jobs
	backend  Backend
	interval time.Duration
	batch    int
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPump builds an outbox pump.
func NewPump(jobs store.Jobs, backend Backend, logger *slog.Logger) *Pump {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pump{
		jobs:     jobs,
		backend:  backend,
		interval: defaultPumpInterval,
		batch:    defaultPumpBatch,
		logger:   logger.With("component", "outbox_pump"),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the pump goroutine.
func (p *Pump) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

// Stop signals the pump and waits for it to finish the current pass. Safe to
// call multiple times.
func (p *Pump) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Pump) run(ctx context.Context) {
	defer p.wg.Done()
	p.logger.Info("outbox pump started", "interval", p.interval.String())

	for {
		published, err := p.pumpOnce(ctx)
		if err != nil {
			p.logger.Error("outbox pass failed", "error", err)
		}

		// A full batch means more may be waiting; re-poll immediately.
		if err == nil && published == p.batch {
			continue
		}

		select {
		case <-p.stopCh:
			p.logger.Info("outbox pump stopped")
			return
		case <-ctx.Done():
			p.logger.Info("outbox pump stopped", "reason", "context cancelled")
			return
		case <-time.After(p.jitteredInterval()):
		}
	}
}

// pumpOnce claims one batch of unpublished jobs and publishes them. The
// claim-and-mark runs inside the store so concurrent pumps never
// double-publish.
func (p *Pump) pumpOnce(ctx context.Context) (int, error) {
	published, err := p.jobs.PublishPending(ctx, p.batch, func(ctx context.Context, j *models.Job) error {
		return p.backend.Publish(ctx, payloadFor(j))
	})
	if err != nil {
		return 0, err
	}
	if published > 0 {
		p.logger.Debug("outbox entries published", "count", published)
	}
	return published, nil
}

// jitteredInterval spreads pump wakeups by ±20% so multiple pumps do not
// synchronize their claims.
func (p *Pump) jitteredInterval() time.Duration {
	jitter := p.interval / 5
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return p.interval - jitter + offset
}
