package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/boardroomhq/boardroom/pkg/agent"
	"github.com/boardroomhq/boardroom/pkg/agent/prompt"
	"github.com/boardroomhq/boardroom/pkg/cache"
	"github.com/boardroomhq/boardroom/pkg/llm"
	"github.com/boardroomhq/boardroom/pkg/store"
)

// DefaultWorkerCount is min(8, 2 x GOMAXPROCS). Workers spend almost all
// their time blocked on provider calls, so the count is an I/O concurrency
// knob, not a CPU one; 8 keeps a small pod from opening too many provider
// connections.
func DefaultWorkerCount() int {
	n := 2 * runtime.GOMAXPROCS(0)
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// PoolConfig carries the collaborators every worker shares.
type PoolConfig struct {
	Workers  int // <= 0 uses DefaultWorkerCount
	Queue    *Queue
	Store    *store.Store
	Provider llm.CompletionProvider
	Prompts  *prompt.Store
	Panel    []agent.Definition
	Memo     cache.Memo // nil disables memoization
	Logger   *slog.Logger
}

// WorkerPool owns the consuming side of the queue: a fixed set of workers,
// the outbox pump, and the orphan sweeper, started and stopped together.
type WorkerPool struct {
	workers []*Worker
	pump    *Pump
	sweeper *Sweeper
	logger  *slog.Logger
}

// NewWorkerPool wires the pool. The pump publishes the outbox onto the
// queue's backend; the sweeper reclaims analyses whose worker died.
func NewWorkerPool(cfg PoolConfig) *WorkerPool {
	if cfg.Queue == nil {
		panic("NewWorkerPool: queue is required")
	}
	if cfg.Store == nil {
		panic("NewWorkerPool: store is required")
	}
	if cfg.Provider == nil {
		panic("NewWorkerPool: provider is required")
	}
	if cfg.Prompts == nil {
		panic("NewWorkerPool: prompt store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	count := cfg.Workers
	if count <= 0 {
		count = DefaultWorkerCount()
	}

	workers := make([]*Worker, count)
	for i := range workers {
		workers[i] = NewWorker(
			fmt.Sprintf("worker-%d", i+1),
			cfg.Queue,
			cfg.Store,
			cfg.Provider,
			cfg.Prompts,
			cfg.Panel,
			cfg.Memo,
			cfg.Logger,
		)
	}
	return &WorkerPool{
		workers: workers,
		pump:    NewPump(cfg.Store.Jobs, cfg.Queue.backend, cfg.Logger),
		sweeper: NewSweeper(cfg.Store, cfg.Logger),
		logger:  cfg.Logger,
	}
}

// Start launches the pump, the sweeper, and every worker.
func (p *WorkerPool) Start(ctx context.Context) {
	p.pump.Start(ctx)
	p.sweeper.Start(ctx)
	for _, w := range p.workers {
		w.Start(ctx)
	}
	p.logger.Info("worker pool started", "workers", len(p.workers))
}

// Stop drains the pool: the pump stops feeding first, then workers finish
// their in-flight jobs, then the sweeper stops. Safe to call multiple times.
func (p *WorkerPool) Stop() {
	p.pump.Stop()
	for _, w := range p.workers {
		w.Stop()
	}
	p.sweeper.Stop()
	p.logger.Info("worker pool stopped")
}
