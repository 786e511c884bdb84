package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/boardroomhq/boardroom/pkg/store"
)

// Sweep cadence.
const (
	defaultSweepInterval = 5 * time.Minute

	// defaultStaleAfter is how long an analysis may sit in running before the
	// sweeper treats its worker as lost. Comfortably above the run hard cap so
	// a slow but live run is never reclaimed.
	defaultStaleAfter = runHardCap + 5*time.Minute
)

// Sweeper fails analyses orphaned in the running state: their worker died
// after claiming the job but before writing a terminal status, so nothing
// else will ever finish them. Runs once at startup and then periodically.
type Sweeper struct {
	store      *store.Store
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper builds a sweeper with the default cadence.
func NewSweeper(st *store.Store, logger *slog.Logger) *Sweeper {
	if st == nil {
		panic("NewSweeper: store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:      st,
		interval:   defaultSweepInterval,
		staleAfter: defaultStaleAfter,
		logger:     logger.With("component", "orphan_sweep"),
		stopCh:     make(chan struct{}),
	}
}

// Start runs one immediate sweep and then the periodic loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop signals the sweeper and waits for the current pass. Safe to call
// multiple times.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce fails every orphaned running analysis found in one pass.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	staleBefore := time.Now().UTC().Add(-s.staleAfter)
	orphans, err := s.store.Jobs.RunningAnalysesWithoutLiveJob(ctx, staleBefore)
	if err != nil {
		s.logger.Error("orphan scan failed", "error", err)
		return
	}
	for _, a := range orphans {
		if err := s.store.Analyses.Fail(ctx, a.OrgID, a.ID, "worker lost"); err != nil {
			s.logger.Error("failed to reclaim orphaned analysis",
				"analysis_id", a.ID,
				"org_id", a.OrgID,
				"error", err,
			)
			continue
		}
		s.logger.Warn("worker_sweep_reclaimed",
			"analysis_id", a.ID,
			"org_id", a.OrgID,
		)
	}
}
