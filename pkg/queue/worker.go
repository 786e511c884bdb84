package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boardroomhq/boardroom/pkg/agent"
	"github.com/boardroomhq/boardroom/pkg/agent/prompt"
	"github.com/boardroomhq/boardroom/pkg/cache"
	"github.com/boardroomhq/boardroom/pkg/llm"
	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/quota"
	"github.com/boardroomhq/boardroom/pkg/store"
)

// Run bounds.
const (
	// defaultDequeueTimeout is how long one dequeue blocks before looping.
	defaultDequeueTimeout = 30 * time.Second

	// runSlack is added to the sum of per-agent timeouts for the run deadline.
	runSlack = 30 * time.Second

	// runHardCap bounds one orchestration no matter how the panel is tuned.
	runHardCap = 10 * time.Minute

	// memoTTL is how long completed outputs are replayable from the cache.
	memoTTL = 24 * time.Hour
)

// Worker dequeues run_analysis jobs, drives the orchestrator, and persists
// the outcome. Workers are safe against duplicate deliveries: a terminal or
// already-running analysis is acked without re-running.
type Worker struct {
	id       string
	queue    *Queue
	store    *store.Store
	provider llm.CompletionProvider
	prompts  *prompt.Store
	panel    []agent.Definition
	memo     cache.Memo
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker builds one worker. memo may be nil (memoization disabled).
func NewWorker(id string, q *Queue, st *store.Store, provider llm.CompletionProvider, prompts *prompt.Store, panel []agent.Definition, memo cache.Memo, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		id:       id,
		queue:    q,
		store:    st,
		provider: provider,
		prompts:  prompts,
		panel:    panel,
		memo:     memo,
		logger:   logger.With("worker_id", id),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the dequeue loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker and waits for its current job to finish. Safe to
// call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	w.logger.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			w.logger.Info("worker shutting down")
			return
		case <-ctx.Done():
			w.logger.Info("worker shutting down", "reason", "context cancelled")
			return
		default:
		}

		d, err := w.queue.Dequeue(ctx, defaultDequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("dequeue failed", "error", err)
			w.sleep(time.Second)
			continue
		}
		if d == nil {
			continue
		}
		if d.Type != models.JobTypeRunAnalysis {
			w.logger.Warn("unknown job type acked", "job_id", d.JobID, "type", d.Type)
			_ = w.queue.Ack(ctx, d)
			continue
		}
		w.process(ctx, d)
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// process runs one delivery end to end. Completion of any kind — including a
// failed analysis — acks the delivery, because redelivering would not change
// the outcome. Nack is reserved for infrastructure faults where a retry can
// help. Panics are recovered here: the analysis is failed and the delivery
// nacked.
func (w *Worker) process(ctx context.Context, d *Delivery) {
	logger := w.logger.With("job_id", d.JobID, "analysis_id", d.AnalysisID, "org_id", d.OrgID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during job processing",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			_ = w.store.Analyses.Fail(context.Background(), d.OrgID, d.AnalysisID, fmt.Sprintf("panic: %v", r))
			if err := w.queue.Nack(context.Background(), d, fmt.Sprintf("panic: %v", r)); err != nil {
				logger.Error("failed to nack after panic", "error", err)
			}
		}
	}()

	a, err := w.store.Analyses.Get(ctx, d.OrgID, d.AnalysisID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("analysis not found, acking delivery")
		_ = w.queue.Ack(ctx, d)
		return
	}
	if err != nil {
		w.nack(ctx, d, fmt.Errorf("failed to load analysis: %w", err), logger)
		return
	}

	// Duplicate delivery: another worker already took or finished this one.
	if a.Status != models.AnalysisStatusPending {
		logger.Info("duplicate delivery acked", "status", string(a.Status))
		_ = w.queue.Ack(ctx, d)
		return
	}

	org, err := w.store.Orgs.Get(ctx, d.OrgID)
	if err != nil {
		w.nack(ctx, d, fmt.Errorf("failed to load organization: %w", err), logger)
		return
	}

	if err := w.store.Jobs.MarkRunning(ctx, d.JobID); err != nil {
		w.nack(ctx, d, fmt.Errorf("failed to mark job running: %w", err), logger)
		return
	}
	err = w.store.Analyses.UpdateStatus(ctx, d.OrgID, d.AnalysisID, models.AnalysisStatusPending, models.AnalysisStatusRunning)
	if errors.Is(err, store.ErrStatusConflict) {
		logger.Info("lost claim race, acking delivery")
		_ = w.queue.Ack(ctx, d)
		return
	}
	if err != nil {
		w.nack(ctx, d, fmt.Errorf("failed to mark analysis running: %w", err), logger)
		return
	}

	res := w.runAnalysis(ctx, a, org, logger)

	// Terminal writes use a background context: the job context may already
	// be cancelled by shutdown or the run deadline.
	if err := w.store.Analyses.Finish(context.Background(), d.OrgID, res); err != nil {
		w.nack(ctx, d, fmt.Errorf("failed to persist analysis result: %w", err), logger)
		return
	}
	if err := w.store.Jobs.MarkDone(context.Background(), d.JobID); err != nil {
		logger.Error("failed to mark job done", "error", err)
	}
	if err := w.queue.Ack(context.Background(), d); err != nil {
		logger.Error("failed to ack delivery", "error", err)
	}
	logger.Info("job processing complete", "status", string(res.Status), "partial_failure", res.PartialFailure)
}

// runAnalysis executes the panel (or replays memoized outputs) and shapes the
// persistable result.
func (w *Worker) runAnalysis(ctx context.Context, a *models.Analysis, org *models.Organization, logger *slog.Logger) *store.AnalysisResult {
	memoKey := cache.MemoKey(a.Problem, a.BusinessType, string(a.Depth), a.OrgID)
	if res, ok := w.memoLookup(ctx, memoKey, a, logger); ok {
		return res
	}

	enabled := quota.AgentsFor(org.Plan)
	orch, err := agent.NewOrchestrator(w.provider, w.prompts, w.panel, enabled, w.logger)
	if err != nil {
		// Panel misconfiguration; retrying the job cannot fix it.
		logger.Error("failed to construct orchestrator", "error", err)
		return &store.AnalysisResult{
			AnalysisID:  a.ID,
			Status:      models.AnalysisStatusFailed,
			Error:       "orchestrator configuration error",
			CompletedAt: time.Now().UTC(),
		}
	}

	deadline := agent.TimeoutBudget(orch.EnabledDefinitions()) + runSlack
	if deadline > runHardCap {
		deadline = runHardCap
	}
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ec := agent.NewExecutionContext(uuid.New().String(), a)
	result := orch.Execute(runCtx, ec)
	res := resultFor(a, result)

	if result.Status == agent.RunCompleted {
		w.memoStore(ctx, memoKey, res, logger)
	}
	return res
}

// resultFor serializes an execution into the rows Finish persists. A partial
// failure is promoted to a completed analysis with the flag set; only a
// failed consolidation fails the analysis row.
func resultFor(a *models.Analysis, result agent.Result) *store.AnalysisResult {
	ec := result.Context
	agg := ec.Aggregate()

	outputs := make([]*models.AgentOutput, 0, len(ec.Metadata))
	for name, meta := range ec.Metadata {
		output, _ := ec.Output(name)
		outputs = append(outputs, &models.AgentOutput{
			AnalysisID:  a.ID,
			AgentName:   name,
			Output:      output,
			Status:      meta.Status,
			TokensIn:    meta.InputTokens,
			TokensOut:   meta.OutputTokens,
			TokensTotal: meta.InputTokens + meta.OutputTokens,
			CostUSD:     meta.CostUSD,
			LatencyMS:   meta.LatencyMS(),
			Error:       meta.Error,
		})
	}

	res := &store.AnalysisResult{
		AnalysisID:  a.ID,
		CompletedAt: ec.CompletedAt,
		TokensIn:    agg.TokensIn,
		TokensOut:   agg.TokensOut,
		TokensTotal: agg.TokensTotal,
		CostUSD:     agg.CostUSD,
		LatencyMS:   agg.LatencyMS,
		Outputs:     outputs,
	}
	switch result.Status {
	case agent.RunCompleted:
		res.Status = models.AnalysisStatusCompleted
	case agent.RunPartialFailure:
		res.Status = models.AnalysisStatusCompleted
		res.PartialFailure = true
	default:
		res.Status = models.AnalysisStatusFailed
		res.Error = "consolidation did not complete"
	}
	return res
}

// memoRecord is the cached shape of one fully successful run.
type memoRecord struct {
	Outputs     []*models.AgentOutput `json:"outputs"`
	TokensIn    int                   `json:"tokens_in"`
	TokensOut   int                   `json:"tokens_out"`
	TokensTotal int                   `json:"tokens_total"`
	CostUSD     float64               `json:"cost_usd"`
	LatencyMS   int64                 `json:"latency_ms"`
}

// memoLookup replays a cached run for an identical (problem, type, depth)
// submission of the same org. The analysis row and quota behave exactly as on
// a miss; only the provider calls are skipped.
func (w *Worker) memoLookup(ctx context.Context, key string, a *models.Analysis, logger *slog.Logger) (*store.AnalysisResult, bool) {
	if w.memo == nil {
		return nil, false
	}
	raw, ok, err := w.memo.Get(ctx, key)
	if err != nil {
		// Cache trouble fails open: run the analysis normally.
		logger.Warn("memo lookup failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var rec memoRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		logger.Warn("memo entry malformed, ignoring", "error", err)
		return nil, false
	}

	outputs := make([]*models.AgentOutput, 0, len(rec.Outputs))
	for _, out := range rec.Outputs {
		replay := *out
		replay.AnalysisID = a.ID
		outputs = append(outputs, &replay)
	}
	logger.Info("memoized outputs replayed", "agents", len(outputs))
	return &store.AnalysisResult{
		AnalysisID:  a.ID,
		Status:      models.AnalysisStatusCompleted,
		CompletedAt: time.Now().UTC(),
		TokensIn:    rec.TokensIn,
		TokensOut:   rec.TokensOut,
		TokensTotal: rec.TokensTotal,
		CostUSD:     rec.CostUSD,
		LatencyMS:   rec.LatencyMS,
		Outputs:     outputs,
	}, true
}

func (w *Worker) memoStore(ctx context.Context, key string, res *store.AnalysisResult, logger *slog.Logger) {
	if w.memo == nil {
		return
	}
	raw, err := json.Marshal(memoRecord{
		Outputs:     res.Outputs,
		TokensIn:    res.TokensIn,
		TokensOut:   res.TokensOut,
		TokensTotal: res.TokensTotal,
		CostUSD:     res.CostUSD,
		LatencyMS:   res.LatencyMS,
	})
	if err != nil {
		logger.Warn("failed to marshal memo entry", "error", err)
		return
	}
	if err := w.memo.Set(ctx, key, raw, memoTTL); err != nil {
		logger.Warn("failed to store memo entry", "error", err)
	}
}

func (w *Worker) nack(ctx context.Context, d *Delivery, cause error, logger *slog.Logger) {
	logger.Error("infrastructure error during job processing", "error", cause)
	if err := w.queue.Nack(ctx, d, cause.Error()); err != nil {
		logger.Error("failed to nack delivery", "error", err)
	}
}
