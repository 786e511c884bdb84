package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/boardroomhq/boardroom/pkg/agent/prompt"
	"github.com/boardroomhq/boardroom/pkg/llm"
	"github.com/boardroomhq/boardroom/pkg/models"
)

// DependencyOutputCap bounds how much of a dependency's output is included
// in a downstream agent's user message.
const DependencyOutputCap = 8000

// truncationMarker is appended when a dependency output exceeds the cap.
const truncationMarker = "[truncated]"

// RunStatus is the aggregate outcome of one orchestration.
type RunStatus string

const (
	RunCompleted      RunStatus = "completed"
	RunPartialFailure RunStatus = "partial_failure"
	RunFailed         RunStatus = "failed"
)

// Result is what Execute hands back to the worker: the mutated context plus
// the aggregate status derived from the per-agent outcomes.
type Result struct {
	Status  RunStatus
	Context *ExecutionContext
}

// Orchestrator runs the agent panel in dependency layers with full in-layer
// parallelism. It never touches persistence; the caller stores the returned
// context.
type Orchestrator struct {
	provider llm.CompletionProvider
	prompts  *prompt.Store
	defs     map[string]Definition
	order    []string
	layers   [][]string
	disabled []string
	logger   *slog.Logger
}

// NewOrchestrator validates the panel against the enabled set and resolves
// the execution layers. defs is the full panel; enabled applies the plan's
// agent gate (nil enables everything). Disabled agents are recorded as
// skipped and their outputs substitute unavailability sentinels downstream.
func NewOrchestrator(provider llm.CompletionProvider, prompts *prompt.Store, defs []Definition, enabled map[string]bool, logger *slog.Logger) (*Orchestrator, error) {
	if provider == nil {
		panic("NewOrchestrator: provider is required")
	}
	if prompts == nil {
		panic("NewOrchestrator: prompt store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if enabled == nil {
		enabled = make(map[string]bool, len(defs))
		for _, d := range defs {
			enabled[d.Name] = true
		}
	}

	byName := make(map[string]Definition, len(defs))
	order := make([]string, 0, len(defs))
	var disabled []string
	for _, d := range defs {
		if !prompts.Has(d.TemplateID) {
			return nil, fmt.Errorf("agent %q references unknown template %q", d.Name, d.TemplateID)
		}
		byName[d.Name] = d
		order = append(order, d.Name)
		if !enabled[d.Name] {
			disabled = append(disabled, d.Name)
		}
	}

	layers, err := ResolveLayers(Subgraph(defs, enabled))
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		provider: provider,
		prompts:  prompts,
		defs:     byName,
		order:    order,
		layers:   layers,
		disabled: disabled,
		logger:   logger,
	}, nil
}

// Layers returns the resolved execution plan (enabled agents only).
func (o *Orchestrator) Layers() [][]string {
	return o.layers
}

// EnabledDefinitions returns the definitions that will actually run, in
// panel order. Used by the worker to budget the run deadline.
func (o *Orchestrator) EnabledDefinitions() []Definition {
	var defs []Definition
	for _, layer := range o.layers {
		for _, name := range layer {
			defs = append(defs, o.defs[name])
		}
	}
	return defs
}

// indexedAgentResult pairs an agentResult with its launch index so layer
// results can be collected in a deterministic order.
type indexedAgentResult struct {
	index  int
	result agentResult
}

type agentResult struct {
	name   string
	output string
	meta   AgentMetadata
}

// Execute runs the panel against ec. All agents in a layer run in parallel
// and must settle before the next layer begins; a failure never cancels
// siblings. The context deadline bounds the whole run.
func (o *Orchestrator) Execute(ctx context.Context, ec *ExecutionContext) Result {
	logger := o.logger.With(
		"execution_id", ec.ExecutionID,
		"org_id", ec.OrgID,
	)

	ec.StartedAt = time.Now().UTC()
	logger.InfoContext(ctx, "execution_started",
		"analysis_id", ec.AnalysisID,
		"depth", string(ec.Depth),
	)
	enabledCount := 0
	for _, layer := range o.layers {
		enabledCount += len(layer)
	}
	logger.InfoContext(ctx, "execution_plan",
		"layers", formatPlan(o.layers),
		"agent_count", enabledCount,
		"skipped", len(o.disabled),
	)

	// Plan-disabled agents settle immediately as skipped so that downstream
	// message building and persistence see them.
	for _, name := range o.disabled {
		ec.Record(name, "", AgentMetadata{Status: models.AgentStatusSkipped})
	}

	for i, layer := range o.layers {
		layerLogger := logger.With("layer", i+1)
		layerLogger.InfoContext(ctx, "layer_started", "agents", strings.Join(layer, ","))
		layerStart := time.Now()

		results := make(chan indexedAgentResult, len(layer))
		var wg sync.WaitGroup
		for idx, name := range layer {
			wg.Add(1)
			go func(idx int, def Definition) {
				defer wg.Done()
				results <- indexedAgentResult{index: idx, result: o.executeAgent(ctx, def, ec, logger)}
			}(idx, o.defs[name])
		}
		wg.Wait()
		close(results)

		failures := 0
		for _, r := range collectAndSort(results) {
			ec.Record(r.name, r.output, r.meta)
			if r.meta.Status != models.AgentStatusCompleted {
				failures++
			}
		}

		if failures > 0 {
			layerLogger.InfoContext(ctx, "layer_completed_with_failures",
				"failures", failures,
				"duration_ms", time.Since(layerStart).Milliseconds(),
			)
		} else {
			layerLogger.InfoContext(ctx, "layer_completed",
				"duration_ms", time.Since(layerStart).Milliseconds(),
			)
		}
	}

	ec.CompletedAt = time.Now().UTC()
	status := o.aggregateStatus(ec)
	agg := ec.Aggregate()

	event := "execution_completed"
	switch status {
	case RunPartialFailure:
		event = "execution_partial_failure"
	case RunFailed:
		event = "execution_failed"
	}
	logger.InfoContext(ctx, event,
		"analysis_id", ec.AnalysisID,
		"status", string(status),
		"duration_ms", agg.LatencyMS,
		"tokens", agg.TokensTotal,
		"cost_usd", agg.CostUSD,
	)

	return Result{Status: status, Context: ec}
}

// executeAgent performs one templated provider call under the agent's
// timeout and returns the settled result. It never returns early on sibling
// failures; dependency gaps degrade into sentinels.
func (o *Orchestrator) executeAgent(ctx context.Context, def Definition, ec *ExecutionContext, logger *slog.Logger) agentResult {
	agentLogger := logger.With("agent_name", def.Name)
	start := time.Now().UTC()
	agentLogger.InfoContext(ctx, "agent_started", "model", def.Model)

	meta := AgentMetadata{Status: models.AgentStatusRunning, Start: start}

	system, err := o.prompts.Render(def.TemplateID, prompt.Variables{
		BusinessType:     ec.BusinessType,
		Depth:            string(ec.Depth),
		DepthDescription: prompt.DepthDescription(ec.Depth),
		Industry:         ec.Industry,
	})
	if err != nil {
		// Templates are validated at startup; this is a programmer error path.
		meta.Status = models.AgentStatusFailed
		meta.End = time.Now().UTC()
		meta.Error = err.Error()
		agentLogger.ErrorContext(ctx, "agent_failed", "error", err.Error(), "duration_ms", meta.LatencyMS())
		return agentResult{name: def.Name, meta: meta}
	}

	callCtx, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()

	completion, err := o.provider.Complete(callCtx, llm.CompletionRequest{
		System:    system,
		User:      o.buildUserMessage(def, ec),
		Model:     def.Model,
		MaxTokens: MaxTokensFor(ec.Depth),
	})
	meta.End = time.Now().UTC()

	switch {
	case err == nil:
		meta.Status = models.AgentStatusCompleted
		meta.InputTokens = completion.InputTokens
		meta.OutputTokens = completion.OutputTokens
		meta.CostUSD = llm.CostUSD(def.Model, completion.InputTokens, completion.OutputTokens)
		agentLogger.InfoContext(ctx, "agent_completed",
			"duration_ms", meta.LatencyMS(),
			"tokens", completion.TotalTokens(),
			"cost_usd", meta.CostUSD,
		)
		return agentResult{name: def.Name, output: completion.Text, meta: meta}

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		meta.Status = models.AgentStatusTimeout
		meta.Error = fmt.Sprintf("timeout after %s", def.Timeout)
		agentLogger.WarnContext(ctx, "agent_timeout",
			"duration_ms", meta.LatencyMS(),
			"error", meta.Error,
		)
		return agentResult{name: def.Name, meta: meta}

	default:
		meta.Status = models.AgentStatusFailed
		meta.Error = err.Error()
		agentLogger.ErrorContext(ctx, "agent_failed",
			"duration_ms", meta.LatencyMS(),
			"error", meta.Error,
		)
		return agentResult{name: def.Name, meta: meta}
	}
}

// buildUserMessage assembles the problem text plus each dependency's
// contribution. Satisfied dependencies are truncated to DependencyOutputCap;
// unsatisfied ones substitute a sentinel so the agent continues with partial
// context. The dependency list here is the panel's full list, so
// plan-disabled ancestors surface as unavailable rather than silently
// vanishing.
func (o *Orchestrator) buildUserMessage(def Definition, ec *ExecutionContext) string {
	var sb strings.Builder
	sb.WriteString("Business problem:\n")
	sb.WriteString(ec.Problem)

	for _, dep := range def.DependsOn {
		sb.WriteString("\n\n## Contribution from ")
		sb.WriteString(dep)
		sb.WriteString("\n")
		if ec.Completed(dep) {
			output, _ := ec.Output(dep)
			sb.WriteString(truncate(output, DependencyOutputCap))
		} else {
			sb.WriteString(fmt.Sprintf("[unavailable: %s failed]", dep))
		}
	}
	return sb.String()
}

// aggregateStatus derives the run outcome. The terminal layer holds the
// consolidating agent (the reviewer on the default panel): if it did not
// complete the run failed, because nothing consolidated the report. If it
// completed but an earlier agent did not, the run is a partial failure.
// Skipped rows from the plan gate do not count against completion.
func (o *Orchestrator) aggregateStatus(ec *ExecutionContext) RunStatus {
	if len(o.layers) == 0 {
		return RunFailed
	}
	for _, name := range o.layers[len(o.layers)-1] {
		if !ec.Completed(name) {
			return RunFailed
		}
	}
	for _, layer := range o.layers[:len(o.layers)-1] {
		for _, name := range layer {
			if !ec.Completed(name) {
				return RunPartialFailure
			}
		}
	}
	return RunCompleted
}

// collectAndSort drains the results channel and orders results by launch
// index.
func collectAndSort(ch <-chan indexedAgentResult) []agentResult {
	var indexed []indexedAgentResult
	for r := range ch {
		indexed = append(indexed, r)
	}
	sort.Slice(indexed, func(i, j int) bool { return indexed[i].index < indexed[j].index })
	results := make([]agentResult, len(indexed))
	for i, r := range indexed {
		results[i] = r.result
	}
	return results
}

// truncate caps s and appends the truncation marker when it was cut.
func truncate(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	// Ensure we don't split a multi-byte UTF-8 character.
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n" + truncationMarker
}

func formatPlan(layers [][]string) string {
	parts := make([]string, len(layers))
	for i, layer := range layers {
		parts[i] = "[" + strings.Join(layer, " ") + "]"
	}
	return strings.Join(parts, " ")
}
