package agent

import (
	"time"

	"github.com/boardroomhq/boardroom/pkg/models"
)

// AgentMetadata is the per-agent outcome recorded during one run.
type AgentMetadata struct {
	Status       models.AgentStatus
	Start        time.Time
	End          time.Time
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Error        string
}

// LatencyMS returns the agent call duration in milliseconds.
func (m AgentMetadata) LatencyMS() int64 {
	if m.Start.IsZero() || m.End.IsZero() {
		return 0
	}
	return m.End.Sub(m.Start).Milliseconds()
}

// Aggregates are the run-level totals serialized onto the analysis row.
type Aggregates struct {
	TokensIn    int
	TokensOut   int
	TokensTotal int
	CostUSD     float64
	LatencyMS   int64
}

// ExecutionContext is the in-memory working state of one analysis run. It is
// owned exclusively by the worker goroutine running the analysis: the
// orchestrator that receives it is the only writer, so no locking is needed.
// It is serialized into the analysis and agent_output rows when the run ends.
type ExecutionContext struct {
	ExecutionID  string
	OrgID        string
	AnalysisID   string
	Problem      string
	BusinessType string
	Depth        models.Depth
	Industry     string

	Outputs  map[string]string
	Metadata map[string]AgentMetadata

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// NewExecutionContext builds the working state for one analysis.
func NewExecutionContext(executionID string, a *models.Analysis) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID:  executionID,
		OrgID:        a.OrgID,
		AnalysisID:   a.ID,
		Problem:      a.Problem,
		BusinessType: a.BusinessType,
		Industry:     a.Industry,
		Depth:        a.Depth,
		Outputs:      make(map[string]string),
		Metadata:     make(map[string]AgentMetadata),
		CreatedAt:    a.CreatedAt,
	}
}

// Output returns the recorded output text for an agent and whether the agent
// has one.
func (ec *ExecutionContext) Output(agentName string) (string, bool) {
	text, ok := ec.Outputs[agentName]
	return text, ok
}

// Record stores an agent's output and metadata in one step.
func (ec *ExecutionContext) Record(agentName, output string, meta AgentMetadata) {
	ec.Outputs[agentName] = output
	ec.Metadata[agentName] = meta
}

// Completed reports whether the named agent settled as completed.
func (ec *ExecutionContext) Completed(agentName string) bool {
	return ec.Metadata[agentName].Status == models.AgentStatusCompleted
}

// Aggregate sums token and cost totals across all recorded agents and
// computes the wall latency max(end) - min(start).
func (ec *ExecutionContext) Aggregate() Aggregates {
	var agg Aggregates
	var earliest, latest time.Time
	for _, meta := range ec.Metadata {
		agg.TokensIn += meta.InputTokens
		agg.TokensOut += meta.OutputTokens
		agg.CostUSD += meta.CostUSD
		if !meta.Start.IsZero() && (earliest.IsZero() || meta.Start.Before(earliest)) {
			earliest = meta.Start
		}
		if meta.End.After(latest) {
			latest = meta.End
		}
	}
	agg.TokensTotal = agg.TokensIn + agg.TokensOut
	if !earliest.IsZero() && latest.After(earliest) {
		agg.LatencyMS = latest.Sub(earliest).Milliseconds()
	}
	return agg
}
