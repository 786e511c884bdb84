package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardroomhq/boardroom/pkg/agent/prompt"
	"github.com/boardroomhq/boardroom/pkg/llm"
	"github.com/boardroomhq/boardroom/pkg/models"
)

// Markers unique to each agent's system prompt, used to script the stub
// provider per agent.
const (
	markAnalyst    = "lead business analyst"
	markCommercial = "commercial strategist"
	markMarket     = "market researcher"
	markFinancial  = "financial analyst"
	markReviewer   = "senior partner chairing"
)

// recordingProvider captures every request so tests can inspect the user
// messages the orchestrator builds.
type recordingProvider struct {
	inner llm.CompletionProvider

	mu   sync.Mutex
	reqs []llm.CompletionRequest
}

func (r *recordingProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	return r.inner.Complete(ctx, req)
}

// requestFor returns the first captured request whose system prompt contains
// the agent marker.
func (r *recordingProvider) requestFor(t *testing.T, marker string) llm.CompletionRequest {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.reqs {
		if strings.Contains(req.System, marker) {
			return req
		}
	}
	t.Fatalf("no captured request matched marker %q", marker)
	return llm.CompletionRequest{}
}

// callOrder maps each captured request back to its agent marker, in call
// order.
func (r *recordingProvider) callOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	markers := []string{markAnalyst, markCommercial, markMarket, markFinancial, markReviewer}
	var order []string
	for _, req := range r.reqs {
		for _, m := range markers {
			// Match the opening role declaration only: prompt bodies may
			// mention other agents' roles (e.g. financial references the
			// commercial strategist), so a bare Contains is ambiguous.
			if strings.HasPrefix(req.System, "You are the "+m) {
				order = append(order, m)
				break
			}
		}
	}
	return order
}

func testPrompts(t *testing.T) *prompt.Store {
	t.Helper()
	store, err := prompt.NewStore()
	require.NoError(t, err)
	return store
}

func testAnalysis() *models.Analysis {
	return &models.Analysis{
		ID:           uuid.New().String(),
		OrgID:        uuid.New().String(),
		Problem:      "Sales dropped 20% over 3 months",
		BusinessType: "saas",
		Depth:        models.DepthStandard,
		Status:       models.AnalysisStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
}

func allEnabled() map[string]bool {
	enabled := make(map[string]bool)
	for _, d := range ProductionAgents("", "") {
		enabled[d.Name] = true
	}
	return enabled
}

func newTestOrchestrator(t *testing.T, provider llm.CompletionProvider, enabled map[string]bool) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(provider, testPrompts(t), ProductionAgents("", ""), enabled, nil)
	require.NoError(t, err)
	return o
}

func TestOrchestrator_AllAgentsComplete(t *testing.T) {
	stub := llm.NewStubProvider()
	o := newTestOrchestrator(t, stub, allEnabled())
	ec := NewExecutionContext(uuid.New().String(), testAnalysis())

	result := o.Execute(context.Background(), ec)

	assert.Equal(t, RunCompleted, result.Status)
	assert.Equal(t, 5, stub.Calls())
	assert.False(t, ec.StartedAt.IsZero())
	assert.False(t, ec.CompletedAt.IsZero())

	for _, name := range []string{AgentAnalyst, AgentCommercial, AgentMarket, AgentFinancial, AgentReviewer} {
		meta := ec.Metadata[name]
		assert.Equal(t, models.AgentStatusCompleted, meta.Status, "agent %s", name)
		assert.False(t, meta.Start.IsZero(), "agent %s start", name)
		assert.False(t, meta.End.IsZero(), "agent %s end", name)
		output, ok := ec.Output(name)
		require.True(t, ok)
		assert.NotEmpty(t, output)
	}

	// The default stub answers with 120 in / 80 out tokens per call.
	agg := ec.Aggregate()
	assert.Equal(t, 5*120, agg.TokensIn)
	assert.Equal(t, 5*80, agg.TokensOut)
	assert.Equal(t, 5*200, agg.TokensTotal)
	assert.Greater(t, agg.CostUSD, 0.0)
}

func TestOrchestrator_LayerOrdering(t *testing.T) {
	rec := &recordingProvider{inner: llm.NewStubProvider()}
	o := newTestOrchestrator(t, rec, allEnabled())

	o.Execute(context.Background(), NewExecutionContext(uuid.New().String(), testAnalysis()))

	order := rec.callOrder()
	require.Len(t, order, 5)
	pos := make(map[string]int, len(order))
	for i, m := range order {
		pos[m] = i
	}
	assert.Equal(t, 0, pos[markAnalyst], "analyst runs alone in the first layer")
	assert.Less(t, pos[markAnalyst], pos[markCommercial])
	assert.Less(t, pos[markAnalyst], pos[markMarket])
	assert.Less(t, pos[markCommercial], pos[markFinancial])
	assert.Less(t, pos[markMarket], pos[markFinancial])
	assert.Less(t, pos[markFinancial], pos[markReviewer])
}

func TestOrchestrator_DependencyOutputsFlowDownstream(t *testing.T) {
	stub := llm.NewStubProvider()
	stub.ScriptCompletion(markAnalyst, "FRAMING-7F3 the real problem is churn", 100, 40)
	rec := &recordingProvider{inner: stub}
	o := newTestOrchestrator(t, rec, allEnabled())
	ec := NewExecutionContext(uuid.New().String(), testAnalysis())

	result := o.Execute(context.Background(), ec)
	require.Equal(t, RunCompleted, result.Status)

	commercial := rec.requestFor(t, markCommercial)
	assert.Contains(t, commercial.User, "Sales dropped 20% over 3 months")
	assert.Contains(t, commercial.User, "## Contribution from analyst")
	assert.Contains(t, commercial.User, "FRAMING-7F3")

	// financial sees analyst and commercial, but not market.
	financial := rec.requestFor(t, markFinancial)
	assert.Contains(t, financial.User, "## Contribution from analyst")
	assert.Contains(t, financial.User, "## Contribution from commercial")
	assert.NotContains(t, financial.User, "## Contribution from market")

	// The reviewer sees all four.
	reviewer := rec.requestFor(t, markReviewer)
	for _, dep := range []string{AgentAnalyst, AgentCommercial, AgentMarket, AgentFinancial} {
		assert.Contains(t, reviewer.User, "## Contribution from "+dep)
	}
}

func TestOrchestrator_DependencyOutputTruncation(t *testing.T) {
	t.Run("over the cap is cut and marked", func(t *testing.T) {
		stub := llm.NewStubProvider()
		stub.ScriptCompletion(markAnalyst, strings.Repeat("a", DependencyOutputCap+500), 100, 40)
		rec := &recordingProvider{inner: stub}
		o := newTestOrchestrator(t, rec, allEnabled())

		o.Execute(context.Background(), NewExecutionContext(uuid.New().String(), testAnalysis()))

		commercial := rec.requestFor(t, markCommercial)
		assert.Contains(t, commercial.User, "[truncated]")
		assert.True(t, strings.Contains(commercial.User, strings.Repeat("a", DependencyOutputCap)))
		assert.False(t, strings.Contains(commercial.User, strings.Repeat("a", DependencyOutputCap+1)),
			"no more than the cap may flow downstream")
	})

	t.Run("exactly the cap passes untouched", func(t *testing.T) {
		stub := llm.NewStubProvider()
		stub.ScriptCompletion(markAnalyst, strings.Repeat("b", DependencyOutputCap), 100, 40)
		rec := &recordingProvider{inner: stub}
		o := newTestOrchestrator(t, rec, allEnabled())

		o.Execute(context.Background(), NewExecutionContext(uuid.New().String(), testAnalysis()))

		commercial := rec.requestFor(t, markCommercial)
		assert.NotContains(t, commercial.User, "[truncated]")
		assert.True(t, strings.Contains(commercial.User, strings.Repeat("b", DependencyOutputCap)))
	})
}

func TestOrchestrator_FailedDependencyBecomesSentinel(t *testing.T) {
	stub := llm.NewStubProvider()
	stub.ScriptError(markAnalyst, errors.New("boom"))
	rec := &recordingProvider{inner: stub}
	o := newTestOrchestrator(t, rec, allEnabled())
	ec := NewExecutionContext(uuid.New().String(), testAnalysis())

	result := o.Execute(context.Background(), ec)

	// The reviewer still consolidated, so the run is partial, not failed.
	assert.Equal(t, RunPartialFailure, result.Status)
	assert.Equal(t, models.AgentStatusFailed, ec.Metadata[AgentAnalyst].Status)
	assert.Equal(t, "boom", ec.Metadata[AgentAnalyst].Error)

	// Downstream agents ran with the sentinel instead of being cancelled.
	commercial := rec.requestFor(t, markCommercial)
	assert.Contains(t, commercial.User, "[unavailable: analyst failed]")
	assert.Equal(t, models.AgentStatusCompleted, ec.Metadata[AgentCommercial].Status)
	assert.Equal(t, models.AgentStatusCompleted, ec.Metadata[AgentReviewer].Status)
}

func TestOrchestrator_AgentTimeout(t *testing.T) {
	stub := llm.NewStubProvider()
	stub.ScriptHang(markFinancial)

	defs := ProductionAgents("", "")
	for i := range defs {
		if defs[i].Name == AgentFinancial {
			defs[i].Timeout = 50 * time.Millisecond
		}
	}
	o, err := NewOrchestrator(stub, testPrompts(t), defs, allEnabled(), nil)
	require.NoError(t, err)
	ec := NewExecutionContext(uuid.New().String(), testAnalysis())

	result := o.Execute(context.Background(), ec)

	assert.Equal(t, RunPartialFailure, result.Status)
	meta := ec.Metadata[AgentFinancial]
	assert.Equal(t, models.AgentStatusTimeout, meta.Status)
	assert.Equal(t, "timeout after 50ms", meta.Error)

	// Siblings and the reviewer were unaffected.
	assert.Equal(t, models.AgentStatusCompleted, ec.Metadata[AgentMarket].Status)
	assert.Equal(t, models.AgentStatusCompleted, ec.Metadata[AgentReviewer].Status)
}

func TestOrchestrator_ReviewerFailureFailsRun(t *testing.T) {
	stub := llm.NewStubProvider()
	stub.ScriptError(markReviewer, errors.New("upstream exploded"))
	o := newTestOrchestrator(t, stub, allEnabled())
	ec := NewExecutionContext(uuid.New().String(), testAnalysis())

	result := o.Execute(context.Background(), ec)

	assert.Equal(t, RunFailed, result.Status)
	assert.Equal(t, models.AgentStatusFailed, ec.Metadata[AgentReviewer].Status)
	// Specialist outputs are retained even though the run failed.
	for _, name := range []string{AgentAnalyst, AgentCommercial, AgentMarket, AgentFinancial} {
		assert.Equal(t, models.AgentStatusCompleted, ec.Metadata[name].Status, "agent %s", name)
	}
}

func TestOrchestrator_AllSpecialistsFailReviewerConsolidates(t *testing.T) {
	stub := llm.NewStubProvider()
	stub.ScriptError(markAnalyst, errors.New("a down"))
	stub.ScriptError(markCommercial, errors.New("c down"))
	stub.ScriptError(markMarket, errors.New("m down"))
	stub.ScriptError(markFinancial, errors.New("f down"))
	rec := &recordingProvider{inner: stub}
	o := newTestOrchestrator(t, rec, allEnabled())
	ec := NewExecutionContext(uuid.New().String(), testAnalysis())

	result := o.Execute(context.Background(), ec)

	assert.Equal(t, RunPartialFailure, result.Status)
	assert.Equal(t, models.AgentStatusCompleted, ec.Metadata[AgentReviewer].Status)

	reviewer := rec.requestFor(t, markReviewer)
	for _, dep := range []string{AgentAnalyst, AgentCommercial, AgentMarket, AgentFinancial} {
		assert.Contains(t, reviewer.User, "[unavailable: "+dep+" failed]")
	}
}

func TestOrchestrator_PlanGateSkipsDisabledAgents(t *testing.T) {
	stub := llm.NewStubProvider()
	rec := &recordingProvider{inner: stub}
	enabled := map[string]bool{
		AgentAnalyst:    true,
		AgentCommercial: true,
		AgentReviewer:   true,
	}
	o, err := NewOrchestrator(rec, testPrompts(t), ProductionAgents("", ""), enabled, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{AgentAnalyst}, {AgentCommercial}, {AgentReviewer}}, o.Layers())

	ec := NewExecutionContext(uuid.New().String(), testAnalysis())
	result := o.Execute(context.Background(), ec)

	// Only the enabled agents count toward completion.
	assert.Equal(t, RunCompleted, result.Status)
	assert.Equal(t, 3, stub.Calls())
	assert.Equal(t, models.AgentStatusSkipped, ec.Metadata[AgentMarket].Status)
	assert.Equal(t, models.AgentStatusSkipped, ec.Metadata[AgentFinancial].Status)

	// Disabled ancestors surface to the reviewer as unavailable.
	reviewer := rec.requestFor(t, markReviewer)
	assert.Contains(t, reviewer.User, "[unavailable: market failed]")
	assert.Contains(t, reviewer.User, "[unavailable: financial failed]")
	assert.Contains(t, reviewer.User, "## Contribution from analyst")
}

func TestOrchestrator_RunDeadlineSettlesAsTimeout(t *testing.T) {
	stub := llm.NewStubProvider()
	stub.ScriptHang(markAnalyst)
	o := newTestOrchestrator(t, stub, allEnabled())
	ec := NewExecutionContext(uuid.New().String(), testAnalysis())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	result := o.Execute(ctx, ec)

	// The hung analyst settles as timeout when the run deadline expires; the
	// rest of the panel still settles (instantly, against the dead context).
	assert.Equal(t, models.AgentStatusTimeout, ec.Metadata[AgentAnalyst].Status)
	assert.NotEqual(t, RunCompleted, result.Status)
	for _, name := range []string{AgentCommercial, AgentMarket, AgentFinancial, AgentReviewer} {
		assert.True(t, ec.Metadata[name].Status.Settled(), "agent %s must settle", name)
	}
}

func TestNewOrchestrator_Validation(t *testing.T) {
	prompts := testPrompts(t)
	stub := llm.NewStubProvider()

	t.Run("unknown template", func(t *testing.T) {
		defs := []Definition{{Name: "x", TemplateID: "nope", Timeout: time.Second}}
		_, err := NewOrchestrator(stub, prompts, defs, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown template")
	})

	t.Run("cycle fails construction", func(t *testing.T) {
		defs := []Definition{
			{Name: "a", TemplateID: AgentAnalyst, DependsOn: []string{"b"}, Timeout: time.Second},
			{Name: "b", TemplateID: AgentMarket, DependsOn: []string{"a"}, Timeout: time.Second},
		}
		_, err := NewOrchestrator(stub, prompts, defs, nil, nil)
		var circular *CircularDependencyError
		require.ErrorAs(t, err, &circular)
	})

	t.Run("missing dependency fails construction", func(t *testing.T) {
		defs := []Definition{
			{Name: "a", TemplateID: AgentAnalyst, DependsOn: []string{"ghost"}, Timeout: time.Second},
		}
		_, err := NewOrchestrator(stub, prompts, defs, nil, nil)
		var missing *MissingDependencyError
		require.ErrorAs(t, err, &missing)
	})

	t.Run("nil enabled set runs the full panel", func(t *testing.T) {
		o, err := NewOrchestrator(stub, prompts, ProductionAgents("", ""), nil, nil)
		require.NoError(t, err)
		assert.Len(t, o.Layers(), 4)
	})
}
