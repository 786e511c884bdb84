// Package agent implements the analysis core: the agent panel definitions,
// the dependency resolver that turns them into execution layers, the
// in-memory execution context, and the orchestrator that runs the layers
// against a completion provider.
package agent

import (
	"time"

	"github.com/boardroomhq/boardroom/pkg/models"
)

// Default per-call timeout for one agent invocation.
const DefaultAgentTimeout = 30 * time.Second

// Agent names of the production panel.
const (
	AgentAnalyst    = "analyst"
	AgentCommercial = "commercial"
	AgentMarket     = "market"
	AgentFinancial  = "financial"
	AgentReviewer   = "reviewer"
)

// Definition is one agent as configuration: a named, templated call with a
// fixed dependency list. The panel is data, not code.
type Definition struct {
	Name       string
	TemplateID string
	Model      string
	DependsOn  []string
	Timeout    time.Duration
}

// Models used when no override is configured.
const (
	defaultPanelModel    = "gpt-4o-mini"
	defaultReviewerModel = "gpt-4o"
)

// ProductionAgents returns the five-agent panel. Model overrides replace the
// defaults when non-empty: model applies to the four specialists,
// reviewerModel to the consolidating reviewer.
func ProductionAgents(model, reviewerModel string) []Definition {
	if model == "" {
		model = defaultPanelModel
	}
	if reviewerModel == "" {
		reviewerModel = defaultReviewerModel
	}
	return []Definition{
		{Name: AgentAnalyst, TemplateID: AgentAnalyst, Model: model, DependsOn: nil, Timeout: DefaultAgentTimeout},
		{Name: AgentCommercial, TemplateID: AgentCommercial, Model: model, DependsOn: []string{AgentAnalyst}, Timeout: DefaultAgentTimeout},
		{Name: AgentMarket, TemplateID: AgentMarket, Model: model, DependsOn: []string{AgentAnalyst}, Timeout: DefaultAgentTimeout},
		{Name: AgentFinancial, TemplateID: AgentFinancial, Model: model, DependsOn: []string{AgentAnalyst, AgentCommercial}, Timeout: DefaultAgentTimeout},
		{Name: AgentReviewer, TemplateID: AgentReviewer, Model: reviewerModel, DependsOn: []string{AgentAnalyst, AgentCommercial, AgentMarket, AgentFinancial}, Timeout: DefaultAgentTimeout},
	}
}

// Subgraph filters defs to the enabled set and prunes dependency references
// to disabled agents. The orchestrator treats pruned dependencies as
// unavailable, so downstream agents degrade with sentinels instead of
// blocking. Used to apply per-plan agent gates.
func Subgraph(defs []Definition, enabled map[string]bool) []Definition {
	out := make([]Definition, 0, len(defs))
	for _, d := range defs {
		if !enabled[d.Name] {
			continue
		}
		kept := d
		kept.DependsOn = nil
		for _, dep := range d.DependsOn {
			if enabled[dep] {
				kept.DependsOn = append(kept.DependsOn, dep)
			}
		}
		out = append(out, kept)
	}
	return out
}

// MaxTokensFor maps the analysis depth to the per-call completion budget.
func MaxTokensFor(depth models.Depth) int {
	switch depth {
	case models.DepthFast:
		return 1024
	case models.DepthDeep:
		return 4096
	default:
		return 2048
	}
}

// TimeoutBudget sums the per-agent timeouts of defs; callers add slack and
// cap it to bound a whole run.
func TimeoutBudget(defs []Definition) time.Duration {
	var total time.Duration
	for _, d := range defs {
		total += d.Timeout
	}
	return total
}
