// Package quota resolves plan features and enforces per-tenant, per-cycle
// counters. Every quota check runs before any provider call; consumed quota
// is never refunded.
package quota

import (
	"time"

	"github.com/boardroomhq/boardroom/pkg/agent"
	"github.com/boardroomhq/boardroom/pkg/models"
)

// Counted features.
const (
	FeatureAnalysesCreated    = "analyses_created"
	FeatureRefinePerAnalysis  = "refine_messages_per_analysis"
)

// Unlimited marks a feature with no numeric ceiling.
const Unlimited = -1

// CycleLength is the billing window anchored at the org's subscription start.
const CycleLength = 30 * 24 * time.Hour

// ExportFormat names a report export target.
type ExportFormat string

const (
	ExportMarkdown ExportFormat = "md"
	ExportPDF      ExportFormat = "pdf"
	ExportDOCX     ExportFormat = "docx"
	ExportPPTX     ExportFormat = "pptx"
)

// PlanLimits is one row of the static plan table.
type PlanLimits struct {
	AnalysesPerCycle          int
	RefineMessagesPerAnalysis int
	Agents                    []string
	Exports                   []ExportFormat
}

// planTable is static, enumerated data. Plans change only via the billing
// webhook flipping the org's plan column.
var planTable = map[models.Plan]PlanLimits{
	models.PlanFree: {
		AnalysesPerCycle:          5,
		RefineMessagesPerAnalysis: 3,
		Agents:                    []string{agent.AgentAnalyst, agent.AgentCommercial, agent.AgentReviewer},
		Exports:                   []ExportFormat{ExportMarkdown},
	},
	models.PlanPro: {
		AnalysesPerCycle:          50,
		RefineMessagesPerAnalysis: 20,
		Agents:                    []string{agent.AgentAnalyst, agent.AgentCommercial, agent.AgentMarket, agent.AgentFinancial, agent.AgentReviewer},
		Exports:                   []ExportFormat{ExportMarkdown, ExportPDF},
	},
	models.PlanEnterprise: {
		AnalysesPerCycle:          Unlimited,
		RefineMessagesPerAnalysis: Unlimited,
		Agents:                    []string{agent.AgentAnalyst, agent.AgentCommercial, agent.AgentMarket, agent.AgentFinancial, agent.AgentReviewer},
		Exports:                   []ExportFormat{ExportMarkdown, ExportPDF, ExportDOCX, ExportPPTX},
	},
}

// Limits returns the plan row. Unknown plans fall back to free, the most
// restrictive tier.
func Limits(plan models.Plan) PlanLimits {
	if l, ok := planTable[plan]; ok {
		return l
	}
	return planTable[models.PlanFree]
}

// LimitFor resolves the numeric ceiling of a counted feature.
func LimitFor(plan models.Plan, feature string) int {
	l := Limits(plan)
	switch feature {
	case FeatureAnalysesCreated:
		return l.AnalysesPerCycle
	case FeatureRefinePerAnalysis:
		return l.RefineMessagesPerAnalysis
	default:
		return 0
	}
}

// AgentsFor returns the plan's enabled agent set as a membership map, ready
// for the orchestrator's subgraph gate.
func AgentsFor(plan models.Plan) map[string]bool {
	l := Limits(plan)
	enabled := make(map[string]bool, len(l.Agents))
	for _, name := range l.Agents {
		enabled[name] = true
	}
	return enabled
}

// CanExport reports whether the plan's feature gate admits the format.
func CanExport(plan models.Plan, format ExportFormat) bool {
	for _, f := range Limits(plan).Exports {
		if f == format {
			return true
		}
	}
	return false
}

// UpgradeTo suggests the next tier for a quota-denied response. Enterprise
// has nowhere further to go.
func UpgradeTo(plan models.Plan) models.Plan {
	switch plan {
	case models.PlanFree:
		return models.PlanPro
	case models.PlanPro:
		return models.PlanEnterprise
	default:
		return ""
	}
}

// CurrentPeriodStart advances the subscription anchor by whole cycle steps so
// it names the billing period containing now. Rollover is lazy: the first
// read after a cycle boundary lands in the fresh period, whose counters start
// at zero.
func CurrentPeriodStart(anchor, now time.Time) time.Time {
	anchor = anchor.UTC()
	now = now.UTC()
	if !now.After(anchor) {
		return anchor
	}
	elapsed := now.Sub(anchor)
	steps := elapsed / CycleLength
	return anchor.Add(steps * CycleLength)
}
