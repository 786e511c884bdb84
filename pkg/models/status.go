package models

// Plan identifies the subscription tier of an organization.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// UserRole is the role of a user within its organization.
type UserRole string

const (
	RoleOwner  UserRole = "owner"
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
)

// AnalysisStatus is the lifecycle state of an analysis.
// Transitions are monotone: pending -> running -> (completed | failed).
type AnalysisStatus string

const (
	AnalysisStatusPending   AnalysisStatus = "pending"
	AnalysisStatusRunning   AnalysisStatus = "running"
	AnalysisStatusCompleted AnalysisStatus = "completed"
	AnalysisStatusFailed    AnalysisStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s AnalysisStatus) Terminal() bool {
	return s == AnalysisStatusCompleted || s == AnalysisStatusFailed
}

// CanTransitionTo reports whether the monotone lifecycle permits moving to next.
func (s AnalysisStatus) CanTransitionTo(next AnalysisStatus) bool {
	switch s {
	case AnalysisStatusPending:
		return next == AnalysisStatusRunning || next == AnalysisStatusFailed
	case AnalysisStatusRunning:
		return next == AnalysisStatusCompleted || next == AnalysisStatusFailed
	default:
		return false
	}
}

// AgentStatus is the per-agent outcome within one analysis run.
type AgentStatus string

const (
	AgentStatusPending   AgentStatus = "pending"
	AgentStatusRunning   AgentStatus = "running"
	AgentStatusCompleted AgentStatus = "completed"
	AgentStatusFailed    AgentStatus = "failed"
	AgentStatusTimeout   AgentStatus = "timeout"
	AgentStatusSkipped   AgentStatus = "skipped"
)

// Settled reports whether the agent reached an end state.
func (s AgentStatus) Settled() bool {
	switch s {
	case AgentStatusCompleted, AgentStatusFailed, AgentStatusTimeout, AgentStatusSkipped:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// RefineRole is the author of a refine message.
type RefineRole string

const (
	RefineRoleUser      RefineRole = "user"
	RefineRoleAssistant RefineRole = "assistant"
)

// Depth selects how exhaustive an analysis should be.
type Depth string

const (
	DepthFast     Depth = "fast"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

// Valid reports whether d is a known depth.
func (d Depth) Valid() bool {
	switch d {
	case DepthFast, DepthStandard, DepthDeep:
		return true
	}
	return false
}

// BusinessTypes is the enumerated set accepted for Analysis.BusinessType.
var BusinessTypes = map[string]bool{
	"saas":          true,
	"ecommerce":     true,
	"retail":        true,
	"manufacturing": true,
	"services":      true,
	"fintech":       true,
	"healthcare":    true,
	"other":         true,
}

// ValidBusinessType reports whether bt is in the enumerated set.
func ValidBusinessType(bt string) bool {
	return BusinessTypes[bt]
}
