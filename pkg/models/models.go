// Package models defines the persistent domain entities shared by the store,
// queue, services, and API layers.
package models

import "time"

// Organization is the tenant. All persistent reads and writes are scoped to
// exactly one organization.
type Organization struct {
	ID                 string
	Name               string
	Plan               Plan
	CycleStartedAt     time.Time
	SubscriptionStatus string
	CreatedAt          time.Time
}

// User belongs to exactly one organization. The email is stored lowercase and
// is unique across the store. PasswordHash is a bcrypt hash; the clear
// password is never stored or logged.
type User struct {
	ID           string
	OrgID        string
	Email        string
	PasswordHash string
	Role         UserRole
	CreatedAt    time.Time
}

// Analysis is the unit of work: one submitted problem plus the agent outputs
// produced for it.
type Analysis struct {
	ID             string
	OrgID          string
	UserID         string
	Problem        string
	BusinessType   string
	Industry       string
	Depth          Depth
	Status         AnalysisStatus
	PartialFailure bool
	Error          string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	TokensIn       int
	TokensOut      int
	TokensTotal    int
	CostUSD        float64
	LatencyMS      int64
}

// AgentOutput is one agent's result for one analysis.
// (AnalysisID, AgentName) is unique.
type AgentOutput struct {
	AnalysisID  string
	AgentName   string
	Output      string
	Status      AgentStatus
	TokensIn    int
	TokensOut   int
	TokensTotal int
	CostUSD     float64
	LatencyMS   int64
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RefineMessage is one turn of the per-analysis refinement chat, ordered by
// CreatedAt. Token counts are set on assistant rows only.
type RefineMessage struct {
	ID         string
	AnalysisID string
	OrgID      string
	Role       RefineRole
	Content    string
	TokensIn   int
	TokensOut  int
	CreatedAt  time.Time
}

// UsageCounter is a monotone per-(org, feature, period) counter. AnalysisID
// is set for features keyed per analysis and empty otherwise.
type UsageCounter struct {
	OrgID       string
	Feature     string
	PeriodStart time.Time
	AnalysisID  string
	Used        int
}

// Job is the durable queue record. It doubles as the transactional outbox
// entry: it is inserted in the same transaction as its analysis and a pump
// publishes it to the delivery backend afterwards.
type Job struct {
	ID          string
	Type        string
	AnalysisID  string
	OrgID       string
	Status      JobStatus
	Attempts    int
	Published   bool
	ScheduledAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	LastError   string
}

// JobTypeRunAnalysis is the only job type in scope.
const JobTypeRunAnalysis = "run_analysis"

// MaxJobAttempts is the delivery ceiling before a job is marked failed.
const MaxJobAttempts = 3
