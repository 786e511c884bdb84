// Package store defines the persistence contracts. Every tenant-data call
// takes the caller's org id explicitly; implementations reject a missing org
// id and answer cross-tenant reads with ErrNotFound, never revealing that a
// row exists under another organization.
//
// Two implementations exist: pkg/store/postgres (pgx) and pkg/store/memory
// (mutex-guarded maps, used in tests and as the development fallback). Both
// must pass the conformance suite in pkg/store/storetest.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/boardroomhq/boardroom/pkg/models"
)

var (
	// ErrNotFound is returned when a row does not exist or belongs to a
	// different organization.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned on unique-constraint conflicts, e.g. a
	// duplicate user email.
	ErrAlreadyExists = errors.New("already exists")

	// ErrTenantRequired is returned when a tenant-scoped call is made without
	// an org id. This is a programmer error surfaced loudly rather than an
	// accidental cross-tenant query.
	ErrTenantRequired = errors.New("org id required")

	// ErrStatusConflict is returned when a guarded status transition finds the
	// row in a different state than expected (e.g. two workers racing to mark
	// the same analysis running).
	ErrStatusConflict = errors.New("status conflict")

	// ErrStoreBusy is returned when the backend is saturated (pool exhausted,
	// statement timed out). Callers map it to a retryable 503.
	ErrStoreBusy = errors.New("store busy")
)

// Users persists account records. FindByEmail is the only lookup not scoped
// by org: login happens before the caller has a tenant.
type Users interface {
	Create(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, orgID, id string) (*models.User, error)
	UpdatePassword(ctx context.Context, orgID, userID, passwordHash string) error
}

// Orgs persists organizations. The org id is itself the tenant key.
type Orgs interface {
	Create(ctx context.Context, o *models.Organization) error
	Get(ctx context.Context, id string) (*models.Organization, error)
	SetPlan(ctx context.Context, orgID string, plan models.Plan, cycleStart time.Time) error
}

// Analyses persists analysis rows. Creation happens through
// Jobs.CreateWithAnalysis so the analysis and its job commit atomically.
type Analyses interface {
	Get(ctx context.Context, orgID, id string) (*models.Analysis, error)

	// List returns up to limit analyses newest-first, resuming after cursor
	// (empty cursor = from the top). The returned cursor is empty when there
	// are no further pages.
	List(ctx context.Context, orgID string, limit int, cursor string) ([]*models.Analysis, string, error)

	// UpdateStatus performs a guarded transition from -> to, recording
	// started_at when entering running. ErrStatusConflict when the row is not
	// in the from state.
	UpdateStatus(ctx context.Context, orgID, id string, from, to models.AnalysisStatus) error

	// Finish atomically writes the final status, aggregates, and every agent
	// output row for one run.
	Finish(ctx context.Context, orgID string, res *AnalysisResult) error

	// Fail marks a non-terminal analysis failed with the given error message.
	// Already-terminal rows are left untouched (ErrStatusConflict).
	Fail(ctx context.Context, orgID, id, errMsg string) error
}

// AnalysisResult is everything Finish persists in one transaction.
type AnalysisResult struct {
	AnalysisID     string
	Status         models.AnalysisStatus
	PartialFailure bool
	Error          string
	CompletedAt    time.Time
	TokensIn       int
	TokensOut      int
	TokensTotal    int
	CostUSD        float64
	LatencyMS      int64
	Outputs        []*models.AgentOutput
}

// AgentOutputs reads per-agent rows. Writes go through Analyses.Finish.
type AgentOutputs interface {
	Upsert(ctx context.Context, orgID string, row *models.AgentOutput) error
	ListByAnalysis(ctx context.Context, orgID, analysisID string) ([]*models.AgentOutput, error)
}

// RefineMessages persists the per-analysis refinement conversation.
type RefineMessages interface {
	Append(ctx context.Context, orgID string, msg *models.RefineMessage) error

	// ListRecent returns the last limit messages in chronological order.
	ListRecent(ctx context.Context, orgID, analysisID string, limit int) ([]*models.RefineMessage, error)
}

// UsageDecision is the outcome of one atomic quota consumption attempt.
// Used reflects the counter after consumption when allowed, or the current
// value when denied.
type UsageDecision struct {
	Allowed bool
	Used    int
	Limit   int
}

// Remaining returns how much of the limit is left.
func (d UsageDecision) Remaining() int {
	if d.Limit < 0 {
		return -1
	}
	if r := d.Limit - d.Used; r > 0 {
		return r
	}
	return 0
}

// Usage persists monotone per-(org, feature, period[, analysis]) counters.
type Usage interface {
	// CheckAndConsume atomically increments the counter if and only if the
	// result would not exceed limit. analysisID is empty for org-wide
	// features. The consume-then-work ordering means partial work never
	// refunds quota.
	CheckAndConsume(ctx context.Context, orgID, feature string, periodStart time.Time, limit int, analysisID string) (UsageDecision, error)

	// Get returns the current counter value (zero when absent).
	Get(ctx context.Context, orgID, feature string, periodStart time.Time, analysisID string) (int, error)

	// ResetCycle points the organization at a fresh period. Counters of prior
	// periods are left behind; idempotent.
	ResetCycle(ctx context.Context, orgID string, newPeriodStart time.Time) error
}

// Jobs persists the durable queue state. The jobs table doubles as the
// transactional outbox: CreateWithAnalysis inserts the analysis and its job
// in one transaction, and PublishPending relays unpublished entries to the
// delivery backend.
type Jobs interface {
	// CreateWithAnalysis inserts the analysis and its job atomically.
	CreateWithAnalysis(ctx context.Context, a *models.Analysis, j *models.Job) error

	Get(ctx context.Context, jobID string) (*models.Job, error)

	// PublishPending claims up to limit unpublished queued jobs (oldest
	// scheduled first, skipping rows other pumps hold), invokes publish for
	// each, and marks the successful ones published — all under one claim so
	// concurrent pumps never double-publish. Returns how many were published.
	// A publish error leaves that job unpublished for the next pass.
	PublishPending(ctx context.Context, limit int, publish func(context.Context, *models.Job) error) (int, error)

	// MarkRunning / MarkDone / MarkFailed advance the job lifecycle.
	MarkRunning(ctx context.Context, jobID string) error
	MarkDone(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, lastError string) error

	// RequeueForRetry increments attempts and either requeues the job for
	// republication or, at maxAttempts, marks it failed. Returns the updated
	// job. Single atomic statement.
	RequeueForRetry(ctx context.Context, jobID, lastError string, maxAttempts int) (*models.Job, error)

	// RunningAnalysesWithoutLiveJob returns analyses stuck in running whose
	// job is terminal, or still marked running but started before
	// staleBefore. Sweep support; not tenant-scoped (system actor).
	RunningAnalysesWithoutLiveJob(ctx context.Context, staleBefore time.Time) ([]*models.Analysis, error)
}

// Store bundles the per-entity repositories of one backend.
type Store struct {
	Users          Users
	Orgs           Orgs
	Analyses       Analyses
	AgentOutputs   AgentOutputs
	RefineMessages RefineMessages
	Usage          Usage
	Jobs           Jobs
}
