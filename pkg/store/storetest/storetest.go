// Package storetest is the conformance suite every store implementation must
// pass. It exercises the contract-level properties: tenant guarding,
// cross-tenant invisibility, status monotonicity, usage atomicity, outbox
// claiming, and keyset pagination.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

// Factory builds a fresh, empty store for one subtest.
type Factory func(t *testing.T) *store.Store

// Run executes the whole conformance suite against stores built by f.
func Run(t *testing.T, f Factory) {
	t.Run("TenantGuard", func(t *testing.T) { testTenantGuard(t, f(t)) })
	t.Run("CrossTenantIsolation", func(t *testing.T) { testCrossTenantIsolation(t, f(t)) })
	t.Run("UserEmailUnique", func(t *testing.T) { testUserEmailUnique(t, f(t)) })
	t.Run("AnalysisStatusTransitions", func(t *testing.T) { testStatusTransitions(t, f(t)) })
	t.Run("AnalysisFinish", func(t *testing.T) { testFinish(t, f(t)) })
	t.Run("AnalysisListPagination", func(t *testing.T) { testListPagination(t, f(t)) })
	t.Run("UsageCheckAndConsume", func(t *testing.T) { testUsage(t, f(t)) })
	t.Run("UsageConcurrentConsume", func(t *testing.T) { testUsageConcurrent(t, f(t)) })
	t.Run("JobsOutbox", func(t *testing.T) { testJobsOutbox(t, f(t)) })
	t.Run("JobsRequeue", func(t *testing.T) { testJobsRequeue(t, f(t)) })
	t.Run("RefineMessages", func(t *testing.T) { testRefineMessages(t, f(t)) })
	t.Run("OrphanScan", func(t *testing.T) { testOrphanScan(t, f(t)) })
}

func seedOrg(t *testing.T, st *store.Store, plan models.Plan) *models.Organization {
	t.Helper()
	org := &models.Organization{
		ID:             uuid.New().String(),
		Name:           "org-" + uuid.New().String()[:8],
		Plan:           plan,
		CycleStartedAt: time.Now().UTC().Truncate(time.Second),
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, st.Orgs.Create(context.Background(), org))
	return org
}

func seedUser(t *testing.T, st *store.Store, orgID string) *models.User {
	t.Helper()
	u := &models.User{
		ID:           uuid.New().String(),
		OrgID:        orgID,
		Email:        fmt.Sprintf("u-%s@example.com", uuid.New().String()[:8]),
		PasswordHash: "$2a$12$fakehashfakehashfakehashfakehash",
		Role:         models.RoleOwner,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.Users.Create(context.Background(), u))
	return u
}

func seedAnalysis(t *testing.T, st *store.Store, orgID, userID string, createdAt time.Time) (*models.Analysis, *models.Job) {
	t.Helper()
	a := &models.Analysis{
		ID:           uuid.New().String(),
		OrgID:        orgID,
		UserID:       userID,
		Problem:      "Revenue flat for two quarters while marketing spend doubled",
		BusinessType: "saas",
		Depth:        models.DepthStandard,
		Status:       models.AnalysisStatusPending,
		CreatedAt:    createdAt,
	}
	j := &models.Job{
		ID:          uuid.New().String(),
		Type:        models.JobTypeRunAnalysis,
		AnalysisID:  a.ID,
		OrgID:       orgID,
		Status:      models.JobStatusQueued,
		ScheduledAt: createdAt,
	}
	require.NoError(t, st.Jobs.CreateWithAnalysis(context.Background(), a, j))
	return a, j
}

func testTenantGuard(t *testing.T, st *store.Store) {
	ctx := context.Background()
	org := seedOrg(t, st, models.PlanFree)
	user := seedUser(t, st, org.ID)
	a, _ := seedAnalysis(t, st, org.ID, user.ID, time.Now().UTC())

	_, err := st.Analyses.Get(ctx, "", a.ID)
	assert.ErrorIs(t, err, store.ErrTenantRequired)
	_, _, err = st.Analyses.List(ctx, "", 10, "")
	assert.ErrorIs(t, err, store.ErrTenantRequired)
	err = st.Analyses.UpdateStatus(ctx, "", a.ID, models.AnalysisStatusPending, models.AnalysisStatusRunning)
	assert.ErrorIs(t, err, store.ErrTenantRequired)
	_, err = st.Users.GetByID(ctx, "", user.ID)
	assert.ErrorIs(t, err, store.ErrTenantRequired)
	_, err = st.AgentOutputs.ListByAnalysis(ctx, "", a.ID)
	assert.ErrorIs(t, err, store.ErrTenantRequired)
	_, err = st.RefineMessages.ListRecent(ctx, "", a.ID, 20)
	assert.ErrorIs(t, err, store.ErrTenantRequired)
	_, err = st.Usage.CheckAndConsume(ctx, "", "analyses_created", time.Now().UTC(), 5, "")
	assert.ErrorIs(t, err, store.ErrTenantRequired)
}

func testCrossTenantIsolation(t *testing.T, st *store.Store) {
	ctx := context.Background()
	orgA := seedOrg(t, st, models.PlanFree)
	orgB := seedOrg(t, st, models.PlanPro)
	userA := seedUser(t, st, orgA.ID)
	a, _ := seedAnalysis(t, st, orgA.ID, userA.ID, time.Now().UTC())

	// Another tenant sees ErrNotFound, indistinguishable from a missing row.
	_, err := st.Analyses.Get(ctx, orgB.ID, a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	err = st.Analyses.UpdateStatus(ctx, orgB.ID, a.ID, models.AnalysisStatusPending, models.AnalysisStatusRunning)
	assert.ErrorIs(t, err, store.ErrNotFound)
	err = st.Analyses.Fail(ctx, orgB.ID, a.ID, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Users.GetByID(ctx, orgB.ID, userA.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.AgentOutputs.ListByAnalysis(ctx, orgB.ID, a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	err = st.RefineMessages.Append(ctx, orgB.ID, &models.RefineMessage{
		ID:         uuid.New().String(),
		AnalysisID: a.ID,
		OrgID:      orgB.ID,
		Role:       models.RefineRoleUser,
		Content:    "hello",
		CreatedAt:  time.Now().UTC(),
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The owning tenant's list never contains another tenant's rows.
	rows, _, err := st.Analyses.List(ctx, orgB.ID, 10, "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testUserEmailUnique(t *testing.T, st *store.Store) {
	ctx := context.Background()
	org := seedOrg(t, st, models.PlanFree)
	u := seedUser(t, st, org.ID)

	dup := &models.User{
		ID:           uuid.New().String(),
		OrgID:        org.ID,
		Email:        u.Email,
		PasswordHash: "x",
		Role:         models.RoleMember,
		CreatedAt:    time.Now().UTC(),
	}
	assert.ErrorIs(t, st.Users.Create(ctx, dup), store.ErrAlreadyExists)

	found, err := st.Users.FindByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = st.Users.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testStatusTransitions(t *testing.T, st *store.Store) {
	ctx := context.Background()
	org := seedOrg(t, st, models.PlanFree)
	user := seedUser(t, st, org.ID)
	a, _ := seedAnalysis(t, st, org.ID, user.ID, time.Now().UTC())

	// pending -> running sets started_at.
	require.NoError(t, st.Analyses.UpdateStatus(ctx, org.ID, a.ID,
		models.AnalysisStatusPending, models.AnalysisStatusRunning))
	got, err := st.Analyses.Get(ctx, org.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)

	// A second claim of the same transition conflicts.
	err = st.Analyses.UpdateStatus(ctx, org.ID, a.ID,
		models.AnalysisStatusPending, models.AnalysisStatusRunning)
	assert.ErrorIs(t, err, store.ErrStatusConflict)

	// Fail is terminal and idempotence-guarded.
	require.NoError(t, st.Analyses.Fail(ctx, org.ID, a.ID, "worker lost"))
	got, err = st.Analyses.Get(ctx, org.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusFailed, got.Status)
	assert.Equal(t, "worker lost", got.Error)
	assert.NotNil(t, got.CompletedAt)
	assert.ErrorIs(t, st.Analyses.Fail(ctx, org.ID, a.ID, "again"), store.ErrStatusConflict)
}

func testFinish(t *testing.T, st *store.Store) {
	ctx := context.Background()
	org := seedOrg(t, st, models.PlanPro)
	user := seedUser(t, st, org.ID)
	a, _ := seedAnalysis(t, st, org.ID, user.ID, time.Now().UTC())
	require.NoError(t, st.Analyses.UpdateStatus(ctx, org.ID, a.ID,
		models.AnalysisStatusPending, models.AnalysisStatusRunning))

	completed := time.Now().UTC().Truncate(time.Millisecond)
	res := &store.AnalysisResult{
		AnalysisID:  a.ID,
		Status:      models.AnalysisStatusCompleted,
		CompletedAt: completed,
		TokensIn:    600,
		TokensOut:   400,
		TokensTotal: 1000,
		CostUSD:     0.0135,
		LatencyMS:   4200,
		Outputs: []*models.AgentOutput{
			{AnalysisID: a.ID, AgentName: "analyst", Output: "framing", Status: models.AgentStatusCompleted, TokensIn: 300, TokensOut: 200, TokensTotal: 500},
			{AnalysisID: a.ID, AgentName: "reviewer", Output: "report", Status: models.AgentStatusCompleted, TokensIn: 300, TokensOut: 200, TokensTotal: 500},
			{AnalysisID: a.ID, AgentName: "market", Status: models.AgentStatusSkipped},
		},
	}
	require.NoError(t, st.Analyses.Finish(ctx, org.ID, res))

	got, err := st.Analyses.Get(ctx, org.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusCompleted, got.Status)
	assert.Equal(t, 1000, got.TokensTotal)
	assert.InDelta(t, 0.0135, got.CostUSD, 1e-9)
	require.NotNil(t, got.CompletedAt)

	outputs, err := st.AgentOutputs.ListByAnalysis(ctx, org.ID, a.ID)
	require.NoError(t, err)
	require.Len(t, outputs, 3)
	// Ordered by agent name.
	assert.Equal(t, "analyst", outputs[0].AgentName)
	assert.Equal(t, "market", outputs[1].AgentName)
	assert.Equal(t, "reviewer", outputs[2].AgentName)
	assert.Equal(t, models.AgentStatusSkipped, outputs[1].Status)

	// Finishing an unknown analysis under this org is not found.
	res.AnalysisID = uuid.New().String()
	assert.ErrorIs(t, st.Analyses.Finish(ctx, org.ID, res), store.ErrNotFound)
}

func testListPagination(t *testing.T, st *store.Store) {
	ctx := context.Background()
	org := seedOrg(t, st, models.PlanPro)
	user := seedUser(t, st, org.ID)

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	var ids []string
	for i := 0; i < 5; i++ {
		a, _ := seedAnalysis(t, st, org.ID, user.ID, base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, a.ID)
	}

	// Newest first, two pages of 2 plus a final page of 1.
	page1, cursor1, err := st.Analyses.List(ctx, org.ID, 2, "")
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, ids[4], page1[0].ID)
	assert.Equal(t, ids[3], page1[1].ID)
	require.NotEmpty(t, cursor1)

	page2, cursor2, err := st.Analyses.List(ctx, org.ID, 2, cursor1)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, ids[2], page2[0].ID)
	assert.Equal(t, ids[1], page2[1].ID)
	require.NotEmpty(t, cursor2)

	page3, cursor3, err := st.Analyses.List(ctx, org.ID, 2, cursor2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, ids[0], page3[0].ID)
	assert.Empty(t, cursor3, "the last page carries no cursor")

	_, _, err = st.Analyses.List(ctx, org.ID, 2, "not-a-cursor")
	assert.Error(t, err)
}

func testUsage(t *testing.T, st *store.Store) {
	ctx := context.Background()
	org := seedOrg(t, st, models.PlanFree)
	period := time.Now().UTC().Truncate(time.Second)

	// Consume up to the limit, then deny.
	for i := 1; i <= 3; i++ {
		d, err := st.Usage.CheckAndConsume(ctx, org.ID, "analyses_created", period, 3, "")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.Used)
	}
	d, err := st.Usage.CheckAndConsume(ctx, org.ID, "analyses_created", period, 3, "")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 3, d.Used)
	assert.Equal(t, 0, d.Remaining())

	// Separate periods and per-analysis keys count independently.
	next := period.Add(30 * 24 * time.Hour)
	d, err = st.Usage.CheckAndConsume(ctx, org.ID, "analyses_created", next, 3, "")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Used)

	d, err = st.Usage.CheckAndConsume(ctx, org.ID, "refine_messages_per_analysis", period, 3, "an-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = st.Usage.CheckAndConsume(ctx, org.ID, "refine_messages_per_analysis", period, 3, "an-2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Used)

	// ResetCycle clears the new period and is idempotent.
	require.NoError(t, st.Usage.ResetCycle(ctx, org.ID, next))
	used, err := st.Usage.Get(ctx, org.ID, "analyses_created", next, "")
	require.NoError(t, err)
	assert.Equal(t, 0, used)
	require.NoError(t, st.Usage.ResetCycle(ctx, org.ID, next))
}

func testUsageConcurrent(t *testing.T, st *store.Store) {
	ctx := context.Background()
	org := seedOrg(t, st, models.PlanFree)
	period := time.Now().UTC().Truncate(time.Second)

	const callers = 20
	const limit = 5
	var wg sync.WaitGroup
	allowed := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := st.Usage.CheckAndConsume(ctx, org.ID, "analyses_created", period, limit, "")
			if err == nil {
				allowed <- d.Allowed
			}
		}()
	}
	wg.Wait()
	close(allowed)

	granted := 0
	for ok := range allowed {
		if ok {
			granted++
		}
	}
	assert.Equal(t, limit, granted, "exactly the limit may be granted under contention")

	used, err := st.Usage.Get(ctx, org.ID, "analyses_created", period, "")
	require.NoError(t, err)
	assert.Equal(t, limit, used)
}

func testJobsOutbox(t *testing.T, st *store.Store) {
	ctx := context.Background()
	org := seedOrg(t, st, models.PlanFree)
	user := seedUser(t, st, org.ID)
	base := time.Now().UTC().Truncate(time.Millisecond)
	_, j1 := seedAnalysis(t, st, org.ID, user.ID, base)
	_, j2 := seedAnalysis(t, st, org.ID, user.ID, base.Add(time.Second))

	// First pass claims both in scheduled order.
	var publishedIDs []string
	n, err := st.Jobs.PublishPending(ctx, 10, func(ctx context.Context, j *models.Job) error {
		publishedIDs = append(publishedIDs, j.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{j1.ID, j2.ID}, publishedIDs)

	// A second pass finds nothing: published rows are never re-claimed.
	n, err = st.Jobs.PublishPending(ctx, 10, func(ctx context.Context, j *models.Job) error {
		t.Errorf("unexpected publish of %s", j.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// A failing publish leaves the row for the next pass.
	_, j3 := seedAnalysis(t, st, org.ID, user.ID, base.Add(2*time.Second))
	n, err = st.Jobs.PublishPending(ctx, 10, func(ctx context.Context, j *models.Job) error {
		return fmt.Errorf("backend down")
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	got, err := st.Jobs.Get(ctx, j3.ID)
	require.NoError(t, err)
	assert.False(t, got.Published)
}

func testJobsRequeue(t *testing.T, st *store.Store) {
	ctx := context.Background()
	org := seedOrg(t, st, models.PlanFree)
	user := seedUser(t, st, org.ID)
	_, j := seedAnalysis(t, st, org.ID, user.ID, time.Now().UTC())

	n, err := st.Jobs.PublishPending(ctx, 10, func(context.Context, *models.Job) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, st.Jobs.MarkRunning(ctx, j.ID))

	// Two retries keep it queued and unpublished.
	for i := 1; i < models.MaxJobAttempts; i++ {
		got, err := st.Jobs.RequeueForRetry(ctx, j.ID, "transient", models.MaxJobAttempts)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusQueued, got.Status)
		assert.Equal(t, i, got.Attempts)
		assert.False(t, got.Published)
		assert.Equal(t, "transient", got.LastError)
	}

	// The final attempt fails the job.
	got, err := st.Jobs.RequeueForRetry(ctx, j.ID, "still broken", models.MaxJobAttempts)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, models.MaxJobAttempts, got.Attempts)
	assert.NotNil(t, got.FinishedAt)

	_, err = st.Jobs.RequeueForRetry(ctx, uuid.New().String(), "x", models.MaxJobAttempts)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testRefineMessages(t *testing.T, st *store.Store) {
	ctx := context.Background()
	org := seedOrg(t, st, models.PlanPro)
	user := seedUser(t, st, org.ID)
	a, _ := seedAnalysis(t, st, org.ID, user.ID, time.Now().UTC())

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 6; i++ {
		role := models.RefineRoleUser
		if i%2 == 1 {
			role = models.RefineRoleAssistant
		}
		require.NoError(t, st.RefineMessages.Append(ctx, org.ID, &models.RefineMessage{
			ID:         uuid.New().String(),
			AnalysisID: a.ID,
			OrgID:      org.ID,
			Role:       role,
			Content:    fmt.Sprintf("turn %d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	// The last N in chronological order.
	msgs, err := st.RefineMessages.ListRecent(ctx, org.ID, a.ID, 4)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "turn 2", msgs[0].Content)
	assert.Equal(t, "turn 5", msgs[3].Content)

	// Limit beyond the history returns everything.
	msgs, err = st.RefineMessages.ListRecent(ctx, org.ID, a.ID, 20)
	require.NoError(t, err)
	assert.Len(t, msgs, 6)
}

func testOrphanScan(t *testing.T, st *store.Store) {
	ctx := context.Background()
	org := seedOrg(t, st, models.PlanFree)
	user := seedUser(t, st, org.ID)

	// Orphan: running analysis whose job already failed.
	orphan, jOrphan := seedAnalysis(t, st, org.ID, user.ID, time.Now().UTC())
	require.NoError(t, st.Analyses.UpdateStatus(ctx, org.ID, orphan.ID,
		models.AnalysisStatusPending, models.AnalysisStatusRunning))
	require.NoError(t, st.Jobs.MarkFailed(ctx, jOrphan.ID, "exhausted"))

	// Live: running analysis with a freshly started job.
	live, jLive := seedAnalysis(t, st, org.ID, user.ID, time.Now().UTC())
	require.NoError(t, st.Analyses.UpdateStatus(ctx, org.ID, live.ID,
		models.AnalysisStatusPending, models.AnalysisStatusRunning))
	require.NoError(t, st.Jobs.MarkRunning(ctx, jLive.ID))

	found, err := st.Jobs.RunningAnalysesWithoutLiveJob(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, orphan.ID, found[0].ID)
}
