package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/boardroomhq/boardroom/pkg/agent"
	"github.com/boardroomhq/boardroom/pkg/auth"
	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/quota"
	"github.com/boardroomhq/boardroom/pkg/store"
)

func testTokens(t *testing.T) *auth.TokenManager {
	t.Helper()
	m, err := auth.NewTokenManager(strings.Repeat("s", 32))
	require.NoError(t, err)
	return m
}

// seedOrg inserts a tenant on the given plan with a cycle already underway.
func seedOrg(t *testing.T, st *store.Store, plan models.Plan) *models.Organization {
	t.Helper()
	org := &models.Organization{
		ID:             uuid.New().String(),
		Name:           "acme",
		Plan:           plan,
		CycleStartedAt: time.Now().UTC().Add(-time.Hour),
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, st.Orgs.Create(context.Background(), org))
	return org
}

func identityFor(org *models.Organization) *auth.Identity {
	return &auth.Identity{UserID: uuid.New().String(), OrgID: org.ID, Plan: org.Plan}
}

func testEngine(st *store.Store) *quota.Engine {
	return quota.NewEngine(st.Usage, nil)
}

// seedPendingAnalysis inserts a pending analysis with its queued job.
func seedPendingAnalysis(t *testing.T, st *store.Store, orgID string) *models.Analysis {
	t.Helper()
	now := time.Now().UTC()
	a := &models.Analysis{
		ID:           uuid.New().String(),
		OrgID:        orgID,
		UserID:       uuid.New().String(),
		Problem:      "Sales dropped 20% over 3 months and churn doubled",
		BusinessType: "saas",
		Depth:        models.DepthStandard,
		Status:       models.AnalysisStatusPending,
		CreatedAt:    now,
	}
	j := &models.Job{
		ID:          uuid.New().String(),
		Type:        models.JobTypeRunAnalysis,
		AnalysisID:  a.ID,
		OrgID:       orgID,
		Status:      models.JobStatusQueued,
		ScheduledAt: now,
	}
	require.NoError(t, st.Jobs.CreateWithAnalysis(context.Background(), a, j))
	return a
}

// seedCompletedAnalysis runs a pending analysis to completed with a reviewer
// output, the state refine and export operate on.
func seedCompletedAnalysis(t *testing.T, st *store.Store, orgID string) *models.Analysis {
	t.Helper()
	ctx := context.Background()
	a := seedPendingAnalysis(t, st, orgID)
	require.NoError(t, st.Analyses.UpdateStatus(ctx, orgID, a.ID,
		models.AnalysisStatusPending, models.AnalysisStatusRunning))
	require.NoError(t, st.Analyses.Finish(ctx, orgID, &store.AnalysisResult{
		AnalysisID:  a.ID,
		Status:      models.AnalysisStatusCompleted,
		CompletedAt: time.Now().UTC(),
		TokensIn:    500,
		TokensOut:   400,
		TokensTotal: 900,
		Outputs: []*models.AgentOutput{
			{
				AnalysisID: a.ID,
				AgentName:  agent.AgentAnalyst,
				Output:     "Churn concentrated in the self-serve cohort.",
				Status:     models.AgentStatusCompleted,
			},
			{
				AnalysisID: a.ID,
				AgentName:  agent.AgentReviewer,
				Output:     "Executive report: the decline traces to self-serve churn after the March pricing change.",
				Status:     models.AgentStatusCompleted,
			},
		},
	}))
	got, err := st.Analyses.Get(ctx, orgID, a.ID)
	require.NoError(t, err)
	return got
}
