package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store/memory"
)

func TestSweeper_ReclaimsOrphanedRunningAnalysis(t *testing.T) {
	st := memory.New()
	s := NewSweeper(st, nil)
	s.staleAfter = 0
	ctx := context.Background()

	org := seedOrg(t, st, models.PlanFree)
	a, j := seedAnalysisJob(t, st, org.ID)

	// Simulate a worker that claimed the job and died mid-run.
	require.NoError(t, st.Jobs.MarkRunning(ctx, j.ID))
	require.NoError(t, st.Analyses.UpdateStatus(ctx, org.ID, a.ID,
		models.AnalysisStatusPending, models.AnalysisStatusRunning))

	time.Sleep(time.Millisecond)
	s.SweepOnce(ctx)

	got, err := st.Analyses.Get(ctx, org.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusFailed, got.Status)
	assert.Equal(t, "worker lost", got.Error)
}

func TestSweeper_LeavesLiveRunsAlone(t *testing.T) {
	st := memory.New()
	s := NewSweeper(st, nil)
	ctx := context.Background()

	org := seedOrg(t, st, models.PlanFree)
	a, j := seedAnalysisJob(t, st, org.ID)
	require.NoError(t, st.Jobs.MarkRunning(ctx, j.ID))
	require.NoError(t, st.Analyses.UpdateStatus(ctx, org.ID, a.ID,
		models.AnalysisStatusPending, models.AnalysisStatusRunning))

	// The job started seconds ago, well inside the stale window.
	s.SweepOnce(ctx)

	got, err := st.Analyses.Get(ctx, org.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusRunning, got.Status)
}

func TestSweeper_ReclaimsRunningAnalysisWithTerminalJob(t *testing.T) {
	st := memory.New()
	s := NewSweeper(st, nil)
	ctx := context.Background()

	org := seedOrg(t, st, models.PlanFree)
	a, j := seedAnalysisJob(t, st, org.ID)
	require.NoError(t, st.Analyses.UpdateStatus(ctx, org.ID, a.ID,
		models.AnalysisStatusPending, models.AnalysisStatusRunning))
	require.NoError(t, st.Jobs.MarkFailed(ctx, j.ID, "exhausted"))

	s.SweepOnce(ctx)

	got, err := st.Analyses.Get(ctx, org.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusFailed, got.Status)
	assert.Equal(t, "worker lost", got.Error)
}

func TestSweeper_StartStop(t *testing.T) {
	s := NewSweeper(memory.New(), nil)
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
