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

func TestPump_PublishesOutboxEntriesOnce(t *testing.T) {
	st := memory.New()
	b := NewInProcBackend(8)
	defer b.Close()
	p := NewPump(st.Jobs, b, nil)
	ctx := context.Background()

	org := seedOrg(t, st, models.PlanFree)
	_, j1 := seedAnalysisJob(t, st, org.ID)
	_, j2 := seedAnalysisJob(t, st, org.ID)

	published, err := p.pumpOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, published)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		d, err := b.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, d)
		seen[d.JobID] = true
	}
	assert.True(t, seen[j1.ID])
	assert.True(t, seen[j2.ID])

	// The second pass finds nothing unpublished.
	published, err = p.pumpOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, published)
}

func TestPump_PublishFailureRetriesNextPass(t *testing.T) {
	st := memory.New()
	b := NewInProcBackend(1)
	defer b.Close()
	p := NewPump(st.Jobs, b, nil)
	ctx := context.Background()

	org := seedOrg(t, st, models.PlanFree)
	seedAnalysisJob(t, st, org.ID)
	seedAnalysisJob(t, st, org.ID)

	// Capacity 1: the second publish hits ErrQueueFull and stays unpublished.
	published, err := p.pumpOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, published)

	d, err := b.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, d)

	// With room again, the next pass picks up the remainder.
	published, err = p.pumpOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, published)
}

func TestPump_StartStop(t *testing.T) {
	st := memory.New()
	b := NewInProcBackend(8)
	defer b.Close()
	p := NewPump(st.Jobs, b, nil)

	org := seedOrg(t, st, models.PlanFree)
	_, j := seedAnalysisJob(t, st, org.ID)

	p.Start(context.Background())
	defer p.Stop()

	d, err := b.Dequeue(context.Background(), 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, j.ID, d.JobID)

	// Stop is idempotent.
	p.Stop()
	p.Stop()
}

func TestPump_JitteredInterval(t *testing.T) {
	p := NewPump(memory.New().Jobs, NewInProcBackend(1), nil)
	for i := 0; i < 100; i++ {
		iv := p.jitteredInterval()
		assert.GreaterOrEqual(t, iv, p.interval*4/5)
		assert.Less(t, iv, p.interval*6/5)
	}
}
