package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/quota"
	"github.com/boardroomhq/boardroom/pkg/store"
	"github.com/boardroomhq/boardroom/pkg/store/memory"
)

func validSubmitInput() SubmitInput {
	return SubmitInput{
		Problem:      "Sales dropped 20% over the last quarter and churn doubled",
		BusinessType: "saas",
		Depth:        models.DepthStandard,
	}
}

func TestAnalysisService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending analysis with outbox job", func(t *testing.T) {
		st := memory.New()
		svc := NewAnalysisService(st, testEngine(st), nil)
		org := seedOrg(t, st, models.PlanPro)
		id := identityFor(org)

		a, err := svc.Submit(ctx, id, validSubmitInput())
		require.NoError(t, err)
		assert.Equal(t, models.AnalysisStatusPending, a.Status)
		assert.Equal(t, org.ID, a.OrgID)
		assert.Equal(t, id.UserID, a.UserID)

		// The job committed alongside the analysis and awaits the pump.
		published := 0
		var publishedAnalysis string
		_, err = st.Jobs.PublishPending(ctx, 10, func(_ context.Context, j *models.Job) error {
			published++
			publishedAnalysis = j.AnalysisID
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, published)
		assert.Equal(t, a.ID, publishedAnalysis)
	})

	t.Run("defaults depth to standard", func(t *testing.T) {
		st := memory.New()
		svc := NewAnalysisService(st, testEngine(st), nil)
		org := seedOrg(t, st, models.PlanPro)

		in := validSubmitInput()
		in.Depth = ""
		a, err := svc.Submit(ctx, identityFor(org), in)
		require.NoError(t, err)
		assert.Equal(t, models.DepthStandard, a.Depth)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		st := memory.New()
		svc := NewAnalysisService(st, testEngine(st), nil)
		org := seedOrg(t, st, models.PlanPro)
		id := identityFor(org)

		cases := []struct {
			name  string
			mut   func(*SubmitInput)
			field string
		}{
			{"problem too short", func(in *SubmitInput) { in.Problem = "too short" }, "problem_description"},
			{"problem too long", func(in *SubmitInput) { in.Problem = strings.Repeat("x", MaxProblemLength+1) }, "problem_description"},
			{"unknown business type", func(in *SubmitInput) { in.BusinessType = "crypto" }, "business_type"},
			{"unknown depth", func(in *SubmitInput) { in.Depth = "extreme" }, "depth"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				in := validSubmitInput()
				tc.mut(&in)
				_, err := svc.Submit(ctx, id, in)
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tc.field, verr.Field)
			})
		}
	})

	t.Run("free plan denies the sixth submission", func(t *testing.T) {
		st := memory.New()
		svc := NewAnalysisService(st, testEngine(st), nil)
		org := seedOrg(t, st, models.PlanFree)
		id := identityFor(org)

		for i := 0; i < 5; i++ {
			_, err := svc.Submit(ctx, id, validSubmitInput())
			require.NoError(t, err)
		}

		_, err := svc.Submit(ctx, id, validSubmitInput())
		var qerr *QuotaError
		require.ErrorAs(t, err, &qerr)
		assert.Equal(t, quota.FeatureAnalysesCreated, qerr.Feature)
		assert.Equal(t, 5, qerr.Used)
		assert.Equal(t, 5, qerr.Limit)
		assert.Equal(t, models.PlanPro, qerr.UpgradeTo)

		// Denial created nothing.
		items, _, err := svc.List(ctx, id, 50, "")
		require.NoError(t, err)
		assert.Len(t, items, 5)
	})

	t.Run("enterprise plan is unlimited", func(t *testing.T) {
		st := memory.New()
		svc := NewAnalysisService(st, testEngine(st), nil)
		org := seedOrg(t, st, models.PlanEnterprise)
		id := identityFor(org)

		for i := 0; i < 7; i++ {
			_, err := svc.Submit(ctx, id, validSubmitInput())
			require.NoError(t, err)
		}
	})
}

func TestAnalysisService_Get(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := NewAnalysisService(st, testEngine(st), nil)
	org := seedOrg(t, st, models.PlanPro)
	a := seedCompletedAnalysis(t, st, org.ID)

	t.Run("returns analysis with outputs", func(t *testing.T) {
		detail, err := svc.Get(ctx, identityFor(org), a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, detail.Analysis.ID)
		assert.Len(t, detail.Outputs, 2)
	})

	t.Run("cross-org id reads as not found", func(t *testing.T) {
		other := seedOrg(t, st, models.PlanPro)
		_, err := svc.Get(ctx, identityFor(other), a.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestAnalysisService_List(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := NewAnalysisService(st, testEngine(st), nil)
	org := seedOrg(t, st, models.PlanPro)
	id := identityFor(org)

	for i := 0; i < 3; i++ {
		seedPendingAnalysis(t, st, org.ID)
	}

	t.Run("pages newest first", func(t *testing.T) {
		first, cursor, err := svc.List(ctx, id, 2, "")
		require.NoError(t, err)
		require.Len(t, first, 2)
		require.NotEmpty(t, cursor)

		rest, next, err := svc.List(ctx, id, 2, cursor)
		require.NoError(t, err)
		assert.Len(t, rest, 1)
		assert.Empty(t, next)
	})

	t.Run("zero limit uses the default page size", func(t *testing.T) {
		items, _, err := svc.List(ctx, id, 0, "")
		require.NoError(t, err)
		assert.Len(t, items, 3)
	})

	t.Run("malformed cursor is a validation error", func(t *testing.T) {
		_, _, err := svc.List(ctx, id, 10, "not-a-cursor")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "cursor", verr.Field)
	})
}

func TestAnalysisService_ExportGate(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := NewAnalysisService(st, testEngine(st), nil)

	t.Run("plan admits format", func(t *testing.T) {
		org := seedOrg(t, st, models.PlanFree)
		a := seedCompletedAnalysis(t, st, org.ID)

		renderer, err := svc.ExportGate(ctx, identityFor(org), a.ID, quota.ExportMarkdown)
		require.NoError(t, err)
		assert.Equal(t, "markdown-renderer", renderer)
	})

	t.Run("plan gate denies with upgrade suggestion", func(t *testing.T) {
		org := seedOrg(t, st, models.PlanFree)
		a := seedCompletedAnalysis(t, st, org.ID)

		_, err := svc.ExportGate(ctx, identityFor(org), a.ID, quota.ExportPDF)
		var qerr *QuotaError
		require.ErrorAs(t, err, &qerr)
		assert.Equal(t, models.PlanPro, qerr.UpgradeTo)
	})

	t.Run("enterprise exports every format", func(t *testing.T) {
		org := seedOrg(t, st, models.PlanEnterprise)
		a := seedCompletedAnalysis(t, st, org.ID)

		renderer, err := svc.ExportGate(ctx, identityFor(org), a.ID, quota.ExportPPTX)
		require.NoError(t, err)
		assert.Equal(t, "pptx-renderer", renderer)
	})

	t.Run("pending analysis cannot export", func(t *testing.T) {
		org := seedOrg(t, st, models.PlanPro)
		a := seedPendingAnalysis(t, st, org.ID)

		_, err := svc.ExportGate(ctx, identityFor(org), a.ID, quota.ExportMarkdown)
		assert.ErrorIs(t, err, ErrNotCompleted)
	})

	t.Run("unknown format is a validation error", func(t *testing.T) {
		org := seedOrg(t, st, models.PlanPro)
		a := seedCompletedAnalysis(t, st, org.ID)

		_, err := svc.ExportGate(ctx, identityFor(org), a.ID, "xls")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "format", verr.Field)
	})
}
