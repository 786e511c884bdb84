package e2e

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefineConversationFlow(t *testing.T) {
	app := StartApp(t)
	token := app.Register(t, "refine@example.com")

	id := app.Submit(t, token, "Sales dropped 20% over 3 months and churn doubled")
	app.WaitForStatus(t, token, id, "completed")

	t.Run("turns answer with usage accounting", func(t *testing.T) {
		app.Stub.ScriptCompletion(MarkRefine, "It concentrates in self-serve.", 200, 80)
		res := app.Refine(t, token, id, "Which segment drives the decline?")
		require.Equal(t, http.StatusOK, res.Status)
		assert.Equal(t, "It concentrates in self-serve.", res.Body["reply"])

		usage, ok := res.Body["usage"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(1), usage["used"])
		assert.Equal(t, float64(3), usage["limit"])
		assert.Equal(t, float64(2), usage["remaining"])
	})

	t.Run("budget exhausts on the free plan", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			app.Stub.ScriptCompletion(MarkRefine, "More detail.", 100, 40)
			res := app.Refine(t, token, id, "Tell me more.")
			require.Equal(t, http.StatusOK, res.Status)
		}

		res := app.Refine(t, token, id, "One more question?")
		require.Equal(t, http.StatusPaymentRequired, res.Status)
		assert.Equal(t, float64(3), res.Body["used"])
		assert.Equal(t, float64(3), res.Body["limit"])
	})

}

func TestRefineRequiresCompletedAnalysis(t *testing.T) {
	app := StartApp(t)
	token := app.Register(t, "refine-early@example.com")

	// Keep the run in flight so the analysis is not yet completed.
	app.Stub.ScriptHang(MarkAnalyst)
	id := app.Submit(t, token, "Margins compressed by 8 points after the platform migration")

	res := app.Refine(t, token, id, "Early thoughts?")
	require.Equal(t, http.StatusBadRequest, res.Status)
	assert.Contains(t, res.Body["error"], "not completed")
}
