package e2e

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/boardroomhq/boardroom/pkg/auth"
)

// Response is one parsed JSON reply plus its status code.
type Response struct {
	Status int
	Body   map[string]any
}

func (app *TestApp) request(t *testing.T, method, path, token string, body any) Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, app.HTTP.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := app.HTTP.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	parsed := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &parsed), "body: %s", raw)
	}
	return Response{Status: res.StatusCode, Body: parsed}
}

// Register creates an org with one user and returns the access token.
func (app *TestApp) Register(t *testing.T, email string) string {
	t.Helper()
	res := app.request(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email":    email,
		"password": "hunter2abc",
		"org_name": "Acme " + email,
	})
	require.Equal(t, http.StatusCreated, res.Status)
	token, _ := res.Body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

// OrgID extracts the tenant id from an access token.
func (app *TestApp) OrgID(t *testing.T, token string) string {
	t.Helper()
	id, err := app.Tokens.Verify(token, auth.TokenTypeAccess)
	require.NoError(t, err)
	return id.OrgID
}

// Submit posts an analysis and returns its id.
func (app *TestApp) Submit(t *testing.T, token, problem string) string {
	t.Helper()
	res := app.SubmitRaw(t, token, problem)
	require.Equal(t, http.StatusAccepted, res.Status, "body: %v", res.Body)
	id, _ := res.Body["analysis_id"].(string)
	require.NotEmpty(t, id)
	return id
}

// SubmitRaw posts an analysis without asserting the outcome.
func (app *TestApp) SubmitRaw(t *testing.T, token, problem string) Response {
	t.Helper()
	return app.request(t, http.MethodPost, "/analyses", token, map[string]any{
		"problem_description": problem,
		"business_type":       "saas",
		"depth":               "standard",
	})
}

// GetAnalysis fetches the full detail of one analysis.
func (app *TestApp) GetAnalysis(t *testing.T, token, id string) Response {
	t.Helper()
	return app.request(t, http.MethodGet, "/analyses/"+id, token, nil)
}

// WaitForStatus polls until the analysis reaches the wanted status.
func (app *TestApp) WaitForStatus(t *testing.T, token, id, want string) map[string]any {
	t.Helper()
	var last map[string]any
	require.Eventually(t, func() bool {
		res := app.GetAnalysis(t, token, id)
		if res.Status != http.StatusOK {
			return false
		}
		last = res.Body
		return res.Body["status"] == want
	}, 10*time.Second, 20*time.Millisecond, "analysis %s never reached %s (last: %v)", id, want, last)
	return last
}

// Refine posts one follow-up turn.
func (app *TestApp) Refine(t *testing.T, token, id, message string) Response {
	t.Helper()
	return app.request(t, http.MethodPost, "/analyses/"+id+"/refine", token, map[string]any{
		"message": message,
	})
}

// PostBillingWebhook sends a correctly signed plan-change event.
func (app *TestApp) PostBillingWebhook(t *testing.T, orgID, newPlan string) Response {
	t.Helper()
	raw, err := json.Marshal(map[string]string{
		"org_id":      orgID,
		"new_plan":    newPlan,
		"cycle_start": time.Now().UTC().Format(time.RFC3339),
	})
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte(WebhookSecret))
	mac.Write(raw)
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequest(http.MethodPost, app.HTTP.URL+"/webhooks/billing", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Billing-Signature", signature)

	res, err := app.HTTP.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	parsed := map[string]any{}
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &parsed))
	}
	return Response{Status: res.StatusCode, Body: parsed}
}

// agentOutput finds one agent's entry in a detail body.
func agentOutput(t *testing.T, detail map[string]any, name string) map[string]any {
	t.Helper()
	outputs, ok := detail["agent_outputs"].([]any)
	require.True(t, ok, "agent_outputs missing: %v", detail)
	for _, raw := range outputs {
		out, ok := raw.(map[string]any)
		require.True(t, ok)
		if out["agent_name"] == name {
			return out
		}
	}
	t.Fatalf("agent %s not found in %v", name, outputs)
	return nil
}
