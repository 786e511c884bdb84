package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProviderComplete(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "the answer"}}],
			"usage": {"prompt_tokens": 42, "completion_tokens": 17}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", WithBaseURL(srv.URL+"/v1"))
	got, err := p.Complete(context.Background(), CompletionRequest{
		System:    "you are a strategist",
		User:      "why did sales drop",
		Model:     "gpt-4o-mini",
		MaxTokens: 2048,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "user", gotBody.Messages[1].Role)
	assert.Equal(t, 2048, gotBody.MaxTokens)

	assert.Equal(t, "the answer", got.Text)
	assert.Equal(t, 42, got.InputTokens)
	assert.Equal(t, 17, got.OutputTokens)
	assert.Equal(t, 59, got.TotalTokens())
}

func TestOpenAIProviderClassifiesErrors(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		retryAfter string
		wantKind   ErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, "2", ErrRateLimited},
		{"server error", http.StatusInternalServerError, "", ErrUpstreamUnavailable},
		{"bad gateway", http.StatusBadGateway, "", ErrUpstreamUnavailable},
		{"unauthorized", http.StatusUnauthorized, "", ErrAuth},
		{"bad request", http.StatusBadRequest, "", ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.retryAfter != "" {
					w.Header().Set("Retry-After", tc.retryAfter)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error": {"message": "nope"}}`))
			}))
			defer srv.Close()

			p := NewOpenAIProvider("k", WithBaseURL(srv.URL))
			_, err := p.Complete(context.Background(), CompletionRequest{Model: "gpt-4o-mini"})
			require.Error(t, err)

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.wantKind, pe.Kind)
			assert.Equal(t, tc.status, pe.Status)
			if tc.retryAfter != "" {
				assert.Equal(t, 2*time.Second, pe.RetryAfter)
			}
		})
	}
}

func TestOpenAIProviderDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read; otherwise
		// r.Context() is never canceled on client disconnect and Close hangs.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := NewOpenAIProvider("k", WithBaseURL(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, CompletionRequest{Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpenAIProviderEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("k", WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), CompletionRequest{Model: "gpt-4o-mini"})
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrUpstreamUnavailable, pe.Kind)
}

func TestCostUSD(t *testing.T) {
	// gpt-4o-mini: 0.15 in / 0.60 out per 1M tokens
	cost := CostUSD("gpt-4o-mini", 1_000_000, 1_000_000)
	assert.InDelta(t, 0.75, cost, 1e-9)

	// gpt-4o: 2.50 in / 10.00 out per 1M tokens
	cost = CostUSD("gpt-4o", 500_000, 100_000)
	assert.InDelta(t, 1.25+1.00, cost, 1e-9)

	assert.Zero(t, CostUSD("unknown-model", 1000, 1000))
}
