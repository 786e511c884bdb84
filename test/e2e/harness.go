// Package e2e runs the full stack in one process: in-memory store, in-process
// queue, real worker pool, and the gin API behind an httptest server. Only
// the completion provider is stubbed.
package e2e

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/boardroomhq/boardroom/pkg/agent"
	"github.com/boardroomhq/boardroom/pkg/agent/prompt"
	"github.com/boardroomhq/boardroom/pkg/api"
	"github.com/boardroomhq/boardroom/pkg/auth"
	"github.com/boardroomhq/boardroom/pkg/cache"
	"github.com/boardroomhq/boardroom/pkg/config"
	"github.com/boardroomhq/boardroom/pkg/llm"
	"github.com/boardroomhq/boardroom/pkg/queue"
	"github.com/boardroomhq/boardroom/pkg/quota"
	"github.com/boardroomhq/boardroom/pkg/services"
	"github.com/boardroomhq/boardroom/pkg/store"
	"github.com/boardroomhq/boardroom/pkg/store/memory"
)

// WebhookSecret signs billing webhook test events.
const WebhookSecret = "whsec-e2e-secret"

// agentTimeout is deliberately short so hang scenarios settle quickly.
const agentTimeout = 400 * time.Millisecond

// System-prompt markers for scripting the stub provider per agent.
const (
	MarkAnalyst    = "lead business analyst"
	MarkCommercial = "commercial strategist"
	MarkMarket     = "market researcher"
	MarkFinancial  = "financial analyst"
	MarkReviewer   = "senior partner chairing"
	MarkRefine     = "senior partner who chaired"
)

// TestApp is one fully wired instance under test.
type TestApp struct {
	Store  *store.Store
	Stub   *llm.StubProvider
	Tokens *auth.TokenManager
	HTTP   *httptest.Server
}

// StartApp boots the stack and registers teardown on t.
func StartApp(t *testing.T) *TestApp {
	t.Helper()

	st := memory.New()
	stub := llm.NewStubProvider()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := llm.WithRetry(stub,
		llm.RetryBaseDelay(time.Millisecond),
		llm.RetryMaxDelay(5*time.Millisecond),
		llm.RetryLogger(logger),
	)

	prompts, err := prompt.NewStore()
	require.NoError(t, err)
	tokens, err := auth.NewTokenManager(strings.Repeat("e", 32))
	require.NoError(t, err)
	engine := quota.NewEngine(st.Usage, logger)

	backend := queue.NewInProcBackend(64)
	q := queue.New(backend, st.Jobs, logger)

	panel := agent.ProductionAgents("", "")
	for i := range panel {
		panel[i].Timeout = agentTimeout
	}

	pool := queue.NewWorkerPool(queue.PoolConfig{
		Workers:  2,
		Queue:    q,
		Store:    st,
		Provider: provider,
		Prompts:  prompts,
		Panel:    panel,
		Memo:     cache.NewMemoryCache(),
		Logger:   logger,
	})
	pool.Start(t.Context())

	cfg := &config.Config{
		Environment:          config.EnvDevelopment,
		HTTPPort:             8080,
		LogLevel:             "info",
		JWTSigningSecret:     strings.Repeat("e", 32),
		BillingWebhookSecret: WebhookSecret,
	}
	server := api.NewServer(api.ServerConfig{
		Config:   cfg,
		Tokens:   tokens,
		Auth:     services.NewAuthService(st, tokens, logger),
		Analyses: services.NewAnalysisService(st, engine, logger),
		Refine:   services.NewRefineService(st, engine, provider, prompts, "", logger),
		Billing:  services.NewBillingService(st, logger),
		Logger:   logger,
	})

	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		httpServer.Close()
		pool.Stop()
		_ = backend.Close()
	})
	return &TestApp{Store: st, Stub: stub, Tokens: tokens, HTTP: httpServer}
}
