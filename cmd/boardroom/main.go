// Boardroom server — HTTP API, outbox pump, and the agent-panel worker pool
// in one process. Infrastructure is selected by configuration: Postgres,
// Redis, and OpenAI when their URLs and keys are set, in-memory substitutes
// otherwise (development only).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boardroomhq/boardroom/pkg/agent"
	"github.com/boardroomhq/boardroom/pkg/agent/prompt"
	"github.com/boardroomhq/boardroom/pkg/api"
	"github.com/boardroomhq/boardroom/pkg/auth"
	"github.com/boardroomhq/boardroom/pkg/cache"
	"github.com/boardroomhq/boardroom/pkg/config"
	"github.com/boardroomhq/boardroom/pkg/database"
	"github.com/boardroomhq/boardroom/pkg/llm"
	"github.com/boardroomhq/boardroom/pkg/queue"
	"github.com/boardroomhq/boardroom/pkg/quota"
	"github.com/boardroomhq/boardroom/pkg/services"
	"github.com/boardroomhq/boardroom/pkg/store"
	"github.com/boardroomhq/boardroom/pkg/store/memory"
	"github.com/boardroomhq/boardroom/pkg/store/postgres"
)

const shutdownBudget = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	logger.Info("boardroom starting",
		"environment", cfg.Environment,
		"http_port", cfg.HTTPPort,
	)

	ctx := context.Background()
	readyChecks := map[string]api.ReadyCheck{}

	// Store: Postgres when configured, in-memory fallback in development.
	var st *store.Store
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		dbCfg, err := database.LoadConfigFromEnv()
		if err != nil {
			return err
		}
		pool, err = database.Connect(ctx, dbCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pool.Close()
		st = postgres.New(pool)
		readyChecks["database"] = func(ctx context.Context) error {
			_, err := database.Health(ctx, pool)
			return err
		}
		logger.Info("connected to postgres")
	} else {
		st = memory.New()
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	// Cache tier: rate-limit counters and memoization.
	var cacheTier cache.Cache
	if cfg.CacheURL != "" {
		redisCache, err := cache.NewRedisCache(ctx, cfg.CacheURL)
		if err != nil {
			return fmt.Errorf("failed to connect to cache: %w", err)
		}
		defer redisCache.Close()
		cacheTier = redisCache
		readyChecks["cache"] = redisCache.Ping
		logger.Info("connected to redis cache")
	} else {
		cacheTier = cache.NewMemoryCache()
		logger.Info("CACHE_URL not set, using in-memory cache")
	}

	// Queue backend: Redis Streams when configured, in-process channel
	// otherwise.
	var backend queue.Backend
	if cfg.QueueURL != "" {
		consumer, _ := os.Hostname()
		if consumer == "" {
			consumer = "boardroom"
		}
		redisBackend, err := queue.NewRedisBackend(ctx, cfg.QueueURL, consumer)
		if err != nil {
			return fmt.Errorf("failed to connect to queue: %w", err)
		}
		backend = redisBackend
		logger.Info("connected to redis queue", "consumer", consumer)
	} else {
		backend = queue.NewInProcBackend(1024)
		logger.Info("QUEUE_URL not set, using in-process queue")
	}
	defer backend.Close()
	q := queue.New(backend, st.Jobs, logger)
	readyChecks["queue"] = q.Ping

	// Completion provider: OpenAI-compatible API behind retries, or the
	// deterministic stub for keyless development.
	var provider llm.CompletionProvider
	if cfg.LLMAPIKey != "" {
		provider = llm.WithRetry(
			llm.NewOpenAIProvider(cfg.LLMAPIKey, llm.WithBaseURL(cfg.LLMBaseURL)),
			llm.RetryLogger(logger),
		)
		logger.Info("llm provider configured", "base_url", cfg.LLMBaseURL)
	} else {
		provider = llm.NewStubProvider()
		logger.Warn("LLM_API_KEY not set, using stub provider")
	}

	prompts, err := prompt.NewStore()
	if err != nil {
		return fmt.Errorf("failed to load prompt templates: %w", err)
	}
	tokens, err := auth.NewTokenManager(cfg.JWTSigningSecret)
	if err != nil {
		return err
	}

	engine := quota.NewEngine(st.Usage, logger)
	panel := agent.ProductionAgents(cfg.LLMModel, cfg.LLMReviewerModel)

	workers := queue.NewWorkerPool(queue.PoolConfig{
		Workers:  cfg.WorkerCount,
		Queue:    q,
		Store:    st,
		Provider: provider,
		Prompts:  prompts,
		Panel:    panel,
		Memo:     cacheTier,
		Logger:   logger,
	})
	workers.Start(ctx)
	logger.Info("worker pool started")

	server := api.NewServer(api.ServerConfig{
		Config:      cfg,
		Tokens:      tokens,
		Auth:        services.NewAuthService(st, tokens, logger),
		Analyses:    services.NewAnalysisService(st, engine, logger),
		Refine:      services.NewRefineService(st, engine, provider, prompts, cfg.LLMReviewerModel, logger),
		Billing:     services.NewBillingService(st, logger),
		Counters:    cacheTier,
		ReadyChecks: readyChecks,
		Logger:      logger,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()
	logger.Info("boardroom started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server error triggered shutdown", "error", err)
	}

	// Stop intake first, then drain the workers.
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownBudget)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		workers.Stop()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("worker pool stopped")
	case <-shutdownCtx.Done():
		logger.Warn("worker shutdown budget exceeded, incomplete runs will be orphan-recovered")
	}

	logger.Info("shutdown complete")
	return nil
}
