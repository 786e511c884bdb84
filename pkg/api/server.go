// Package api is the HTTP edge: gin routing, auth and rate-limit middleware,
// request binding, and the mapping from service errors to status codes.
// Handlers stay thin; every business rule lives in pkg/services or deeper.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/boardroomhq/boardroom/pkg/auth"
	"github.com/boardroomhq/boardroom/pkg/cache"
	"github.com/boardroomhq/boardroom/pkg/config"
	"github.com/boardroomhq/boardroom/pkg/services"
)

const (
	// requestTimeout bounds one request's handler work.
	requestTimeout = 30 * time.Second

	shutdownTimeout = 10 * time.Second
)

// ReadyCheck probes one dependency for the readiness endpoint.
type ReadyCheck func(ctx context.Context) error

// ServerConfig carries the server's dependencies.
type ServerConfig struct {
	Config   *config.Config
	Tokens   *auth.TokenManager
	Auth     *services.AuthService
	Analyses *services.AnalysisService
	Refine   *services.RefineService
	Billing  *services.BillingService

	// Counters back the fixed-window rate limits. Unavailability fails open.
	Counters cache.Counters

	// ReadyChecks are probed by GET /health/ready, keyed by dependency name.
	ReadyChecks map[string]ReadyCheck

	Logger *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	cfg      *config.Config
	tokens   *auth.TokenManager
	auth     *services.AuthService
	analyses *services.AnalysisService
	refine   *services.RefineService
	billing  *services.BillingService
	counters cache.Counters
	checks   map[string]ReadyCheck
	logger   *slog.Logger

	engine *gin.Engine
	http   *http.Server
}

// NewServer builds the server and its route tree. Panics on nil dependencies.
func NewServer(sc ServerConfig) *Server {
	if sc.Config == nil {
		panic("NewServer: config is required")
	}
	if sc.Tokens == nil {
		panic("NewServer: token manager is required")
	}
	if sc.Auth == nil || sc.Analyses == nil || sc.Refine == nil || sc.Billing == nil {
		panic("NewServer: all services are required")
	}
	if sc.Logger == nil {
		sc.Logger = slog.Default()
	}

	if sc.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      sc.Config,
		tokens:   sc.Tokens,
		auth:     sc.Auth,
		analyses: sc.Analyses,
		refine:   sc.Refine,
		billing:  sc.Billing,
		counters: sc.Counters,
		checks:   sc.ReadyChecks,
		logger:   sc.Logger,
	}
	s.engine = s.buildRouter()
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", sc.Config.HTTPPort),
		Handler:      s.engine,
		ReadTimeout:  requestTimeout,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  2 * time.Minute,
	}
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(
		s.requestLogger(),
		s.recovery(),
		securityHeaders(),
		s.corsAllowList(),
		requestDeadline(),
	)

	r.GET("/health/live", s.handleHealthLive)
	r.GET("/health/ready", s.handleHealthReady)

	r.POST("/webhooks/billing", s.handleBillingWebhook)

	authGroup := r.Group("/auth", s.rateLimitIP("auth", authRateLimit))
	{
		authGroup.POST("/register", s.handleRegister)
		authGroup.POST("/login", s.handleLogin)
		authGroup.POST("/refresh", s.handleRefresh)
	}

	api := r.Group("/", s.rateLimitIP("ip", generalRateLimit), s.authRequired(), s.rateLimitUser())
	{
		api.POST("/analyses", s.handleSubmitAnalysis)
		api.GET("/analyses", s.handleListAnalyses)
		api.GET("/analyses/:id", s.handleGetAnalysis)
		api.GET("/analyses/:id/export", s.handleExportAnalysis)
		api.POST("/analyses/:id/refine", s.handleRefineAnalysis)
	}

	return r
}

// Handler exposes the route tree, used by tests and by Start.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
