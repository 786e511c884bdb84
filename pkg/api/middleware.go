package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/boardroomhq/boardroom/pkg/auth"
)

// Fixed-window rate limits, requests per minute.
const (
	generalRateLimit = 60
	authRateLimit    = 10
	userRateLimit    = 120

	rateLimitWindow = time.Minute
)

// identityKey is the gin context key the auth middleware stores the verified
// identity under.
const identityKey = "identity"

// identityFrom reads the verified identity set by authRequired.
func identityFrom(c *gin.Context) *auth.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*auth.Identity)
	return id
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// recovery turns a handler panic into a 500 instead of a dead connection.
func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("handler panicked",
					"panic", r,
					"path", c.Request.URL.Path,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("internal server error"))
			}
		}()
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

// corsAllowList answers CORS for exactly the configured origins. No origins
// configured means no CORS headers at all.
func (s *Server) corsAllowList() gin.HandlerFunc {
	allowed := make(map[string]bool, len(s.cfg.CORSAllowOrigins))
	for _, origin := range s.cfg.CORSAllowOrigins {
		allowed[origin] = true
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && allowed[origin] {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Max-Age", "600")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestDeadline bounds handler work to requestTimeout.
func requestDeadline() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// authRequired verifies the bearer token and stores the identity for
// handlers downstream.
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Request.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("missing bearer token"))
			return
		}
		id, err := s.tokens.Verify(token, auth.TokenTypeAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("invalid or expired token"))
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// rateLimitIP enforces a fixed-window per-IP limit. A counter backend
// failure fails open: the request proceeds and the failure is logged.
func (s *Server) rateLimitIP(scope string, limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.enforceLimit(c, "rl:"+scope+":"+c.ClientIP(), limit)
	}
}

// rateLimitUser enforces the per-user limit after authentication.
func (s *Server) rateLimitUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identityFrom(c)
		if id == nil {
			c.Next()
			return
		}
		s.enforceLimit(c, "rl:user:"+id.UserID, userRateLimit)
	}
}

func (s *Server) enforceLimit(c *gin.Context, key string, limit int64) {
	if s.counters == nil {
		c.Next()
		return
	}
	n, err := s.counters.IncrWindow(c.Request.Context(), key, rateLimitWindow)
	if err != nil {
		s.logger.Warn("rate limit counter unavailable, failing open", "error", err)
		c.Next()
		return
	}
	if n > limit {
		c.Header("Retry-After", "60")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody("rate limit exceeded"))
		return
	}
	c.Next()
}
