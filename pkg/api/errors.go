package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/boardroomhq/boardroom/pkg/auth"
	"github.com/boardroomhq/boardroom/pkg/services"
	"github.com/boardroomhq/boardroom/pkg/store"
)

func errorBody(msg string) gin.H {
	return gin.H{"error": msg}
}

// mapServiceError translates service and store errors into the response
// contract. Internal detail never leaks: unexpected errors answer with a
// generic 500 and a log line.
func (s *Server) mapServiceError(c *gin.Context, err error) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
		return
	}

	var qerr *services.QuotaError
	if errors.As(err, &qerr) {
		body := gin.H{
			"error": "quota exceeded",
			"used":  qerr.Used,
			"limit": qerr.Limit,
		}
		if qerr.UpgradeTo != "" {
			body["upgrade_to"] = string(qerr.UpgradeTo)
		}
		c.JSON(http.StatusPaymentRequired, body)
		return
	}

	switch {
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrWrongTokenType):
		c.JSON(http.StatusUnauthorized, errorBody("invalid credentials"))

	case errors.Is(err, services.ErrTenantMismatch):
		s.logger.Warn("tenant_mismatch",
			"path", c.Request.URL.Path,
			"client_ip", c.ClientIP(),
		)
		c.JSON(http.StatusForbidden, errorBody("forbidden"))

	case errors.Is(err, services.ErrNotCompleted):
		c.JSON(http.StatusBadRequest, errorBody("analysis is not completed"))

	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody("resource not found"))

	case errors.Is(err, store.ErrStoreBusy):
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, errorBody("service temporarily unavailable"))

	default:
		s.logger.Error("unexpected service error",
			"error", err,
			"path", c.Request.URL.Path,
		)
		c.JSON(http.StatusInternalServerError, errorBody("internal server error"))
	}
}
