package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleRefineAnalysis(c *gin.Context) {
	var req refineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	reply, err := s.refine.Refine(c.Request.Context(), identityFrom(c), c.Param("id"), req.Message)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, refineResponse{
		Reply: reply.Reply,
		Usage: refineUsageResponse{
			Used:      reply.Used,
			Limit:     reply.Limit,
			Remaining: reply.Remaining,
		},
	})
}
