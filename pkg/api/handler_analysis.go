package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/quota"
	"github.com/boardroomhq/boardroom/pkg/services"
)

func (s *Server) handleSubmitAnalysis(c *gin.Context) {
	var req submitAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	analysis, err := s.analyses.Submit(c.Request.Context(), identityFrom(c), services.SubmitInput{
		Problem:      req.ProblemDescription,
		BusinessType: req.BusinessType,
		Industry:     req.Industry,
		Depth:        models.Depth(req.Depth),
	})
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, submitResponse{
		AnalysisID: analysis.ID,
		Status:     string(analysis.Status),
	})
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	detail, err := s.analyses.Get(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, shapeAnalysisDetail(detail))
}

func (s *Server) handleListAnalyses(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("limit must be an integer"))
			return
		}
		limit = n
	}
	items, next, err := s.analyses.List(c.Request.Context(), identityFrom(c), limit, c.Query("cursor"))
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, shapeAnalysisList(items, next))
}

// handleExportAnalysis runs the plan gate for the requested format. Rendering
// is delegated to an external renderer, so a passed gate answers 501 naming
// the renderer the document would come from.
func (s *Server) handleExportAnalysis(c *gin.Context) {
	format := quota.ExportFormat(c.DefaultQuery("format", string(quota.ExportMarkdown)))
	renderer, err := s.analyses.ExportGate(c.Request.Context(), identityFrom(c), c.Param("id"), format)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusNotImplemented, gin.H{
		"error":    "export rendering is not implemented",
		"renderer": renderer,
		"format":   string(format),
	})
}
