package api

import (
	"time"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/services"
)

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
}

// submitResponse is the 202 body for an accepted analysis.
type submitResponse struct {
	AnalysisID string `json:"analysis_id"`
	Status     string `json:"status"`
}

// aggregatesResponse rolls up the run's token and cost accounting.
type aggregatesResponse struct {
	TokensIn    int     `json:"tokens_in"`
	TokensOut   int     `json:"tokens_out"`
	TokensTotal int     `json:"tokens_total"`
	CostUSD     float64 `json:"cost_usd"`
	LatencyMS   int64   `json:"latency_ms"`
}

type agentOutputResponse struct {
	AgentName   string `json:"agent_name"`
	Output      string `json:"output,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	TokensTotal int    `json:"tokens_total"`
	LatencyMS   int64  `json:"latency_ms"`
}

// analysisDetailResponse is the full GET /analyses/{id} body.
type analysisDetailResponse struct {
	ID                 string                `json:"id"`
	Status             string                `json:"status"`
	ProblemDescription string                `json:"problem_description"`
	BusinessType       string                `json:"business_type"`
	Industry           string                `json:"industry,omitempty"`
	Depth              string                `json:"depth"`
	PartialFailure     bool                  `json:"partial_failure"`
	Error              string                `json:"error,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	StartedAt          *time.Time            `json:"started_at,omitempty"`
	CompletedAt        *time.Time            `json:"completed_at,omitempty"`
	AgentOutputs       []agentOutputResponse `json:"agent_outputs"`
	Aggregates         aggregatesResponse    `json:"aggregates"`
}

// analysisSummaryResponse is one list item.
type analysisSummaryResponse struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	ProblemDescription string     `json:"problem_description"`
	BusinessType       string     `json:"business_type"`
	Depth              string     `json:"depth"`
	PartialFailure     bool       `json:"partial_failure"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

type analysisListResponse struct {
	Items      []analysisSummaryResponse `json:"items"`
	NextCursor string                    `json:"next_cursor,omitempty"`
}

type refineUsageResponse struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

type refineResponse struct {
	Reply string              `json:"reply"`
	Usage refineUsageResponse `json:"usage"`
}

func shapeAnalysisDetail(d *services.AnalysisDetail) analysisDetailResponse {
	a := d.Analysis
	outputs := make([]agentOutputResponse, 0, len(d.Outputs))
	for _, out := range d.Outputs {
		outputs = append(outputs, agentOutputResponse{
			AgentName:   out.AgentName,
			Output:      out.Output,
			Status:      string(out.Status),
			Error:       out.Error,
			TokensTotal: out.TokensTotal,
			LatencyMS:   out.LatencyMS,
		})
	}
	return analysisDetailResponse{
		ID:                 a.ID,
		Status:             string(a.Status),
		ProblemDescription: a.Problem,
		BusinessType:       a.BusinessType,
		Industry:           a.Industry,
		Depth:              string(a.Depth),
		PartialFailure:     a.PartialFailure,
		Error:              a.Error,
		CreatedAt:          a.CreatedAt,
		StartedAt:          a.StartedAt,
		CompletedAt:        a.CompletedAt,
		AgentOutputs:       outputs,
		Aggregates: aggregatesResponse{
			TokensIn:    a.TokensIn,
			TokensOut:   a.TokensOut,
			TokensTotal: a.TokensTotal,
			CostUSD:     a.CostUSD,
			LatencyMS:   a.LatencyMS,
		},
	}
}

func shapeAnalysisList(items []*models.Analysis, next string) analysisListResponse {
	out := analysisListResponse{
		Items:      make([]analysisSummaryResponse, 0, len(items)),
		NextCursor: next,
	}
	for _, a := range items {
		out.Items = append(out.Items, analysisSummaryResponse{
			ID:                 a.ID,
			Status:             string(a.Status),
			ProblemDescription: a.Problem,
			BusinessType:       a.BusinessType,
			Depth:              string(a.Depth),
			PartialFailure:     a.PartialFailure,
			CreatedAt:          a.CreatedAt,
			CompletedAt:        a.CompletedAt,
		})
	}
	return out
}
