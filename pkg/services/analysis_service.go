package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/boardroomhq/boardroom/pkg/auth"
	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/quota"
	"github.com/boardroomhq/boardroom/pkg/store"
)

// Problem description bounds, in characters.
const (
	MinProblemLength = 20
	MaxProblemLength = 8000
)

// SubmitInput is one analysis submission after JSON binding.
type SubmitInput struct {
	Problem      string
	BusinessType string
	Industry     string
	Depth        models.Depth
}

// AnalysisDetail is the full read model: the analysis row plus its per-agent
// outputs.
type AnalysisDetail struct {
	Analysis *models.Analysis
	Outputs  []*models.AgentOutput
}

// AnalysisService accepts, reads, and gates analyses. Execution happens on
// the worker side; Submit only persists the analysis with its outbox job.
type AnalysisService struct {
	store  *store.Store
	quota  *quota.Engine
	logger *slog.Logger
}

// NewAnalysisService wires the analysis service. Panics on nil dependencies.
func NewAnalysisService(st *store.Store, engine *quota.Engine, logger *slog.Logger) *AnalysisService {
	if st == nil {
		panic("NewAnalysisService: store is required")
	}
	if engine == nil {
		panic("NewAnalysisService: quota engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{store: st, quota: engine, logger: logger}
}

// Submit validates the input, consumes one unit of the analyses quota, and
// creates the pending analysis together with its queue job in one
// transaction. Quota is consumed before the insert and never refunded.
func (s *AnalysisService) Submit(ctx context.Context, identity *auth.Identity, in SubmitInput) (*models.Analysis, error) {
	in.Problem = strings.TrimSpace(in.Problem)
	if n := utf8.RuneCountInString(in.Problem); n < MinProblemLength || n > MaxProblemLength {
		return nil, invalidField("problem_description",
			fmt.Sprintf("must be between %d and %d characters", MinProblemLength, MaxProblemLength))
	}
	if !models.ValidBusinessType(in.BusinessType) {
		return nil, invalidField("business_type", "must be one of the supported business types")
	}
	if in.Depth == "" {
		in.Depth = models.DepthStandard
	}
	if !in.Depth.Valid() {
		return nil, invalidField("depth", "must be fast, standard, or deep")
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	org, err := s.store.Orgs.Get(ctx, identity.OrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}

	dec, err := s.quota.CheckAndConsume(ctx, org, quota.FeatureAnalysesCreated, "")
	if err != nil {
		return nil, err
	}
	if !dec.Allowed {
		return nil, &QuotaError{
			Feature:   dec.Feature,
			Used:      dec.Used,
			Limit:     dec.Limit,
			UpgradeTo: dec.UpgradeTo,
		}
	}

	now := time.Now().UTC()
	analysis := &models.Analysis{
		ID:           uuid.New().String(),
		OrgID:        org.ID,
		UserID:       identity.UserID,
		Problem:      in.Problem,
		BusinessType: in.BusinessType,
		Industry:     strings.TrimSpace(in.Industry),
		Depth:        in.Depth,
		Status:       models.AnalysisStatusPending,
		CreatedAt:    now,
	}
	job := &models.Job{
		ID:          uuid.New().String(),
		Type:        models.JobTypeRunAnalysis,
		AnalysisID:  analysis.ID,
		OrgID:       org.ID,
		Status:      models.JobStatusQueued,
		ScheduledAt: now,
	}
	if err := s.store.Jobs.CreateWithAnalysis(ctx, analysis, job); err != nil {
		return nil, fmt.Errorf("failed to create analysis: %w", err)
	}

	s.logger.InfoContext(ctx, "analysis submitted",
		"org_id", org.ID,
		"analysis_id", analysis.ID,
		"business_type", in.BusinessType,
		"depth", string(in.Depth),
	)
	return analysis, nil
}

// Get returns one analysis with its agent outputs. Cross-tenant ids surface
// as store.ErrNotFound.
func (s *AnalysisService) Get(ctx context.Context, identity *auth.Identity, analysisID string) (*AnalysisDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	analysis, err := s.store.Analyses.Get(ctx, identity.OrgID, analysisID)
	if err != nil {
		return nil, err
	}
	outputs, err := s.store.AgentOutputs.ListByAnalysis(ctx, identity.OrgID, analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent outputs: %w", err)
	}
	return &AnalysisDetail{Analysis: analysis, Outputs: outputs}, nil
}

// List page size bounds.
const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// List returns one page of the org's analyses, newest first.
func (s *AnalysisService) List(ctx context.Context, identity *auth.Identity, limit int, cursor string) ([]*models.Analysis, string, error) {
	if limit < 1 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	items, next, err := s.store.Analyses.List(ctx, identity.OrgID, limit, cursor)
	if err != nil {
		if errors.Is(err, store.ErrBadCursor) {
			return nil, "", invalidField("cursor", "malformed pagination cursor")
		}
		return nil, "", err
	}
	return items, next, nil
}

// ExportGate checks that the analysis exists, is completed, and that the
// org's plan admits the requested format. It returns the name of the renderer
// that would produce the document; actual rendering is delegated.
func (s *AnalysisService) ExportGate(ctx context.Context, identity *auth.Identity, analysisID string, format quota.ExportFormat) (string, error) {
	switch format {
	case quota.ExportMarkdown, quota.ExportPDF, quota.ExportDOCX, quota.ExportPPTX:
	default:
		return "", invalidField("format", "must be md, pdf, docx, or pptx")
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	analysis, err := s.store.Analyses.Get(ctx, identity.OrgID, analysisID)
	if err != nil {
		return "", err
	}
	if analysis.Status != models.AnalysisStatusCompleted {
		return "", ErrNotCompleted
	}

	org, err := s.store.Orgs.Get(ctx, identity.OrgID)
	if err != nil {
		return "", fmt.Errorf("failed to load organization: %w", err)
	}
	if !quota.CanExport(org.Plan, format) {
		// A feature gate has no counter; used/limit degenerate to 0/0.
		return "", &QuotaError{
			Feature:   "export_" + string(format),
			UpgradeTo: quota.UpgradeTo(org.Plan),
		}
	}
	return rendererFor(format), nil
}

// rendererFor names the external renderer an export would delegate to.
func rendererFor(format quota.ExportFormat) string {
	switch format {
	case quota.ExportPDF:
		return "pdf-renderer"
	case quota.ExportDOCX:
		return "docx-renderer"
	case quota.ExportPPTX:
		return "pptx-renderer"
	default:
		return "markdown-renderer"
	}
}
