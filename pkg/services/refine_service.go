package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/boardroomhq/boardroom/pkg/agent"
	"github.com/boardroomhq/boardroom/pkg/agent/prompt"
	"github.com/boardroomhq/boardroom/pkg/auth"
	"github.com/boardroomhq/boardroom/pkg/llm"
	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/quota"
	"github.com/boardroomhq/boardroom/pkg/store"
)

const (
	// MaxRefineMessageLength caps one user turn, in characters.
	MaxRefineMessageLength = 4000

	// refineHistoryLimit is how many prior turns ride along on each call.
	refineHistoryLimit = 20

	// refineCallTimeout bounds the single provider call.
	refineCallTimeout = 30 * time.Second

	// refineDefaultModel is used when no model override is configured.
	refineDefaultModel = "gpt-4o-mini"
)

// RefineReply is the assistant's answer plus the caller's remaining budget
// for this analysis.
type RefineReply struct {
	Reply     string
	Used      int
	Limit     int
	Remaining int
}

// keyedMutex hands out one mutex per key. Keys are never evicted; the key
// space is bounded by the analyses a process refines between restarts.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// RefineService runs the bounded per-analysis follow-up chat. Each turn is
// one provider call grounded on the reviewer's consolidated report; the
// orchestrator is never involved.
type RefineService struct {
	store    *store.Store
	quota    *quota.Engine
	provider llm.CompletionProvider
	prompts  *prompt.Store
	model    string
	logger   *slog.Logger
	locks    *keyedMutex
}

// NewRefineService wires the refine service. Panics on nil dependencies.
// model empty selects the default refinement model.
func NewRefineService(st *store.Store, engine *quota.Engine, provider llm.CompletionProvider, prompts *prompt.Store, model string, logger *slog.Logger) *RefineService {
	if st == nil {
		panic("NewRefineService: store is required")
	}
	if engine == nil {
		panic("NewRefineService: quota engine is required")
	}
	if provider == nil {
		panic("NewRefineService: provider is required")
	}
	if prompts == nil {
		panic("NewRefineService: prompt store is required")
	}
	if model == "" {
		model = refineDefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RefineService{
		store:    st,
		quota:    engine,
		provider: provider,
		prompts:  prompts,
		model:    model,
		logger:   logger,
		locks:    newKeyedMutex(),
	}
}

// Refine validates one user turn, consumes refine quota for the analysis,
// and answers with a single provider call grounded on the original problem
// and the reviewer's report. Turns for the same analysis are serialized;
// different analyses refine in parallel.
func (s *RefineService) Refine(ctx context.Context, identity *auth.Identity, analysisID, message string) (*RefineReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, invalidField("message", "must not be empty")
	}
	if utf8.RuneCountInString(message) > MaxRefineMessageLength {
		return nil, invalidField("message",
			fmt.Sprintf("must be at most %d characters", MaxRefineMessageLength))
	}

	analysis, org, err := s.loadCompleted(ctx, identity.OrgID, analysisID)
	if err != nil {
		return nil, err
	}

	dec, err := s.consumeQuota(ctx, org, analysisID)
	if err != nil {
		return nil, err
	}

	// Quota is consumed outside the lock: two racing turns both pay, and the
	// slower one simply waits its turn.
	lock := s.locks.get(analysisID)
	lock.Lock()
	defer lock.Unlock()

	history, reviewerReport, err := s.loadContext(ctx, identity.OrgID, analysis)
	if err != nil {
		return nil, err
	}

	system, err := s.prompts.Render(prompt.RefineTemplateID, prompt.Variables{
		BusinessType:     analysis.BusinessType,
		Depth:            string(analysis.Depth),
		DepthDescription: prompt.DepthDescription(analysis.Depth),
		Industry:         analysis.Industry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render refine prompt: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, refineCallTimeout)
	defer cancel()
	completion, err := s.provider.Complete(callCtx, llm.CompletionRequest{
		System:    system,
		User:      composeRefineInput(analysis.Problem, reviewerReport, history, message),
		Model:     s.model,
		MaxTokens: agent.MaxTokensFor(analysis.Depth),
	})
	if err != nil {
		return nil, fmt.Errorf("refinement call failed: %w", err)
	}

	if err := s.appendTurn(ctx, identity.OrgID, analysisID, message, completion); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "refine turn completed",
		"org_id", identity.OrgID,
		"analysis_id", analysisID,
		"tokens_in", completion.InputTokens,
		"tokens_out", completion.OutputTokens,
	)
	return &RefineReply{
		Reply:     completion.Text,
		Used:      dec.Used,
		Limit:     dec.Limit,
		Remaining: dec.Remaining,
	}, nil
}

func (s *RefineService) loadCompleted(ctx context.Context, orgID, analysisID string) (*models.Analysis, *models.Organization, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	analysis, err := s.store.Analyses.Get(ctx, orgID, analysisID)
	if err != nil {
		return nil, nil, err
	}
	if analysis.Status != models.AnalysisStatusCompleted {
		return nil, nil, ErrNotCompleted
	}
	org, err := s.store.Orgs.Get(ctx, orgID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load organization: %w", err)
	}
	return analysis, org, nil
}

func (s *RefineService) consumeQuota(ctx context.Context, org *models.Organization, analysisID string) (quota.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	dec, err := s.quota.CheckAndConsume(ctx, org, quota.FeatureRefinePerAnalysis, analysisID)
	if err != nil {
		return quota.Decision{}, err
	}
	if !dec.Allowed {
		return quota.Decision{}, &QuotaError{
			Feature:   dec.Feature,
			Used:      dec.Used,
			Limit:     dec.Limit,
			UpgradeTo: dec.UpgradeTo,
		}
	}
	return dec, nil
}

func (s *RefineService) loadContext(ctx context.Context, orgID string, analysis *models.Analysis) ([]*models.RefineMessage, string, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	history, err := s.store.RefineMessages.ListRecent(ctx, orgID, analysis.ID, refineHistoryLimit)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load refine history: %w", err)
	}
	outputs, err := s.store.AgentOutputs.ListByAnalysis(ctx, orgID, analysis.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load agent outputs: %w", err)
	}
	var reviewerReport string
	for _, out := range outputs {
		if out.AgentName == agent.AgentReviewer && out.Status == models.AgentStatusCompleted {
			reviewerReport = out.Output
		}
	}
	return history, reviewerReport, nil
}

// appendTurn persists the user message and the assistant reply in order.
// CreatedAt stamps keep chronological ListRecent stable.
func (s *RefineService) appendTurn(ctx context.Context, orgID, analysisID, message string, completion *llm.Completion) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	now := time.Now().UTC()
	userMsg := &models.RefineMessage{
		ID:         uuid.New().String(),
		AnalysisID: analysisID,
		OrgID:      orgID,
		Role:       models.RefineRoleUser,
		Content:    message,
		CreatedAt:  now,
	}
	if err := s.store.RefineMessages.Append(ctx, orgID, userMsg); err != nil {
		return fmt.Errorf("failed to append user message: %w", err)
	}
	assistantMsg := &models.RefineMessage{
		ID:         uuid.New().String(),
		AnalysisID: analysisID,
		OrgID:      orgID,
		Role:       models.RefineRoleAssistant,
		Content:    completion.Text,
		TokensIn:   completion.InputTokens,
		TokensOut:  completion.OutputTokens,
		CreatedAt:  now.Add(time.Millisecond),
	}
	if err := s.store.RefineMessages.Append(ctx, orgID, assistantMsg); err != nil {
		return fmt.Errorf("failed to append assistant message: %w", err)
	}
	return nil
}

// composeRefineInput flattens the grounding context, prior turns, and the new
// question into the single user block of the completion request.
func composeRefineInput(problem, reviewerReport string, history []*models.RefineMessage, message string) string {
	var sb strings.Builder
	sb.WriteString("## Original problem\n\n")
	sb.WriteString(problem)
	if reviewerReport != "" {
		sb.WriteString("\n\n## Consolidated report\n\n")
		sb.WriteString(reviewerReport)
	}
	if len(history) > 0 {
		sb.WriteString("\n\n## Conversation so far\n")
		for _, msg := range history {
			sb.WriteString("\n")
			sb.WriteString(string(msg.Role))
			sb.WriteString(": ")
			sb.WriteString(msg.Content)
		}
	}
	sb.WriteString("\n\n## New question\n\n")
	sb.WriteString(message)
	return sb.String()
}
