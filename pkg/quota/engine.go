package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

// Decision is the outcome of one quota check. Remaining is -1 for unlimited
// features.
type Decision struct {
	Allowed   bool
	Feature   string
	Used      int
	Limit     int
	Remaining int
	UpgradeTo models.Plan
}

// Engine enforces counted features against the plan table. Feature gates
// (agent set, export formats) are plain lookups on the table and need no
// engine state.
type Engine struct {
	usage  store.Usage
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine builds a quota engine over the usage repository.
func NewEngine(usage store.Usage, logger *slog.Logger) *Engine {
	if usage == nil {
		panic("quota.NewEngine: usage store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{usage: usage, logger: logger, now: time.Now}
}

// CheckAndConsume atomically reads, compares, and increments the counter for
// one feature of the org's current billing period. analysisID keys
// per-analysis features and is empty otherwise. Unlimited plans are allowed
// without touching the counter path.
func (e *Engine) CheckAndConsume(ctx context.Context, org *models.Organization, feature, analysisID string) (Decision, error) {
	limit := LimitFor(org.Plan, feature)
	if limit == Unlimited {
		return Decision{Allowed: true, Feature: feature, Used: 0, Limit: Unlimited, Remaining: Unlimited}, nil
	}

	period := CurrentPeriodStart(org.CycleStartedAt, e.now())
	dec, err := e.usage.CheckAndConsume(ctx, org.ID, feature, period, limit, analysisID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to consume quota for %s: %w", feature, err)
	}

	out := Decision{
		Allowed:   dec.Allowed,
		Feature:   feature,
		Used:      dec.Used,
		Limit:     dec.Limit,
		Remaining: dec.Remaining(),
		UpgradeTo: UpgradeTo(org.Plan),
	}
	if !dec.Allowed {
		e.logger.WarnContext(ctx, "quota_denied",
			"org_id", org.ID,
			"feature", feature,
			"used", dec.Used,
			"limit", dec.Limit,
			"plan", string(org.Plan),
		)
	}
	return out, nil
}

// Usage reads the current counter without consuming.
func (e *Engine) Usage(ctx context.Context, org *models.Organization, feature, analysisID string) (int, error) {
	period := CurrentPeriodStart(org.CycleStartedAt, e.now())
	return e.usage.Get(ctx, org.ID, feature, period, analysisID)
}
