package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

// BillingService applies verified billing webhook events. Signature
// verification happens at the API edge; by the time an event reaches here it
// is trusted.
type BillingService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewBillingService wires the billing service. Panics on a nil store.
func NewBillingService(st *store.Store, logger *slog.Logger) *BillingService {
	if st == nil {
		panic("NewBillingService: store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingService{store: st, logger: logger}
}

// ApplyPlanChange flips the org's plan and points usage at the new cycle.
// A zero cycleStart anchors the fresh cycle at now. Idempotent: replaying
// the same event lands on the same state.
func (s *BillingService) ApplyPlanChange(ctx context.Context, orgID string, newPlan models.Plan, cycleStart time.Time) error {
	if orgID == "" {
		return invalidField("org_id", "must not be empty")
	}
	if !newPlan.Valid() {
		return invalidField("new_plan", "must be free, pro, or enterprise")
	}
	if cycleStart.IsZero() {
		cycleStart = time.Now().UTC()
	}
	cycleStart = cycleStart.UTC()

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	org, err := s.store.Orgs.Get(ctx, orgID)
	if err != nil {
		return err
	}
	if err := s.store.Orgs.SetPlan(ctx, orgID, newPlan, cycleStart); err != nil {
		return fmt.Errorf("failed to set plan: %w", err)
	}
	if err := s.store.Usage.ResetCycle(ctx, orgID, cycleStart); err != nil {
		return fmt.Errorf("failed to reset usage cycle: %w", err)
	}

	s.logger.InfoContext(ctx, "plan changed",
		"org_id", orgID,
		"old_plan", string(org.Plan),
		"new_plan", string(newPlan),
		"cycle_start", cycleStart,
	)
	return nil
}
