package memory

import (
	"context"
	"time"

	"github.com/boardroomhq/boardroom/pkg/store"
)

type usage struct {
	st *state
}

func (r *usage) CheckAndConsume(ctx context.Context, orgID, feature string, periodStart time.Time, limit int, analysisID string) (store.UsageDecision, error) {
	if orgID == "" {
		return store.UsageDecision{}, store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	k := key(orgID, feature, periodStart, analysisID)
	used := r.st.usage[k]
	if used >= limit {
		return store.UsageDecision{Allowed: false, Used: used, Limit: limit}, nil
	}
	used++
	r.st.usage[k] = used
	return store.UsageDecision{Allowed: true, Used: used, Limit: limit}, nil
}

func (r *usage) Get(ctx context.Context, orgID, feature string, periodStart time.Time, analysisID string) (int, error) {
	if orgID == "" {
		return 0, store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.st.usage[key(orgID, feature, periodStart, analysisID)], nil
}

func (r *usage) ResetCycle(ctx context.Context, orgID string, newPeriodStart time.Time) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	// Counters are keyed by period; a fresh period starts at zero on its own.
	// Dropping rows at exactly the new period start makes webhook-driven
	// resets idempotent even when the period was already written to.
	start := newPeriodStart.UTC().UnixNano()
	for k := range r.st.usage {
		if k.orgID == orgID && k.periodStart == start {
			delete(r.st.usage, k)
		}
	}
	return nil
}
