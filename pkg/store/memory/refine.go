package memory

import (
	"context"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

type refineMessages struct {
	st *state
}

func (r *refineMessages) Append(ctx context.Context, orgID string, msg *models.RefineMessage) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	a, ok := r.st.analyses[msg.AnalysisID]
	if !ok || a.OrgID != orgID {
		return store.ErrNotFound
	}
	r.st.refines[msg.AnalysisID] = append(r.st.refines[msg.AnalysisID], cloneRefine(msg))
	return nil
}

func (r *refineMessages) ListRecent(ctx context.Context, orgID, analysisID string, limit int) ([]*models.RefineMessage, error) {
	if orgID == "" {
		return nil, store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	a, ok := r.st.analyses[analysisID]
	if !ok || a.OrgID != orgID {
		return nil, store.ErrNotFound
	}

	all := r.st.refines[analysisID]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	out := make([]*models.RefineMessage, 0, len(all)-start)
	for _, m := range all[start:] {
		out = append(out, cloneRefine(m))
	}
	return out, nil
}
