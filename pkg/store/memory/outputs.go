package memory

import (
	"context"
	"sort"
	"time"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

type agentOutputs struct {
	st *state
}

func (r *agentOutputs) Upsert(ctx context.Context, orgID string, row *models.AgentOutput) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	a, ok := r.st.analyses[row.AnalysisID]
	if !ok || a.OrgID != orgID {
		return store.ErrNotFound
	}

	byAgent := r.st.outputs[row.AnalysisID]
	if byAgent == nil {
		byAgent = make(map[string]*models.AgentOutput)
		r.st.outputs[row.AnalysisID] = byAgent
	}
	now := time.Now().UTC()
	c := cloneOutput(row)
	if prev, ok := byAgent[row.AgentName]; ok {
		c.CreatedAt = prev.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	byAgent[row.AgentName] = c
	return nil
}

func (r *agentOutputs) ListByAnalysis(ctx context.Context, orgID, analysisID string) ([]*models.AgentOutput, error) {
	if orgID == "" {
		return nil, store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	a, ok := r.st.analyses[analysisID]
	if !ok || a.OrgID != orgID {
		return nil, store.ErrNotFound
	}

	var rows []*models.AgentOutput
	for _, out := range r.st.outputs[analysisID] {
		rows = append(rows, cloneOutput(out))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].AgentName < rows[j].AgentName })
	return rows, nil
}
