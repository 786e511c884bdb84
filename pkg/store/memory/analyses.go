package memory

import (
	"context"
	"sort"
	"time"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

type analyses struct {
	st *state
}

func (r *analyses) Get(ctx context.Context, orgID, id string) (*models.Analysis, error) {
	if orgID == "" {
		return nil, store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	a, ok := r.st.analyses[id]
	if !ok || a.OrgID != orgID {
		return nil, store.ErrNotFound
	}
	return cloneAnalysis(a), nil
}

func (r *analyses) List(ctx context.Context, orgID string, limit int, cursor string) ([]*models.Analysis, string, error) {
	if orgID == "" {
		return nil, "", store.ErrTenantRequired
	}

	var afterTime time.Time
	var afterID string
	if cursor != "" {
		var err error
		afterTime, afterID, err = store.DecodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
	}

	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	var rows []*models.Analysis
	for _, a := range r.st.analyses {
		if a.OrgID != orgID {
			continue
		}
		rows = append(rows, a)
	}
	// Newest first, id as tiebreaker, matching the keyset order of the SQL
	// implementation.
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})

	var page []*models.Analysis
	for _, a := range rows {
		if cursor != "" && !beforePosition(a, afterTime, afterID) {
			continue
		}
		page = append(page, cloneAnalysis(a))
		if len(page) == limit {
			break
		}
	}

	next := ""
	if len(page) == limit {
		last := page[len(page)-1]
		for _, a := range rows {
			if beforePosition(a, last.CreatedAt, last.ID) {
				next = store.EncodeCursor(last.CreatedAt, last.ID)
				break
			}
		}
	}
	return page, next, nil
}

// beforePosition reports whether a sorts strictly after the keyset position
// (i.e. is older) in newest-first order.
func beforePosition(a *models.Analysis, t time.Time, id string) bool {
	if !a.CreatedAt.Equal(t) {
		return a.CreatedAt.Before(t)
	}
	return a.ID < id
}

func (r *analyses) UpdateStatus(ctx context.Context, orgID, id string, from, to models.AnalysisStatus) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	a, ok := r.st.analyses[id]
	if !ok || a.OrgID != orgID {
		return store.ErrNotFound
	}
	if a.Status != from {
		return store.ErrStatusConflict
	}
	a.Status = to
	if to == models.AnalysisStatusRunning && a.StartedAt == nil {
		now := time.Now().UTC()
		a.StartedAt = &now
	}
	return nil
}

func (r *analyses) Finish(ctx context.Context, orgID string, res *store.AnalysisResult) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	a, ok := r.st.analyses[res.AnalysisID]
	if !ok || a.OrgID != orgID {
		return store.ErrNotFound
	}

	a.Status = res.Status
	a.PartialFailure = res.PartialFailure
	a.Error = res.Error
	completed := res.CompletedAt.UTC()
	a.CompletedAt = &completed
	a.TokensIn = res.TokensIn
	a.TokensOut = res.TokensOut
	a.TokensTotal = res.TokensTotal
	a.CostUSD = res.CostUSD
	a.LatencyMS = res.LatencyMS

	byAgent := r.st.outputs[res.AnalysisID]
	if byAgent == nil {
		byAgent = make(map[string]*models.AgentOutput)
		r.st.outputs[res.AnalysisID] = byAgent
	}
	now := time.Now().UTC()
	for _, out := range res.Outputs {
		row := cloneOutput(out)
		if prev, ok := byAgent[out.AgentName]; ok {
			row.CreatedAt = prev.CreatedAt
		} else if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		byAgent[out.AgentName] = row
	}
	return nil
}

func (r *analyses) Fail(ctx context.Context, orgID, id, errMsg string) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	a, ok := r.st.analyses[id]
	if !ok || a.OrgID != orgID {
		return store.ErrNotFound
	}
	if a.Status.Terminal() {
		return store.ErrStatusConflict
	}
	a.Status = models.AnalysisStatusFailed
	a.Error = errMsg
	now := time.Now().UTC()
	a.CompletedAt = &now
	return nil
}
