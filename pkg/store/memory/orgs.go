package memory

import (
	"context"
	"time"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

type orgs struct {
	st *state
}

func (r *orgs) Create(ctx context.Context, o *models.Organization) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if _, ok := r.st.orgs[o.ID]; ok {
		return store.ErrAlreadyExists
	}
	r.st.orgs[o.ID] = cloneOrg(o)
	return nil
}

func (r *orgs) Get(ctx context.Context, id string) (*models.Organization, error) {
	if id == "" {
		return nil, store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	o, ok := r.st.orgs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrg(o), nil
}

func (r *orgs) SetPlan(ctx context.Context, orgID string, plan models.Plan, cycleStart time.Time) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	o, ok := r.st.orgs[orgID]
	if !ok {
		return store.ErrNotFound
	}
	o.Plan = plan
	o.CycleStartedAt = cycleStart.UTC()
	return nil
}
