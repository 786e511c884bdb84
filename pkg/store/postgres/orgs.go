package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

type orgs struct {
	pool *pgxpool.Pool
}

func (r *orgs) Create(ctx context.Context, o *models.Organization) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO organizations (id, name, plan, cycle_started_at, subscription_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.Name, string(o.Plan), o.CycleStartedAt, o.SubscriptionStatus, o.CreatedAt,
	)
	return wrap("create organization", err)
}

func (r *orgs) Get(ctx context.Context, id string) (*models.Organization, error) {
	if id == "" {
		return nil, store.ErrTenantRequired
	}
	var o models.Organization
	var plan string
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, plan, cycle_started_at, subscription_status, created_at
		FROM organizations WHERE id = $1`,
		id,
	).Scan(&o.ID, &o.Name, &plan, &o.CycleStartedAt, &o.SubscriptionStatus, &o.CreatedAt)
	if err != nil {
		return nil, wrap("get organization", err)
	}
	o.Plan = models.Plan(plan)
	return &o, nil
}

func (r *orgs) SetPlan(ctx context.Context, orgID string, plan models.Plan, cycleStart time.Time) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE organizations SET plan = $1, cycle_started_at = $2 WHERE id = $3`,
		string(plan), cycleStart.UTC(), orgID,
	)
	if err != nil {
		return wrap("set plan", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
