package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boardroomhq/boardroom/pkg/store"
)

type usage struct {
	pool *pgxpool.Pool
}

// CheckAndConsume is a single insert-or-increment guarded by the limit, so
// two concurrent callers can never both take the last unit.
func (r *usage) CheckAndConsume(ctx context.Context, orgID, feature string, periodStart time.Time, limit int, analysisID string) (store.UsageDecision, error) {
	if orgID == "" {
		return store.UsageDecision{}, store.ErrTenantRequired
	}
	if limit < 1 {
		used, err := r.Get(ctx, orgID, feature, periodStart, analysisID)
		if err != nil {
			return store.UsageDecision{}, err
		}
		return store.UsageDecision{Allowed: false, Used: used, Limit: limit}, nil
	}

	var used int
	err := r.pool.QueryRow(ctx, `
		INSERT INTO usage_counters (org_id, feature, period_start, analysis_id, used)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (org_id, feature, period_start, analysis_id) DO UPDATE
			SET used = usage_counters.used + 1
			WHERE usage_counters.used < $5
		RETURNING used`,
		orgID, feature, periodStart.UTC(), analysisID, limit,
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		// The guard blocked the increment: the counter is at the limit.
		current, getErr := r.Get(ctx, orgID, feature, periodStart, analysisID)
		if getErr != nil {
			return store.UsageDecision{}, getErr
		}
		return store.UsageDecision{Allowed: false, Used: current, Limit: limit}, nil
	}
	if err != nil {
		return store.UsageDecision{}, wrap("consume usage", err)
	}
	return store.UsageDecision{Allowed: true, Used: used, Limit: limit}, nil
}

func (r *usage) Get(ctx context.Context, orgID, feature string, periodStart time.Time, analysisID string) (int, error) {
	if orgID == "" {
		return 0, store.ErrTenantRequired
	}
	var used int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(
			(SELECT used FROM usage_counters
			 WHERE org_id = $1 AND feature = $2 AND period_start = $3 AND analysis_id = $4),
			0)`,
		orgID, feature, periodStart.UTC(), analysisID,
	).Scan(&used)
	if err != nil {
		return 0, wrap("get usage", err)
	}
	return used, nil
}

func (r *usage) ResetCycle(ctx context.Context, orgID string, newPeriodStart time.Time) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	// Rows of the new period are dropped so a webhook retry lands on a clean
	// counter; prior periods are left behind as history.
	_, err := r.pool.Exec(ctx,
		`DELETE FROM usage_counters WHERE org_id = $1 AND period_start = $2`,
		orgID, newPeriodStart.UTC(),
	)
	return wrap("reset usage cycle", err)
}
