package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

type analyses struct {
	pool *pgxpool.Pool
}

const analysisColumns = `
	id, org_id, user_id, problem, business_type, industry, depth, status,
	partial_failure, COALESCE(error, ''), created_at, started_at, completed_at,
	tokens_in, tokens_out, tokens_total, cost_usd, latency_ms`

func (r *analyses) Get(ctx context.Context, orgID, id string) (*models.Analysis, error) {
	if orgID == "" {
		return nil, store.ErrTenantRequired
	}
	row := r.pool.QueryRow(ctx, `
		SELECT `+analysisColumns+`
		FROM analyses WHERE id = $1 AND org_id = $2`,
		id, orgID,
	)
	a, err := scanAnalysis(row)
	if err != nil {
		return nil, wrap("get analysis", err)
	}
	return a, nil
}

func (r *analyses) List(ctx context.Context, orgID string, limit int, cursor string) ([]*models.Analysis, string, error) {
	if orgID == "" {
		return nil, "", store.ErrTenantRequired
	}

	// Fetch one extra row to learn whether a further page exists.
	var rows pgx.Rows
	var err error
	if cursor == "" {
		rows, err = r.pool.Query(ctx, `
			SELECT `+analysisColumns+`
			FROM analyses WHERE org_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`,
			orgID, limit+1,
		)
	} else {
		afterTime, afterID, decodeErr := store.DecodeCursor(cursor)
		if decodeErr != nil {
			return nil, "", decodeErr
		}
		rows, err = r.pool.Query(ctx, `
			SELECT `+analysisColumns+`
			FROM analyses WHERE org_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4`,
			orgID, afterTime, afterID, limit+1,
		)
	}
	if err != nil {
		return nil, "", wrap("list analyses", err)
	}
	defer rows.Close()

	var page []*models.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, "", wrap("list analyses", err)
		}
		page = append(page, a)
	}
	if err := rows.Err(); err != nil {
		return nil, "", wrap("list analyses", err)
	}

	next := ""
	if len(page) > limit {
		page = page[:limit]
		last := page[len(page)-1]
		next = store.EncodeCursor(last.CreatedAt, last.ID)
	}
	return page, next, nil
}

func (r *analyses) UpdateStatus(ctx context.Context, orgID, id string, from, to models.AnalysisStatus) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE analyses SET
			status = $1,
			started_at = CASE WHEN $1 = 'running' AND started_at IS NULL THEN now() ELSE started_at END
		WHERE id = $2 AND org_id = $3 AND status = $4`,
		string(to), id, orgID, string(from),
	)
	if err != nil {
		return wrap("update analysis status", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrNotFound(ctx, orgID, id)
	}
	return nil
}

func (r *analyses) Finish(ctx context.Context, orgID string, res *store.AnalysisResult) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return wrap("finish analysis", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE analyses SET
			status = $1, partial_failure = $2, error = NULLIF($3, ''),
			completed_at = $4, tokens_in = $5, tokens_out = $6,
			tokens_total = $7, cost_usd = $8, latency_ms = $9
		WHERE id = $10 AND org_id = $11`,
		string(res.Status), res.PartialFailure, res.Error,
		res.CompletedAt.UTC(), res.TokensIn, res.TokensOut,
		res.TokensTotal, res.CostUSD, res.LatencyMS,
		res.AnalysisID, orgID,
	)
	if err != nil {
		return wrap("finish analysis", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	for _, out := range res.Outputs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO agent_outputs (
				analysis_id, agent_name, output, status, tokens_in, tokens_out,
				tokens_total, cost_usd, latency_ms, error, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), now(), now())
			ON CONFLICT (analysis_id, agent_name) DO UPDATE SET
				output = EXCLUDED.output, status = EXCLUDED.status,
				tokens_in = EXCLUDED.tokens_in, tokens_out = EXCLUDED.tokens_out,
				tokens_total = EXCLUDED.tokens_total, cost_usd = EXCLUDED.cost_usd,
				latency_ms = EXCLUDED.latency_ms, error = EXCLUDED.error,
				updated_at = now()`,
			res.AnalysisID, out.AgentName, out.Output, string(out.Status),
			out.TokensIn, out.TokensOut, out.TokensTotal, out.CostUSD,
			out.LatencyMS, out.Error,
		); err != nil {
			return wrap("finish analysis outputs", err)
		}
	}
	return wrap("finish analysis", tx.Commit(ctx))
}

func (r *analyses) Fail(ctx context.Context, orgID, id, errMsg string) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE analyses SET status = 'failed', error = NULLIF($1, ''), completed_at = now()
		WHERE id = $2 AND org_id = $3 AND status IN ('pending', 'running')`,
		errMsg, id, orgID,
	)
	if err != nil {
		return wrap("fail analysis", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrNotFound(ctx, orgID, id)
	}
	return nil
}

// conflictOrNotFound disambiguates a zero-row guarded update: the row either
// does not belong to this org or sits in a different state.
func (r *analyses) conflictOrNotFound(ctx context.Context, orgID, id string) error {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM analyses WHERE id = $1 AND org_id = $2)`,
		id, orgID,
	).Scan(&exists)
	if err != nil {
		return wrap("check analysis", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrStatusConflict
}

func scanAnalysis(row rowScanner) (*models.Analysis, error) {
	var a models.Analysis
	var depth, status string
	if err := row.Scan(
		&a.ID, &a.OrgID, &a.UserID, &a.Problem, &a.BusinessType, &a.Industry,
		&depth, &status, &a.PartialFailure, &a.Error, &a.CreatedAt,
		&a.StartedAt, &a.CompletedAt, &a.TokensIn, &a.TokensOut,
		&a.TokensTotal, &a.CostUSD, &a.LatencyMS,
	); err != nil {
		return nil, err
	}
	a.Depth = models.Depth(depth)
	a.Status = models.AnalysisStatus(status)
	return &a, nil
}
