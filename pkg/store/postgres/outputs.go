package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

type agentOutputs struct {
	pool *pgxpool.Pool
}

func (r *agentOutputs) Upsert(ctx context.Context, orgID string, row *models.AgentOutput) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	// The INSERT ... SELECT binds the tenant: no parent row under this org,
	// no write.
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO agent_outputs (
			analysis_id, agent_name, output, status, tokens_in, tokens_out,
			tokens_total, cost_usd, latency_ms, error, created_at, updated_at
		)
		SELECT a.id, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), now(), now()
		FROM analyses a WHERE a.id = $1 AND a.org_id = $2
		ON CONFLICT (analysis_id, agent_name) DO UPDATE SET
			output = EXCLUDED.output, status = EXCLUDED.status,
			tokens_in = EXCLUDED.tokens_in, tokens_out = EXCLUDED.tokens_out,
			tokens_total = EXCLUDED.tokens_total, cost_usd = EXCLUDED.cost_usd,
			latency_ms = EXCLUDED.latency_ms, error = EXCLUDED.error,
			updated_at = now()`,
		row.AnalysisID, orgID, row.AgentName, row.Output, string(row.Status),
		row.TokensIn, row.TokensOut, row.TokensTotal, row.CostUSD,
		row.LatencyMS, row.Error,
	)
	if err != nil {
		return wrap("upsert agent output", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *agentOutputs) ListByAnalysis(ctx context.Context, orgID, analysisID string) ([]*models.AgentOutput, error) {
	if orgID == "" {
		return nil, store.ErrTenantRequired
	}

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM analyses WHERE id = $1 AND org_id = $2)`,
		analysisID, orgID,
	).Scan(&exists)
	if err != nil {
		return nil, wrap("list agent outputs", err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, `
		SELECT analysis_id, agent_name, output, status, tokens_in, tokens_out,
		       tokens_total, cost_usd, latency_ms, COALESCE(error, ''),
		       created_at, updated_at
		FROM agent_outputs WHERE analysis_id = $1
		ORDER BY agent_name`,
		analysisID,
	)
	if err != nil {
		return nil, wrap("list agent outputs", err)
	}
	defer rows.Close()

	var out []*models.AgentOutput
	for rows.Next() {
		var o models.AgentOutput
		var status string
		if err := rows.Scan(
			&o.AnalysisID, &o.AgentName, &o.Output, &status, &o.TokensIn,
			&o.TokensOut, &o.TokensTotal, &o.CostUSD, &o.LatencyMS, &o.Error,
			&o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, wrap("list agent outputs", err)
		}
		o.Status = models.AgentStatus(status)
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list agent outputs", err)
	}
	return out, nil
}
