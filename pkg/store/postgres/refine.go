package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

type refineMessages struct {
	pool *pgxpool.Pool
}

func (r *refineMessages) Append(ctx context.Context, orgID string, msg *models.RefineMessage) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO refine_messages (id, analysis_id, org_id, role, content, tokens_in, tokens_out, created_at)
		SELECT $1, a.id, $3, $4, $5, $6, $7, $8
		FROM analyses a WHERE a.id = $2 AND a.org_id = $3`,
		msg.ID, msg.AnalysisID, orgID, string(msg.Role), msg.Content,
		msg.TokensIn, msg.TokensOut, msg.CreatedAt,
	)
	if err != nil {
		return wrap("append refine message", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *refineMessages) ListRecent(ctx context.Context, orgID, analysisID string, limit int) ([]*models.RefineMessage, error) {
	if orgID == "" {
		return nil, store.ErrTenantRequired
	}

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM analyses WHERE id = $1 AND org_id = $2)`,
		analysisID, orgID,
	).Scan(&exists)
	if err != nil {
		return nil, wrap("list refine messages", err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	// Take the newest rows, then flip back to chronological order.
	rows, err := r.pool.Query(ctx, `
		SELECT id, analysis_id, org_id, role, content, tokens_in, tokens_out, created_at
		FROM (
			SELECT id, analysis_id, org_id, role, content, tokens_in, tokens_out, created_at
			FROM refine_messages WHERE analysis_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC`,
		analysisID, limit,
	)
	if err != nil {
		return nil, wrap("list refine messages", err)
	}
	defer rows.Close()

	var out []*models.RefineMessage
	for rows.Next() {
		var m models.RefineMessage
		var role string
		if err := rows.Scan(&m.ID, &m.AnalysisID, &m.OrgID, &role, &m.Content, &m.TokensIn, &m.TokensOut, &m.CreatedAt); err != nil {
			return nil, wrap("list refine messages", err)
		}
		m.Role = models.RefineRole(role)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list refine messages", err)
	}
	return out, nil
}
