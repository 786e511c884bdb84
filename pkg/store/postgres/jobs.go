package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

type jobs struct {
	pool *pgxpool.Pool
}

const jobColumns = `
	id, type, analysis_id, org_id, status, attempts, published,
	scheduled_at, started_at, finished_at, last_error`

func (r *jobs) CreateWithAnalysis(ctx context.Context, a *models.Analysis, j *models.Job) error {
	if a.OrgID == "" || j.OrgID == "" {
		return store.ErrTenantRequired
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return wrap("create analysis with job", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO analyses (id, org_id, user_id, problem, business_type, industry, depth, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.OrgID, a.UserID, a.Problem, a.BusinessType, a.Industry,
		string(a.Depth), string(a.Status), a.CreatedAt,
	); err != nil {
		return wrap("create analysis", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO jobs (id, type, analysis_id, org_id, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		j.ID, j.Type, j.AnalysisID, j.OrgID, string(j.Status), j.ScheduledAt,
	); err != nil {
		return wrap("create job", err)
	}
	return wrap("create analysis with job", tx.Commit(ctx))
}

func (r *jobs) Get(ctx context.Context, jobID string) (*models.Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	j, err := scanJob(row)
	if err != nil {
		return nil, wrap("get job", err)
	}
	return j, nil
}

// PublishPending claims one batch of unpublished jobs with FOR UPDATE SKIP
// LOCKED: concurrent pumps each claim disjoint rows, so no job is ever
// published twice. Rows whose publish callback fails stay unpublished for the
// next pass.
func (r *jobs) PublishPending(ctx context.Context, limit int, publish func(context.Context, *models.Job) error) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, wrap("publish pending jobs", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE published = FALSE AND status = 'queued'
		ORDER BY scheduled_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return 0, wrap("publish pending jobs", err)
	}
	var claimed []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return 0, wrap("publish pending jobs", err)
		}
		claimed = append(claimed, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, wrap("publish pending jobs", err)
	}

	published := 0
	for _, j := range claimed {
		if err := publish(ctx, j); err != nil {
			continue
		}
		if _, err := tx.Exec(ctx,
			`UPDATE jobs SET published = TRUE WHERE id = $1`, j.ID,
		); err != nil {
			return 0, wrap("publish pending jobs", err)
		}
		published++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, wrap("publish pending jobs", err)
	}
	return published, nil
}

func (r *jobs) MarkRunning(ctx context.Context, jobID string) error {
	return r.mark(ctx, "mark job running",
		`UPDATE jobs SET status = 'running', started_at = now() WHERE id = $1`, jobID)
}

func (r *jobs) MarkDone(ctx context.Context, jobID string) error {
	return r.mark(ctx, "mark job done",
		`UPDATE jobs SET status = 'done', finished_at = now() WHERE id = $1`, jobID)
}

func (r *jobs) MarkFailed(ctx context.Context, jobID, lastError string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE jobs SET status = 'failed', last_error = $1, finished_at = now() WHERE id = $2`,
		lastError, jobID,
	)
	if err != nil {
		return wrap("mark job failed", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *jobs) mark(ctx context.Context, op, sql, jobID string) error {
	tag, err := r.pool.Exec(ctx, sql, jobID)
	if err != nil {
		return wrap(op, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RequeueForRetry is one atomic statement: the attempt bump and the
// queued-or-failed decision cannot be split by a concurrent caller.
func (r *jobs) RequeueForRetry(ctx context.Context, jobID, lastError string, maxAttempts int) (*models.Job, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE jobs SET
			attempts = attempts + 1,
			last_error = $2,
			status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'queued' END,
			published = CASE WHEN attempts + 1 >= $3 THEN published ELSE FALSE END,
			started_at = CASE WHEN attempts + 1 >= $3 THEN started_at ELSE NULL END,
			finished_at = CASE WHEN attempts + 1 >= $3 THEN now() ELSE finished_at END
		WHERE id = $1
		RETURNING `+jobColumns,
		jobID, lastError, maxAttempts,
	)
	j, err := scanJob(row)
	if err != nil {
		return nil, wrap("requeue job", err)
	}
	return j, nil
}

func (r *jobs) RunningAnalysesWithoutLiveJob(ctx context.Context, staleBefore time.Time) ([]*models.Analysis, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+analysisColumns+`
		FROM analyses
		WHERE status = 'running' AND NOT EXISTS (
			SELECT 1 FROM jobs j
			WHERE j.analysis_id = analyses.id
			  AND (j.status = 'queued'
			       OR (j.status = 'running' AND (j.started_at IS NULL OR j.started_at >= $1)))
		)
		ORDER BY id`,
		staleBefore.UTC(),
	)
	if err != nil {
		return nil, wrap("scan orphaned analyses", err)
	}
	defer rows.Close()

	var orphans []*models.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, wrap("scan orphaned analyses", err)
		}
		orphans = append(orphans, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("scan orphaned analyses", err)
	}
	return orphans, nil
}

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var status string
	if err := row.Scan(
		&j.ID, &j.Type, &j.AnalysisID, &j.OrgID, &status, &j.Attempts,
		&j.Published, &j.ScheduledAt, &j.StartedAt, &j.FinishedAt, &j.LastError,
	); err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	return &j, nil
}
