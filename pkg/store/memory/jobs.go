package memory

import (
	"context"
	"sort"
	"time"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

type jobs struct {
	st *state
}

func (r *jobs) CreateWithAnalysis(ctx context.Context, a *models.Analysis, j *models.Job) error {
	if a.OrgID == "" || j.OrgID == "" {
		return store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if _, ok := r.st.analyses[a.ID]; ok {
		return store.ErrAlreadyExists
	}
	if _, ok := r.st.jobs[j.ID]; ok {
		return store.ErrAlreadyExists
	}
	r.st.analyses[a.ID] = cloneAnalysis(a)
	r.st.jobs[j.ID] = cloneJob(j)
	r.st.jobByAnalysis[j.AnalysisID] = j.ID
	return nil
}

func (r *jobs) Get(ctx context.Context, jobID string) (*models.Job, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	j, ok := r.st.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneJob(j), nil
}

// PublishPending holds the store lock across the publish callbacks, which
// keeps the claim atomic for the single-process deployments this backend
// serves. Callbacks must not call back into the store.
func (r *jobs) PublishPending(ctx context.Context, limit int, publish func(context.Context, *models.Job) error) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	var pending []*models.Job
	for _, j := range r.st.jobs {
		if !j.Published && j.Status == models.JobStatusQueued {
			pending = append(pending, j)
		}
	}
	sort.Slice(pending, func(i, k int) bool {
		if !pending[i].ScheduledAt.Equal(pending[k].ScheduledAt) {
			return pending[i].ScheduledAt.Before(pending[k].ScheduledAt)
		}
		return pending[i].ID < pending[k].ID
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	published := 0
	for _, j := range pending {
		if err := publish(ctx, cloneJob(j)); err != nil {
			// Leave unpublished; the next pump pass retries.
			continue
		}
		j.Published = true
		published++
	}
	return published, nil
}

func (r *jobs) MarkRunning(ctx context.Context, jobID string) error {
	return r.mark(jobID, func(j *models.Job) {
		j.Status = models.JobStatusRunning
		now := time.Now().UTC()
		j.StartedAt = &now
	})
}

func (r *jobs) MarkDone(ctx context.Context, jobID string) error {
	return r.mark(jobID, func(j *models.Job) {
		j.Status = models.JobStatusDone
		now := time.Now().UTC()
		j.FinishedAt = &now
	})
}

func (r *jobs) MarkFailed(ctx context.Context, jobID, lastError string) error {
	return r.mark(jobID, func(j *models.Job) {
		j.Status = models.JobStatusFailed
		j.LastError = lastError
		now := time.Now().UTC()
		j.FinishedAt = &now
	})
}

func (r *jobs) mark(jobID string, apply func(*models.Job)) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	j, ok := r.st.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	apply(j)
	return nil
}

func (r *jobs) RequeueForRetry(ctx context.Context, jobID, lastError string, maxAttempts int) (*models.Job, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	j, ok := r.st.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	j.Attempts++
	j.LastError = lastError
	if j.Attempts >= maxAttempts {
		j.Status = models.JobStatusFailed
		now := time.Now().UTC()
		j.FinishedAt = &now
	} else {
		j.Status = models.JobStatusQueued
		j.Published = false
		j.StartedAt = nil
	}
	return cloneJob(j), nil
}

func (r *jobs) RunningAnalysesWithoutLiveJob(ctx context.Context, staleBefore time.Time) ([]*models.Analysis, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	var orphans []*models.Analysis
	for _, a := range r.st.analyses {
		if a.Status != models.AnalysisStatusRunning {
			continue
		}
		jobID, ok := r.st.jobByAnalysis[a.ID]
		if !ok {
			orphans = append(orphans, cloneAnalysis(a))
			continue
		}
		j := r.st.jobs[jobID]
		switch j.Status {
		case models.JobStatusDone, models.JobStatusFailed:
			orphans = append(orphans, cloneAnalysis(a))
		case models.JobStatusRunning:
			if j.StartedAt != nil && j.StartedAt.Before(staleBefore) {
				orphans = append(orphans, cloneAnalysis(a))
			}
		}
	}
	sort.Slice(orphans, func(i, k int) bool { return orphans[i].ID < orphans[k].ID })
	return orphans, nil
}
