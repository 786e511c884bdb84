// Package memory implements the store contracts with mutex-guarded maps.
// It backs unit and end-to-end tests and serves as the development fallback
// when no DATABASE_URL is configured. State does not survive a restart.
package memory

import (
	"sync"
	"time"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

// state is the shared backing store. One lock guards everything; the
// workloads here are tests and single-node development, not throughput.
type state struct {
	mu sync.Mutex

	users        map[string]*models.User
	usersByEmail map[string]string
	orgs         map[string]*models.Organization
	analyses     map[string]*models.Analysis
	outputs      map[string]map[string]*models.AgentOutput
	refines      map[string][]*models.RefineMessage
	usage        map[usageKey]int
	jobs         map[string]*models.Job
	jobByAnalysis map[string]string
}

type usageKey struct {
	orgID       string
	feature     string
	periodStart int64
	analysisID  string
}

// New builds a fully wired in-memory store bundle.
func New() *store.Store {
	st := &state{
		users:         make(map[string]*models.User),
		usersByEmail:  make(map[string]string),
		orgs:          make(map[string]*models.Organization),
		analyses:      make(map[string]*models.Analysis),
		outputs:       make(map[string]map[string]*models.AgentOutput),
		refines:       make(map[string][]*models.RefineMessage),
		usage:         make(map[usageKey]int),
		jobs:          make(map[string]*models.Job),
		jobByAnalysis: make(map[string]string),
	}
	return &store.Store{
		Users:          &users{st},
		Orgs:           &orgs{st},
		Analyses:       &analyses{st},
		AgentOutputs:   &agentOutputs{st},
		RefineMessages: &refineMessages{st},
		Usage:          &usage{st},
		Jobs:           &jobs{st},
	}
}

func key(orgID, feature string, periodStart time.Time, analysisID string) usageKey {
	return usageKey{
		orgID:       orgID,
		feature:     feature,
		periodStart: periodStart.UTC().UnixNano(),
		analysisID:  analysisID,
	}
}

// Clone helpers: callers receive copies so later mutations of returned
// values never leak into the store.

func cloneUser(u *models.User) *models.User {
	c := *u
	return &c
}

func cloneOrg(o *models.Organization) *models.Organization {
	c := *o
	return &c
}

func cloneAnalysis(a *models.Analysis) *models.Analysis {
	c := *a
	if a.StartedAt != nil {
		t := *a.StartedAt
		c.StartedAt = &t
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func cloneOutput(o *models.AgentOutput) *models.AgentOutput {
	c := *o
	return &c
}

func cloneRefine(m *models.RefineMessage) *models.RefineMessage {
	c := *m
	return &c
}

func cloneJob(j *models.Job) *models.Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
