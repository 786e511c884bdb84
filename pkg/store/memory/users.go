package memory

import (
	"context"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

type users struct {
	st *state
}

func (r *users) Create(ctx context.Context, u *models.User) error {
	if u.OrgID == "" {
		return store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if _, ok := r.st.users[u.ID]; ok {
		return store.ErrAlreadyExists
	}
	if _, ok := r.st.usersByEmail[u.Email]; ok {
		return store.ErrAlreadyExists
	}
	r.st.users[u.ID] = cloneUser(u)
	r.st.usersByEmail[u.Email] = u.ID
	return nil
}

func (r *users) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	id, ok := r.st.usersByEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(r.st.users[id]), nil
}

func (r *users) GetByID(ctx context.Context, orgID, id string) (*models.User, error) {
	if orgID == "" {
		return nil, store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	u, ok := r.st.users[id]
	if !ok || u.OrgID != orgID {
		return nil, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *users) UpdatePassword(ctx context.Context, orgID, userID, passwordHash string) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	u, ok := r.st.users[userID]
	if !ok || u.OrgID != orgID {
		return store.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}
