package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

type users struct {
	pool *pgxpool.Pool
}

func (r *users) Create(ctx context.Context, u *models.User) error {
	if u.OrgID == "" {
		return store.ErrTenantRequired
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, org_id, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.OrgID, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt,
	)
	return wrap("create user", err)
}

func (r *users) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, org_id, email, password_hash, role, created_at
		FROM users WHERE email = $1`,
		email,
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, wrap("find user by email", err)
	}
	return u, nil
}

func (r *users) GetByID(ctx context.Context, orgID, id string) (*models.User, error) {
	if orgID == "" {
		return nil, store.ErrTenantRequired
	}
	row := r.pool.QueryRow(ctx, `
		SELECT id, org_id, email, password_hash, role, created_at
		FROM users WHERE id = $1 AND org_id = $2`,
		id, orgID,
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, wrap("get user", err)
	}
	return u, nil
}

func (r *users) UpdatePassword(ctx context.Context, orgID, userID, passwordHash string) error {
	if orgID == "" {
		return store.ErrTenantRequired
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $1 WHERE id = $2 AND org_id = $3`,
		passwordHash, userID, orgID,
	)
	if err != nil {
		return wrap("update password", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var role string
	if err := row.Scan(&u.ID, &u.OrgID, &u.Email, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = models.UserRole(role)
	return &u, nil
}
