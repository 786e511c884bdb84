// Package postgres implements the store contracts on pgx/v5. The pool is
// injected by the caller (built in pkg/database); every repository shares it.
// Tenant scoping is enforced in SQL: each tenant-data statement binds org_id,
// and a zero org id is rejected before the query runs.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boardroomhq/boardroom/pkg/store"
)

// New builds the repository bundle on one shared pool.
func New(pool *pgxpool.Pool) *store.Store {
	if pool == nil {
		panic("postgres.New: pool is required")
	}
	return &store.Store{
		Users:          &users{pool},
		Orgs:           &orgs{pool},
		Analyses:       &analyses{pool},
		AgentOutputs:   &agentOutputs{pool},
		RefineMessages: &refineMessages{pool},
		Usage:          &usage{pool},
		Jobs:           &jobs{pool},
	}
}

// Postgres SQLSTATE codes mapped onto store sentinels.
const (
	codeUniqueViolation    = "23505"
	codeQueryCanceled      = "57014"
	codeTooManyConnections = "53300"
)

// wrap translates driver errors into the store sentinels and wraps the rest
// with the operation name.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return store.ErrAlreadyExists
		case codeQueryCanceled, codeTooManyConnections:
			return store.ErrStoreBusy
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return store.ErrStoreBusy
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}
