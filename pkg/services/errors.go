// Package services holds the application layer: request validation, quota
// enforcement, and orchestration of store, queue, and provider calls on
// behalf of the API handlers. Handlers stay thin; every business rule lives
// here or deeper.
package services

import (
	"errors"
	"fmt"

	"github.com/boardroomhq/boardroom/pkg/models"
)

var (
	// ErrInvalidCredentials is the uniform login failure: unknown email and
	// wrong password are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTenantMismatch is returned when a request addresses a tenant other
	// than the authenticated one. Mapped to 403 and logged as a security
	// event.
	ErrTenantMismatch = errors.New("tenant mismatch")

	// ErrNotCompleted is returned when an operation requires a completed
	// analysis (refine, export) and the analysis is not terminal-successful.
	ErrNotCompleted = errors.New("analysis is not completed")
)

// ValidationError rejects one input field. Mapped to 400 with field detail.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalidField(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// QuotaError is a denied consumption or feature gate. Mapped to 402 with
// {used, limit, upgrade_to}.
type QuotaError struct {
	Feature   string
	Used      int
	Limit     int
	UpgradeTo models.Plan
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d of %d used", e.Feature, e.Used, e.Limit)
}
