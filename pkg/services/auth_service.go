package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/boardroomhq/boardroom/pkg/auth"
	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/boardroomhq/boardroom/pkg/store"
)

// storeTimeout bounds one persistence call made on behalf of a request.
const storeTimeout = 5 * time.Second

// AuthService implements registration, login, and token refresh.
type AuthService struct {
	store  *store.Store
	tokens *auth.TokenManager
	logger *slog.Logger
}

// NewAuthService wires the auth service. Panics on nil dependencies.
func NewAuthService(st *store.Store, tokens *auth.TokenManager, logger *slog.Logger) *AuthService {
	if st == nil {
		panic("NewAuthService: store is required")
	}
	if tokens == nil {
		panic("NewAuthService: token manager is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{store: st, tokens: tokens, logger: logger}
}

// Register creates a new organization on the free plan with its owner user
// and returns a signed token pair.
func (s *AuthService) Register(ctx context.Context, email, password, orgName string) (*auth.TokenPair, error) {
	email = auth.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, invalidField("email", "must be a valid email address")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, invalidField("password", err.Error())
	}
	orgName = strings.TrimSpace(orgName)
	if orgName == "" {
		return nil, invalidField("org_name", "must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	// Cheap duplicate check before creating the org; the unique constraint on
	// users.email still backstops the race.
	if _, err := s.store.Users.FindByEmail(ctx, email); err == nil {
		return nil, invalidField("email", "already registered")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	now := time.Now().UTC()
	org := &models.Organization{
		ID:             uuid.New().String(),
		Name:           orgName,
		Plan:           models.PlanFree,
		CycleStartedAt: now,
		CreatedAt:      now,
	}
	if err := s.store.Orgs.Create(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		OrgID:        org.ID,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleOwner,
		CreatedAt:    now,
	}
	if err := s.store.Users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, invalidField("email", "already registered")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	pair, err := s.tokens.Issue(auth.Identity{UserID: user.ID, OrgID: org.ID, Plan: org.Plan})
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}
	s.logger.InfoContext(ctx, "organization registered", "org_id", org.ID, "user_id", user.ID)
	return pair, nil
}

// Login verifies credentials and returns a fresh token pair. Unknown email
// and wrong password are deliberately indistinguishable.
func (s *AuthService) Login(ctx context.Context, email, password string) (*auth.TokenPair, error) {
	email = auth.NormalizeEmail(email)

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	user, err := s.store.Users.FindByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	org, err := s.store.Orgs.Get(ctx, user.OrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}

	pair, err := s.tokens.Issue(auth.Identity{UserID: user.ID, OrgID: org.ID, Plan: org.Plan})
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}
	return pair, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// presented refresh token stays valid (no rotation in this version); the
// plan claim is re-read from the store so plan changes propagate within one
// access TTL.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	id, err := s.tokens.Verify(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	org, err := s.store.Orgs.Get(ctx, id.OrgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", auth.ErrInvalidToken
		}
		return "", fmt.Errorf("failed to load organization: %w", err)
	}
	id.Plan = org.Plan

	access, err := s.tokens.IssueAccess(*id)
	if err != nil {
		return "", fmt.Errorf("failed to issue access token: %w", err)
	}
	return access, nil
}
