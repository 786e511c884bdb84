package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/boardroomhq/boardroom/pkg/models"
)

// MinSecretLength is the minimum signing-secret size. Construction fails
// below it, which in turn fails process startup.
const MinSecretLength = 32

// Token lifetimes.
const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 30 * 24 * time.Hour
)

// Token types carried in the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	// ErrInvalidToken covers bad signatures, malformed tokens, and expiry.
	ErrInvalidToken = errors.New("invalid token")

	// ErrWrongTokenType is returned when a refresh token is presented where
	// an access token is required, or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")
)

// Identity is the tenant context resolved from a verified token. Services
// read the org id from here and nowhere else.
type Identity struct {
	UserID string
	OrgID  string
	Plan   models.Plan
}

// TokenPair is what register and login hand back.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// claims is the JWT payload. Subject carries the user id.
type claims struct {
	OrgID string `json:"org_id"`
	Plan  string `json:"plan"`
	Typ   string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenManager validates the signing secret and builds a manager with the
// standard lifetimes.
func NewTokenManager(secret string) (*TokenManager, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  AccessTokenTTL,
		refreshTTL: RefreshTokenTTL,
		now:        time.Now,
	}, nil
}

// Issue signs an access/refresh pair for the identity.
func (m *TokenManager) Issue(id Identity) (*TokenPair, error) {
	access, err := m.sign(id, TokenTypeAccess, m.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sign(id, TokenTypeRefresh, m.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueAccess signs a fresh access token only. Used by the refresh exchange;
// the presented refresh token stays valid (no rotation).
func (m *TokenManager) IssueAccess(id Identity) (string, error) {
	return m.sign(id, TokenTypeAccess, m.accessTTL)
}

func (m *TokenManager) sign(id Identity, typ string, ttl time.Duration) (string, error) {
	now := m.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		OrgID: id.OrgID,
		Plan:  string(id.Plan),
		Typ:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Verify parses and validates raw, requiring the given token type. It returns
// the embedded identity; signature, expiry, and algorithm violations all
// surface as ErrInvalidToken.
func (m *TokenManager) Verify(raw, wantTyp string) (*Identity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if c.Typ != wantTyp {
		return nil, ErrWrongTokenType
	}
	if c.Subject == "" || c.OrgID == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UserID: c.Subject,
		OrgID:  c.OrgID,
		Plan:   models.Plan(c.Plan),
	}, nil
}
