package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardroomhq/boardroom/pkg/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(testSecret)
	require.NoError(t, err)
	return m
}

func TestNewTokenManager(t *testing.T) {
	t.Run("rejects short secret", func(t *testing.T) {
		_, err := NewTokenManager("too-short")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 32 bytes")
	})

	t.Run("accepts 32-byte secret", func(t *testing.T) {
		_, err := NewTokenManager(testSecret)
		require.NoError(t, err)
	})
}

func TestIssueAndVerify(t *testing.T) {
	m := newTestManager(t)
	id := Identity{UserID: "user-1", OrgID: "org-1", Plan: models.PlanPro}

	pair, err := m.Issue(id)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	t.Run("access token round-trips identity", func(t *testing.T) {
		got, err := m.Verify(pair.AccessToken, TokenTypeAccess)
		require.NoError(t, err)
		assert.Equal(t, id, *got)
	})

	t.Run("refresh token round-trips identity", func(t *testing.T) {
		got, err := m.Verify(pair.RefreshToken, TokenTypeRefresh)
		require.NoError(t, err)
		assert.Equal(t, id, *got)
	})

	t.Run("access token rejected as refresh", func(t *testing.T) {
		_, err := m.Verify(pair.AccessToken, TokenTypeRefresh)
		assert.ErrorIs(t, err, ErrWrongTokenType)
	})

	t.Run("refresh token rejected as access", func(t *testing.T) {
		_, err := m.Verify(pair.RefreshToken, TokenTypeAccess)
		assert.ErrorIs(t, err, ErrWrongTokenType)
	})

	t.Run("tampered token rejected", func(t *testing.T) {
		tampered := pair.AccessToken[:len(pair.AccessToken)-4] + "AAAA"
		_, err := m.Verify(tampered, TokenTypeAccess)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("token signed with another secret rejected", func(t *testing.T) {
		other, err := NewTokenManager(strings.Repeat("x", 32))
		require.NoError(t, err)
		otherPair, err := other.Issue(id)
		require.NoError(t, err)
		_, err = m.Verify(otherPair.AccessToken, TokenTypeAccess)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestVerifyExpiry(t *testing.T) {
	m := newTestManager(t)
	id := Identity{UserID: "user-1", OrgID: "org-1", Plan: models.PlanFree}

	issued := time.Now()
	m.now = func() time.Time { return issued }
	pair, err := m.Issue(id)
	require.NoError(t, err)

	t.Run("valid just before expiry", func(t *testing.T) {
		m.now = func() time.Time { return issued.Add(AccessTokenTTL - time.Second) }
		_, err := m.Verify(pair.AccessToken, TokenTypeAccess)
		assert.NoError(t, err)
	})

	t.Run("rejected after expiry", func(t *testing.T) {
		m.now = func() time.Time { return issued.Add(AccessTokenTTL + time.Minute) }
		_, err := m.Verify(pair.AccessToken, TokenTypeAccess)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("refresh outlives access", func(t *testing.T) {
		m.now = func() time.Time { return issued.Add(AccessTokenTTL + time.Minute) }
		_, err := m.Verify(pair.RefreshToken, TokenTypeRefresh)
		assert.NoError(t, err)
	})
}

func TestIssueAccess(t *testing.T) {
	m := newTestManager(t)
	id := Identity{UserID: "user-2", OrgID: "org-2", Plan: models.PlanEnterprise}

	access, err := m.IssueAccess(id)
	require.NoError(t, err)

	got, err := m.Verify(access, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, id, *got)
}
