package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleRegister(t *testing.T) {
	t.Run("returns a token pair", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/auth/register", "", map[string]any{
			"email":    "founder@example.com",
			"password": "hunter2abc",
			"org_name": "Acme",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		assert.NotEmpty(t, body["access_token"])
		assert.NotEmpty(t, body["refresh_token"])
	})

	t.Run("validation failure is 400 with field", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/auth/register", "", map[string]any{
			"email":    "founder@example.com",
			"password": "short",
			"org_name": "Acme",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "password", decodeBody(t, rec)["field"])
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/auth/register", "", "not an object")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleLogin(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email":    "user@example.com",
		"password": "hunter2abc",
		"org_name": "Acme",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("valid credentials", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/auth/login", "", map[string]any{
			"email":    "user@example.com",
			"password": "hunter2abc",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, decodeBody(t, rec)["access_token"])
	})

	t.Run("wrong password is 401", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/auth/login", "", map[string]any{
			"email":    "user@example.com",
			"password": "wrongpass1",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHandleRefresh(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email":    "user@example.com",
		"password": "hunter2abc",
		"org_name": "Acme",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	refresh, _ := decodeBody(t, rec)["refresh_token"].(string)
	require.NotEmpty(t, refresh)

	t.Run("exchanges for a fresh access token", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/auth/refresh", "", map[string]any{
			"refresh_token": refresh,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, decodeBody(t, rec)["access_token"])
	})

	t.Run("garbage token is 401", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/auth/refresh", "", map[string]any{
			"refresh_token": "garbage",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
