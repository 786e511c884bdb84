package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Passw0rd")
	require.NoError(t, err)
	require.NotEqual(t, "Passw0rd", hash)

	assert.True(t, CheckPassword(hash, "Passw0rd"))
	assert.False(t, CheckPassword(hash, "passw0rd"))
	assert.False(t, CheckPassword(hash, ""))
	assert.False(t, CheckPassword("not-a-hash", "Passw0rd"))
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  string
	}{
		{name: "valid", password: "Passw0rd"},
		{name: "too short", password: "Pass1", wantErr: "at least 8 characters"},
		{name: "no digit", password: "Passwords", wantErr: "one letter and one digit"},
		{name: "no letter", password: "12345678", wantErr: "one letter and one digit"},
		{name: "exactly eight with both", password: "abcdefg1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.COM "))
	assert.Equal(t, "user@example.com", NormalizeEmail("User@Example.Com"))
}
