// Package auth implements credentials and token handling: bcrypt password
// hashing, registration password policy, and signed access/refresh token
// issuance and verification. Refresh tokens are not rotated in this version;
// a refresh exchanges a valid refresh token for a new access token only.
package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is the work factor for password hashes. The data model requires
// at least 10.
const bcryptCost = 12

// minPasswordLength is the registration policy floor.
const minPasswordLength = 8

// HashPassword hashes a clear password with bcrypt. The clear password is
// never stored or logged.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a clear password against a stored bcrypt hash.
// bcrypt comparison is constant-time by construction.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePassword enforces the registration policy: at least 8 characters
// with at least one letter and one digit. The returned message is safe to
// surface to the user.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return fmt.Errorf("password must contain at least one letter and one digit")
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address. All storage and
// lookups use the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
