package service

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted on change.
const MinPasswordLength = 8

// PasswordHasher hashes and checks admin passwords with bcrypt.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher using cost, or bcrypt.DefaultCost when
// cost is out of range.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash returns the bcrypt hash of password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Check reports whether password matches hash. Malformed hashes never match.
func (h *PasswordHasher) Check(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ValidateNewPassword enforces the password policy for new passwords.
func ValidateNewPassword(password string) error {
	if len(password) < MinPasswordLength {
		return validationError("New password must be at least 8 characters long", map[string]interface{}{
			"field": "newPassword",
		})
	}
	if len(password) > 72 {
		return validationError("New password must be at most 72 bytes long", map[string]interface{}{
			"field": "newPassword",
		})
	}
	return nil
}
