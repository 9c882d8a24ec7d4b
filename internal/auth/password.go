package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost is the work factor for portal account hashes.
	bcryptCost = 10

	// MinPasswordLen is the shortest password Register accepts.
	MinPasswordLen = 6
	// maxPasswordLen is bcrypt's input limit; longer inputs fail to hash.
	maxPasswordLen = 72
)

// ValidPassword reports whether a plaintext password satisfies the portal
// account policy.
func ValidPassword(password string) bool {
	return len(password) >= MinPasswordLen && len(password) <= maxPasswordLen
}

// HashPassword generates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword compares a bcrypt hashed password with its plaintext version.
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
