// Package security hashes and verifies the passwords stored for marketplace
// accounts, using bcrypt for both operations.
package security

import (
	"log"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password with bcrypt at the default cost.
// A hashing failure is logged; the returned string then never verifies.
func HashPassword(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Print(err.Error())
	}
	return string(hash)
}

// CheckPassword compares a stored bcrypt hash against a plaintext candidate.
// It returns nil when they match and bcrypt's mismatch error otherwise.
func CheckPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
