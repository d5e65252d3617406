package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plain user password using bcrypt. Room passwords are
// stored and compared as-is; only account passwords are hashed.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a plain password with its bcrypt hash.
func CheckPassword(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
