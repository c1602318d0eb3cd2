package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Password length bounds. bcrypt ignores everything past 72 bytes.
const (
	MinPasswordLen = 6
	MaxPasswordLen = 72
)

// ErrPasswordLength is returned for passwords outside the accepted bounds.
var ErrPasswordLength = errors.New("password must be 6-72 characters")

// ValidatePassword checks the length bounds.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen || len(password) > MaxPasswordLen {
		return ErrPasswordLength
	}
	return nil
}

// HashPassword validates and bcrypt-hashes the password.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. OAuth-only accounts have no hash and never match.
func CheckPassword(hash, password string) bool {
	if hash == "" || len(password) > MaxPasswordLen {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
