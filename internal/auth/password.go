package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var (
	// ErrPasswordTooShort indicates the supplied password does not meet the minimum length.
	ErrPasswordTooShort = errors.New("auth: password too short")
	// ErrPasswordMismatch indicates the supplied password does not match the stored hash.
	ErrPasswordMismatch = errors.New("auth: password mismatch")
)

// HashPassword derives a bcrypt hash suitable for storage.
func HashPassword(plain string) (string, error) {
	if len(plain) < minPasswordLength {
		return "", ErrPasswordTooShort
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword compares a stored bcrypt hash against a candidate password.
func VerifyPassword(hash, plain string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}
