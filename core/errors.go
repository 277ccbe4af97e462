package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a post, group, or user cannot be resolved.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when an anonymous actor attempts a write.
	ErrUnauthorized = errors.New("login required")
	// ErrInvalidCredentials is returned when username/password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

var errInvalidPagination = errors.New("invalid pagination")

// errDuplicate keeps the word "duplicate" in the message so callers can detect
// unique-constraint conflicts the same way they do for Postgres errors.
func errDuplicate(field, value string) error {
	return fmt.Errorf("duplicate %s: %q", field, value)
}
