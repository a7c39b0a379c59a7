package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated covers missing, invalid, expired, blacklisted and revoked
	// tokens as well as bad credentials
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrInvalidAuthConfiguration means the refresh token flow was requested
	// but no refresh token store is wired
	ErrInvalidAuthConfiguration = errors.New("invalid auth configuration")
	// ErrModelNotFound means a referenced user or refresh token does not exist
	ErrModelNotFound = errors.New("model not found")
	// ErrEmailTaken is returned by registration for an existing email
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is a bad email/password pair
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrNotAuthenticated)
	// ErrLoginThrottled is returned while the (ip, identifier) pair is locked out
	ErrLoginThrottled = fmt.Errorf("%w: too many failed login attempts", ErrNotAuthenticated)
)

func notAuthenticated(reason string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrNotAuthenticated, reason)
	}
	return fmt.Errorf("%w: %s: %w", ErrNotAuthenticated, reason, err)
}
