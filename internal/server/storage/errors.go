package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this email already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrTokenNotFound indicates that refresh token was not found
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrResetTokenNotFound indicates that password reset token was not found
	ErrResetTokenNotFound = errors.New("password reset token not found")

	// ErrResetTokenUsed indicates that password reset token was already consumed
	ErrResetTokenUsed = errors.New("password reset token already used")

	// ErrEmailNotFound indicates that queued email was not found
	ErrEmailNotFound = errors.New("queued email not found")
)
