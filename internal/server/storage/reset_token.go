package storage

import (
	"context"
	"time"

	"github.com/iudanet/projecthub/internal/models"
)

// ResetTokenStorage defines persistence of password reset tokens
type ResetTokenStorage interface {
	// SaveResetToken stores a new reset token and assigns its ID
	SaveResetToken(ctx context.Context, token *models.PasswordResetToken) error

	// GetResetToken retrieves reset token by the digest of the signed token
	// Returns ErrResetTokenNotFound if token doesn't exist
	GetResetToken(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)

	// ConsumeResetToken sets the owner's password hash and marks the token used
	// atomically: either both happen or neither does.
	// Returns ErrResetTokenUsed if it was already consumed, ErrUserNotFound if the owner is gone
	ConsumeResetToken(ctx context.Context, id int64, passwordHash string, usedAt time.Time) error
}
