package storage

import (
	"context"
	"time"

	"github.com/iudanet/projecthub/internal/models"
)

// TokenStorage defines interface for refresh token persistence.
// Tokens are never deleted: revocation sets ValidUntil and saves the record.
type TokenStorage interface {
	// FindRefreshToken retrieves refresh token by its identifier
	// Returns ErrTokenNotFound if token doesn't exist
	FindRefreshToken(ctx context.Context, identifier string) (*models.RefreshToken, error)

	// SaveRefreshToken inserts the token or updates the record with the same identifier.
	// flush=false allows the implementation to defer the write to a surrounding unit of work.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken, flush bool) error

	// GetUserTokens retrieves all refresh tokens of a user, newest first
	GetUserTokens(ctx context.Context, userID int64) ([]*models.RefreshToken, error)

	// RevokeUserTokens sets valid_until = at for every still valid token of a user
	// Returns number of revoked tokens
	RevokeUserTokens(ctx context.Context, userID int64, at time.Time) (int, error)
}
