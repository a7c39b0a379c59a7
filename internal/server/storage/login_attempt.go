package storage

import (
	"context"
	"time"

	"github.com/iudanet/projecthub/internal/models"
)

// LoginAttemptStorage defines the append-only persistence of login attempts
type LoginAttemptStorage interface {
	// AppendLoginAttempt stores the attempt and assigns attempt.Sequence
	AppendLoginAttempt(ctx context.Context, attempt *models.LoginAttempt) error

	// LoginAttemptsSince returns attempts of the exact (ip, identifier) pair
	// with attempted_at >= since, newest first, ties broken by sequence descending
	LoginAttemptsSince(ctx context.Context, ip, identifier string, since time.Time) ([]*models.LoginAttempt, error)
}
