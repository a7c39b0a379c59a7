// Package ledger records login attempts and answers window queries over them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/projecthub/internal/models"
	"github.com/iudanet/projecthub/internal/server/storage"
)

// ErrInvalidParameter indicates a malformed record request
var ErrInvalidParameter = errors.New("invalid parameter")

// Ledger is the append-only log of login attempts
type Ledger struct {
	store storage.LoginAttemptStorage
}

// New creates a ledger on top of the given storage
func New(store storage.LoginAttemptStorage) *Ledger {
	return &Ledger{store: store}
}

// Record appends a login attempt
func (l *Ledger) Record(ctx context.Context, ip, identifier string, attemptedAt time.Time, success bool) (*models.LoginAttempt, error) {
	if strings.TrimSpace(ip) == "" {
		return nil, fmt.Errorf("%w: ip address is empty", ErrInvalidParameter)
	}
	if strings.TrimSpace(identifier) == "" {
		return nil, fmt.Errorf("%w: identifier is empty", ErrInvalidParameter)
	}

	attempt := &models.LoginAttempt{
		IPAddress:   ip,
		Identifier:  identifier,
		AttemptedAt: attemptedAt,
		Success:     success,
	}

	if err := l.store.AppendLoginAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to record login attempt: %w", err)
	}

	return attempt, nil
}

// AttemptsSince returns attempts of the exact (ip, identifier) pair made at or after since,
// newest first
func (l *Ledger) AttemptsSince(ctx context.Context, ip, identifier string, since time.Time) ([]*models.LoginAttempt, error) {
	attempts, err := l.store.LoginAttemptsSince(ctx, ip, identifier, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", err)
	}

	return attempts, nil
}
