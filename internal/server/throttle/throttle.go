// Package throttle decides whether a login attempt has to be rejected
// based on the recent history kept in the login attempt ledger.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/projecthub/internal/clock"
	"github.com/iudanet/projecthub/internal/models"
)

// ErrInvalidConfig is returned for non-positive thresholds
var ErrInvalidConfig = errors.New("invalid throttling configuration")

// AttemptSource returns attempts of a pair newest first
type AttemptSource interface {
	AttemptsSince(ctx context.Context, ip, identifier string, since time.Time) ([]*models.LoginAttempt, error)
}

// Config задаёт порог блокировки и окно
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// Engine is the login throttling engine
type Engine struct {
	source AttemptSource
	clock  clock.Clock
	cfg    Config
}

// New creates an engine
func New(source AttemptSource, clk clock.Clock, cfg Config) (*Engine, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("%w: max attempts must be positive, got %d", ErrInvalidConfig, cfg.MaxAttempts)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, cfg.Window)
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &Engine{source: source, clock: clk, cfg: cfg}, nil
}

// IsLoginBlocked reports whether the pair reached the consecutive failure threshold
// inside the window. It never rejects anything itself.
func (e *Engine) IsLoginBlocked(ctx context.Context, ip, identifier string) (bool, error) {
	since := e.clock.Now().Add(-e.cfg.Window)

	attempts, err := e.source.AttemptsSince(ctx, ip, identifier, since)
	if err != nil {
		return false, fmt.Errorf("failed to load login attempts: %w", err)
	}

	return ConsecutiveFailures(attempts) >= e.cfg.MaxAttempts, nil
}

// ConsecutiveFailures counts failures from the newest attempt until the first success
func ConsecutiveFailures(newestFirst []*models.LoginAttempt) int {
	count := 0
	for _, a := range newestFirst {
		if a.Success {
			break
		}
		count++
	}
	return count
}
