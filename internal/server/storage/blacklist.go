package storage

import (
	"context"
	"time"
)

// BlacklistStorage keeps keys of revoked access tokens until their natural expiry
type BlacklistStorage interface {
	// AddToBlacklist stores key revoked at revokedAt until expiresAt;
	// repeated calls with the same key are not an error
	AddToBlacklist(ctx context.Context, key string, revokedAt, expiresAt time.Time) error

	// IsBlacklisted reports whether key was revoked
	IsBlacklisted(ctx context.Context, key string) (bool, error)

	// PurgeExpiredBlacklist removes entries whose token already expired on its own
	// Returns number of removed entries
	PurgeExpiredBlacklist(ctx context.Context, now time.Time) (int, error)
}
