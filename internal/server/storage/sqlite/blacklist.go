package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AddToBlacklist stores a revoked access token key
func (s *Storage) AddToBlacklist(ctx context.Context, key string, revokedAt, expiresAt time.Time) error {
	query := `
		INSERT INTO blacklisted_tokens (token_key, expires_at, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (token_key) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, key, expiresAt.UnixNano(), revokedAt.UTC()); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}

	return nil
}

// IsBlacklisted reports whether the key was revoked
func (s *Storage) IsBlacklisted(ctx context.Context, key string) (bool, error) {
	query := `SELECT 1 FROM blacklisted_tokens WHERE token_key = ?`

	var found int
	err := s.db.QueryRowContext(ctx, query, key).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}

	return true, nil
}

// PurgeExpiredBlacklist removes entries of tokens that expired by themselves
func (s *Storage) PurgeExpiredBlacklist(ctx context.Context, now time.Time) (int, error) {
	query := `DELETE FROM blacklisted_tokens WHERE expires_at < ?`

	result, err := s.db.ExecContext(ctx, query, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge blacklist: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}
