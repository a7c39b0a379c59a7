package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/projecthub/internal/models"
)

// AppendLoginAttempt stores a login attempt
func (s *Storage) AppendLoginAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (ip_address, identifier, attempted_at, success)
		VALUES (?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		attempt.IPAddress,
		attempt.Identifier,
		attempt.AttemptedAt.UnixNano(),
		attempt.Success,
	)
	if err != nil {
		return fmt.Errorf("failed to insert login attempt: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get login attempt id: %w", err)
	}
	attempt.Sequence = seq

	return nil
}

// LoginAttemptsSince returns attempts of the pair inside the window, newest first
func (s *Storage) LoginAttemptsSince(ctx context.Context, ip, identifier string, since time.Time) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, ip_address, identifier, attempted_at, success
		FROM login_attempts
		WHERE ip_address = ? AND identifier = ? AND attempted_at >= ?
		ORDER BY attempted_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, ip, identifier, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var attempts []*models.LoginAttempt

	for rows.Next() {
		attempt := &models.LoginAttempt{}
		var attemptedAt int64

		if err := rows.Scan(
			&attempt.Sequence,
			&attempt.IPAddress,
			&attempt.Identifier,
			&attemptedAt,
			&attempt.Success,
		); err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}

		attempt.AttemptedAt = time.Unix(0, attemptedAt).UTC()
		attempts = append(attempts, attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return attempts, nil
}
