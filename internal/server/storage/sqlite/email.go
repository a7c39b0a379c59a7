package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iudanet/projecthub/internal/models"
	"github.com/iudanet/projecthub/internal/server/storage"
)

// EnqueueEmail stores an email in the outbox
func (s *Storage) EnqueueEmail(ctx context.Context, email *models.QueuedEmail) error {
	contextJSON, err := json.Marshal(email.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal email context: %w", err)
	}

	query := `
		INSERT INTO email_queue (template, recipient, context, created_at)
		VALUES (?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		email.Template,
		email.Recipient,
		string(contextJSON),
		email.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue email: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get email id: %w", err)
	}
	email.ID = id

	return nil
}

// PendingEmails returns unsent emails that still have attempts left, oldest first
func (s *Storage) PendingEmails(ctx context.Context, maxAttempts, limit int) ([]*models.QueuedEmail, error) {
	query := `
		SELECT id, template, recipient, context, attempts, last_error, created_at
		FROM email_queue
		WHERE sent_at IS NULL AND attempts < ?
		ORDER BY id ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending emails: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var emails []*models.QueuedEmail

	for rows.Next() {
		email := &models.QueuedEmail{}
		var contextJSON string

		if err := rows.Scan(
			&email.ID,
			&email.Template,
			&email.Recipient,
			&contextJSON,
			&email.Attempts,
			&email.LastError,
			&email.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}

		if err := json.Unmarshal([]byte(contextJSON), &email.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal email context: %w", err)
		}

		emails = append(emails, email)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return emails, nil
}

// MarkEmailSent records delivery time
func (s *Storage) MarkEmailSent(ctx context.Context, id int64, sentAt time.Time) error {
	return s.updateEmail(ctx, `UPDATE email_queue SET sent_at = ? WHERE id = ?`, sentAt.UTC(), id)
}

// MarkEmailFailed increments attempts and stores the reason
func (s *Storage) MarkEmailFailed(ctx context.Context, id int64, reason string) error {
	return s.updateEmail(ctx, `UPDATE email_queue SET attempts = attempts + 1, last_error = ? WHERE id = ?`, reason, id)
}

func (s *Storage) updateEmail(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update email: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrEmailNotFound
	}

	return nil
}
