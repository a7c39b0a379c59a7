package storage

import (
	"context"
	"time"

	"github.com/iudanet/projecthub/internal/models"
)

// EmailOutbox stores emails queued for asynchronous delivery
type EmailOutbox interface {
	// EnqueueEmail stores a new email and assigns its ID
	EnqueueEmail(ctx context.Context, email *models.QueuedEmail) error

	// PendingEmails returns up to limit unsent emails with fewer than maxAttempts
	// delivery attempts, oldest first
	PendingEmails(ctx context.Context, maxAttempts, limit int) ([]*models.QueuedEmail, error)

	// MarkEmailSent records successful delivery
	MarkEmailSent(ctx context.Context, id int64, sentAt time.Time) error

	// MarkEmailFailed increments the attempt counter and stores the last error
	MarkEmailFailed(ctx context.Context, id int64, reason string) error
}
