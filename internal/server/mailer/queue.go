// Package mailer queues transactional emails into the outbox and delivers
// them in the background.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/iudanet/projecthub/internal/clock"
	"github.com/iudanet/projecthub/internal/models"
	"github.com/iudanet/projecthub/internal/server/storage"
)

// Template identifiers
const (
	TemplatePasswordReset = "password-reset"
)

// ErrEmptyRecipient is returned for emails without a recipient
var ErrEmptyRecipient = errors.New("email recipient is empty")

// Queue accepts emails for later delivery; it never sends synchronously
type Queue interface {
	QueueEmail(ctx context.Context, template, recipient string, data map[string]string) error
}

// OutboxQueue stores queued emails in the outbox table
type OutboxQueue struct {
	outbox storage.EmailOutbox
	clock  clock.Clock
}

// NewOutboxQueue creates a queue backed by outbox
func NewOutboxQueue(outbox storage.EmailOutbox, clk clock.Clock) *OutboxQueue {
	if clk == nil {
		clk = clock.Real{}
	}
	return &OutboxQueue{outbox: outbox, clock: clk}
}

// QueueEmail stores the email; delivery happens in Dispatcher
func (q *OutboxQueue) QueueEmail(ctx context.Context, template, recipient string, data map[string]string) error {
	if recipient == "" {
		return ErrEmptyRecipient
	}

	email := &models.QueuedEmail{
		Template:  template,
		Recipient: recipient,
		Context:   maps.Clone(data),
		CreatedAt: q.clock.Now(),
	}
	if email.Context == nil {
		email.Context = map[string]string{}
	}

	if err := q.outbox.EnqueueEmail(ctx, email); err != nil {
		return fmt.Errorf("failed to queue %s email: %w", template, err)
	}

	return nil
}
