package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/projecthub/internal/clock"
	"github.com/iudanet/projecthub/internal/models"
	"github.com/iudanet/projecthub/internal/server/storage"
)

// Sender delivers a single email
type Sender interface {
	Send(ctx context.Context, email *models.QueuedEmail) error
}

// LogSender "отправляет" письма в лог. Используется, пока не настроен реальный транспорт.
// Context values are not logged: they carry reset tokens.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender that only logs
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the email envelope
func (s *LogSender) Send(ctx context.Context, email *models.QueuedEmail) error {
	s.logger.InfoContext(ctx, "Email delivered to log",
		slog.Int64("id", email.ID),
		slog.String("template", email.Template),
		slog.String("recipient", email.Recipient),
		slog.Int("context_keys", len(email.Context)),
	)
	return nil
}

// DispatcherConfig configures the delivery loop
type DispatcherConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// Dispatcher drains the outbox on every tick. A failed email stays in the outbox
// until it runs out of attempts.
type Dispatcher struct {
	outbox storage.EmailOutbox
	sender Sender
	logger *slog.Logger
	clock  clock.Clock
	cfg    DispatcherConfig
}

// NewDispatcher creates a dispatcher
func NewDispatcher(outbox storage.EmailOutbox, sender Sender, clk clock.Clock, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &Dispatcher{
		outbox: outbox,
		sender: sender,
		logger: logger,
		clock:  clk,
		cfg:    cfg,
	}
}

// Run dispatches until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.ErrorContext(ctx, "Email dispatch failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce sends one batch and returns the number of delivered emails
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	pending, err := d.outbox.PendingEmails(ctx, d.cfg.MaxAttempts, d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending emails: %w", err)
	}

	sent := 0
	for _, email := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		if sendErr := d.sender.Send(ctx, email); sendErr != nil {
			d.logger.WarnContext(ctx, "Email delivery failed",
				slog.Int64("id", email.ID),
				slog.String("template", email.Template),
				slog.Int("attempt", email.Attempts+1),
				slog.Any("error", sendErr),
			)
			if err := d.outbox.MarkEmailFailed(ctx, email.ID, sendErr.Error()); err != nil {
				return sent, fmt.Errorf("failed to mark email %d failed: %w", email.ID, err)
			}
			continue
		}

		if err := d.outbox.MarkEmailSent(ctx, email.ID, d.clock.Now()); err != nil {
			return sent, fmt.Errorf("failed to mark email %d sent: %w", email.ID, err)
		}
		sent++
	}

	return sent, nil
}
