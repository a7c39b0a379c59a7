package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/projecthub/internal/client/storage"
	"github.com/iudanet/projecthub/internal/validation"
)

func (c *Cli) runResetPassword(ctx context.Context, args []string) error {
	var email string
	if len(args) > 0 {
		email = args[0]
	} else {
		var err error
		if email, err = c.io.ReadInput("Email: "); err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
	}

	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return fmt.Errorf("invalid email: %w", err)
	}

	if err := c.apiClient.RequestPasswordReset(ctx, email); err != nil {
		return err
	}

	c.io.Println("If an account with this email exists, a reset link has been sent.")
	c.io.Println("Run 'projecthub confirm-reset TOKEN' with the token from the email.")
	return nil
}

func (c *Cli) runConfirmReset(ctx context.Context, args []string) error {
	var token string
	if len(args) > 0 {
		token = args[0]
	} else {
		var err error
		if token, err = c.io.ReadInput("Reset token: "); err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
	}
	if token == "" {
		return fmt.Errorf("reset token cannot be empty")
	}

	password, err := c.newPassword(fmt.Sprintf("New password (min %d chars): ", validation.MinPasswordLen))
	if err != nil {
		return err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return fmt.Errorf("invalid password: %w", err)
	}

	if err := c.apiClient.ConfirmPasswordReset(ctx, token, password); err != nil {
		return err
	}

	// сервер отозвал все refresh tokens пользователя
	if err := c.store.DeleteSession(ctx); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	c.io.Println("✓ Password changed. Please login again.")
	return nil
}
