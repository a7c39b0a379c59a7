package cli

import (
	"context"
	"errors"
	"fmt"

	clientapi "github.com/iudanet/projecthub/internal/client/api"
	"github.com/iudanet/projecthub/internal/validation"
	"github.com/iudanet/projecthub/pkg/api"
)

func (c *Cli) runLogin(ctx context.Context, args []string) error {
	remember, err := parseRemember("login", args)
	if err != nil {
		return err
	}

	c.io.Println("=== Login ===")
	c.io.Println()

	email, err := c.io.ReadInput("Email: ")
	if err != nil {
		return fmt.Errorf("failed to read email: %w", err)
	}
	email = validation.NormalizeEmail(email)

	password, err := c.getPassword("Password: ")
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("Authenticating...")

	res, err := c.apiClient.Login(ctx, api.LoginRequest{
		Email:      email,
		Password:   password,
		RememberMe: remember,
	})
	if err != nil {
		if errors.Is(err, clientapi.ErrUnauthorized) {
			// сервер не различает неверный пароль и блокировку
			return fmt.Errorf("login failed: invalid credentials or too many attempts, try again later")
		}
		return err
	}

	session, err := c.saveResult(ctx, res)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Login successful!")
	c.io.Printf("Email: %s\n", session.Email)
	c.printExpiry("Access token expires", session.AccessExpiresAt)
	if session.RefreshToken != "" {
		c.io.Println("Refresh token stored, use 'projecthub refresh' to extend the session.")
	}

	return nil
}
