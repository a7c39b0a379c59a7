package cli

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/iudanet/projecthub/internal/validation"
	"github.com/iudanet/projecthub/pkg/api"
)

// parseRemember разбирает флаг -remember команд register и login
func parseRemember(name string, args []string) (bool, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	remember := fs.Bool("remember", false, "Store a refresh token")
	if err := fs.Parse(args); err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return *remember, nil
}

func (c *Cli) runRegister(ctx context.Context, args []string) error {
	remember, err := parseRemember("register", args)
	if err != nil {
		return err
	}

	c.io.Println("=== Registration ===")
	c.io.Println()

	email, err := c.io.ReadInput("Email: ")
	if err != nil {
		return fmt.Errorf("failed to read email: %w", err)
	}
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return fmt.Errorf("invalid email: %w", err)
	}

	name, err := c.io.ReadInput("Name: ")
	if err != nil {
		return fmt.Errorf("failed to read name: %w", err)
	}
	if err := validation.ValidateName(name); err != nil {
		return fmt.Errorf("invalid name: %w", err)
	}

	password, err := c.newPassword(fmt.Sprintf("Password (min %d chars): ", validation.MinPasswordLen))
	if err != nil {
		return err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return fmt.Errorf("invalid password: %w", err)
	}

	c.io.Println()
	c.io.Println("Registering user...")

	res, err := c.apiClient.Register(ctx, api.RegisterRequest{
		Email:      email,
		Password:   password,
		Name:       name,
		RememberMe: remember,
	})
	if err != nil {
		return err
	}

	session, err := c.saveResult(ctx, res)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Registration successful!")
	c.io.Printf("User ID: %d\n", session.UserID)
	c.io.Printf("Email: %s\n", session.Email)
	c.printExpiry("Access token expires", session.AccessExpiresAt)

	return nil
}
