package cli

import (
	"context"
	"errors"
	"fmt"
	"time"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Authentication Status ===")
	c.io.Println()

	session, err := c.session(ctx)
	if err != nil {
		if errors.Is(err, ErrNotLoggedIn) {
			c.io.Println("Status: Not authenticated")
			c.io.Println()
			c.io.Println("Run 'projecthub login' to authenticate.")
			return nil
		}
		return err
	}

	now := c.clock.Now()
	if session.AccessValid(now) {
		c.io.Println("Status: Authenticated")
	} else {
		c.io.Println("Status: Access token expired")
	}
	c.io.Printf("Server: %s\n", session.ServerURL)
	c.io.Printf("Email: %s\n", session.Email)
	c.printExpiry("Access token expires", session.AccessExpiresAt)

	switch {
	case session.RefreshToken == "":
		c.io.Println("Refresh token: none (login with -remember to keep the session)")
	case session.RefreshExpiresAt == nil:
		c.io.Println("Refresh token: stored, no expiry")
	default:
		c.printExpiry("Refresh token expires", *session.RefreshExpiresAt)
	}

	last, err := c.store.LastRefresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to read last refresh: %w", err)
	}
	if !last.IsZero() {
		c.io.Printf("Last refresh: %s\n", last.Format(time.RFC3339))
	}

	if !session.AccessValid(now) && session.CanRefresh(now) {
		c.io.Println()
		c.io.Println("Run 'projecthub refresh' to get a new access token.")
	}

	return nil
}
