package cli

import (
	"context"
	"errors"
	"fmt"

	clientapi "github.com/iudanet/projecthub/internal/client/api"
)

func (c *Cli) runLogout(ctx context.Context) error {
	c.io.Println("=== Logout ===")

	session, err := c.session(ctx)
	if err != nil {
		return err
	}

	// просроченный или уже отозванный токен не мешает удалить сессию локально
	if err := c.apiClient.Logout(ctx, session.AccessToken, session.RefreshToken); err != nil {
		if !errors.Is(err, clientapi.ErrUnauthorized) {
			return fmt.Errorf("logout failed: %w", err)
		}
		c.io.Println("Server session already expired.")
	}

	if err := c.store.DeleteSession(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	c.io.Println("✓ Logout successful!")
	c.io.Println("Your local session has been deleted.")

	return nil
}
