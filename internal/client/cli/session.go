package cli

import (
	"context"
	"errors"
	"fmt"

	clientapi "github.com/iudanet/projecthub/internal/client/api"
	"github.com/iudanet/projecthub/internal/client/storage"
)

// errRefreshUnavailable: сессия без refresh token (логин без -remember)
var errRefreshUnavailable = errors.New("no usable refresh token, run 'projecthub login -remember'")

func (c *Cli) runRefresh(ctx context.Context) error {
	session, err := c.session(ctx)
	if err != nil {
		return err
	}

	session, err = c.refresh(ctx, session)
	if err != nil {
		return err
	}

	c.io.Println("✓ Access token refreshed")
	c.printExpiry("Access token expires", session.AccessExpiresAt)
	return nil
}

// refresh получает новый access token. Отозванный refresh token удаляет сессию.
func (c *Cli) refresh(ctx context.Context, session *storage.Session) (*storage.Session, error) {
	if !session.CanRefresh(c.clock.Now()) {
		return nil, errRefreshUnavailable
	}

	res, err := c.apiClient.Refresh(ctx, session.RefreshToken)
	if err != nil {
		if errors.Is(err, clientapi.ErrUnauthorized) {
			if delErr := c.store.DeleteSession(ctx); delErr != nil {
				return nil, errors.Join(err, delErr)
			}
			return nil, fmt.Errorf("session was revoked, login again: %w", err)
		}
		return nil, err
	}

	// сервер не возвращает пользователя при refresh, берем из сессии
	if res.User.ID == 0 {
		res.User.ID = session.UserID
		res.User.Email = session.Email
		res.User.Name = session.Name
	}
	if res.RefreshExpiresAt == nil {
		res.RefreshExpiresAt = session.RefreshExpiresAt
	}

	updated, err := c.saveResult(ctx, res)
	if err != nil {
		return nil, err
	}
	if err := c.store.SaveLastRefresh(ctx, c.clock.Now()); err != nil {
		return nil, fmt.Errorf("failed to save refresh time: %w", err)
	}

	return updated, nil
}

func (c *Cli) runWhoami(ctx context.Context) error {
	session, err := c.session(ctx)
	if err != nil {
		return err
	}

	if !session.AccessValid(c.clock.Now()) {
		if session, err = c.refresh(ctx, session); err != nil {
			return err
		}
	}

	user, err := c.apiClient.Me(ctx, session.AccessToken)
	if errors.Is(err, clientapi.ErrUnauthorized) && session.CanRefresh(c.clock.Now()) {
		// access token мог быть отозван раньше срока; одна попытка обновить
		if session, err = c.refresh(ctx, session); err != nil {
			return err
		}
		user, err = c.apiClient.Me(ctx, session.AccessToken)
	}
	if err != nil {
		return err
	}

	c.io.Printf("ID: %d\n", user.ID)
	c.io.Printf("Email: %s\n", user.Email)
	c.io.Printf("Name: %s\n", user.Name)
	if !user.CreatedAt.IsZero() {
		c.io.Printf("Member since: %s\n", user.CreatedAt.Format("2006-01-02"))
	}
	return nil
}
