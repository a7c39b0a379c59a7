package storage

import (
	"context"
	"time"
)

// SessionStorage хранит текущую сессию CLI между запусками
type SessionStorage interface {
	// SaveSession replaces the stored session
	SaveSession(ctx context.Context, session *Session) error

	// GetSession returns ErrSessionNotFound if nobody is logged in
	GetSession(ctx context.Context) (*Session, error)

	// DeleteSession removes the session; missing session is not an error
	DeleteSession(ctx context.Context) error

	// SaveLastRefresh records when the access token was last refreshed
	SaveLastRefresh(ctx context.Context, at time.Time) error

	// LastRefresh returns zero time if the token was never refreshed
	LastRefresh(ctx context.Context) (time.Time, error)
}

// Session is the locally persisted login state.
// RefreshToken is empty when the user logged in without "remember me".
type Session struct {
	AccessExpiresAt  time.Time  `json:"access_expires_at"`
	RefreshExpiresAt *time.Time `json:"refresh_expires_at,omitempty"`
	ServerURL        string     `json:"server_url"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	AccessToken      string     `json:"access_token"`
	RefreshToken     string     `json:"refresh_token,omitempty"`
	UserID           int64      `json:"user_id"`
}

// AccessValid reports whether the access token has not expired at now
func (s *Session) AccessValid(now time.Time) bool {
	return s.AccessToken != "" && now.Before(s.AccessExpiresAt)
}

// CanRefresh reports whether a refresh token is stored and not known to be expired
func (s *Session) CanRefresh(now time.Time) bool {
	if s.RefreshToken == "" {
		return false
	}
	return s.RefreshExpiresAt == nil || now.Before(*s.RefreshExpiresAt)
}
