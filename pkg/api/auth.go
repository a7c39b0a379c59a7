// Package api содержит DTO, общие для сервера и CLI клиента
package api

import "time"

// Defaults shared by server and client
const (
	// RefreshCookieName is the default name of the HttpOnly refresh token cookie
	RefreshCookieName = "refresh_token"
	// AuthCookiePath limits the refresh cookie to auth endpoints
	AuthCookiePath = "/api/v1/auth"
	// HeaderAccessExpires carries the access token expiry (RFC 3339)
	HeaderAccessExpires = "X-Access-Token-Expires"
)

// RegisterRequest представляет запрос на регистрацию нового пользователя
type RegisterRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	RememberMe bool   `json:"remember_me"` // выдать refresh token в cookie
}

// LoginRequest представляет запрос на аутентификацию
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// PasswordResetRequest starts the password reset flow
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest sets a new password with a reset token
type PasswordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// UserResponse представляет пользователя в ответах API
type UserResponse struct {
	CreatedAt time.Time `json:"created_at"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	ID        int64     `json:"id"`
}

// AuthResponse is the body of successful register, login and refresh calls.
// The access token itself travels in the Authorization header.
type AuthResponse struct {
	AccessTokenExpiresAt time.Time    `json:"access_token_expires_at"`
	User                 UserResponse `json:"user"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// ValidationErrorResponse is returned with 422
type ValidationErrorResponse struct {
	Fields map[string][]string `json:"fields"`
	Error  string              `json:"error"`
}
