package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/iudanet/projecthub/pkg/api"
)

var (
	// ErrUnauthorized returned on 401: bad credentials, throttled login, revoked or expired token
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict returned on 409
	ErrConflict = errors.New("conflict")
)

// StatusError is a non-2xx response
type StatusError struct {
	Fields     map[string][]string
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, field := range slices.Sorted(maps.Keys(e.Fields)) {
			parts = append(parts, field+": "+strings.Join(e.Fields[field], ", "))
		}
		return fmt.Sprintf("server error (%d): %s", e.StatusCode, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Is allows errors.Is(err, ErrUnauthorized)
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// AuthResult is what the server hands out on register, login and refresh
type AuthResult struct {
	AccessExpiresAt  time.Time
	RefreshExpiresAt *time.Time
	User             api.UserResponse
	AccessToken      string
	// RefreshToken пуст, если сервер не выставил cookie
	RefreshToken string
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
	cookieName string
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		cookieName: api.RefreshCookieName,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// BaseURL returns the server URL the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Register регистрирует нового пользователя
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*AuthResult, error) {
	res, err := c.authRequest(ctx, "/api/v1/auth/register", req, nil)
	if err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return res, nil
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*AuthResult, error) {
	res, err := c.authRequest(ctx, "/api/v1/auth/login", req, nil)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return res, nil
}

// Refresh обменивает refresh token на новый access token.
// Refresh token не ротируется: сервер возвращает только access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	res, err := c.authRequest(ctx, "/api/v1/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: c.cookieName, Value: refreshToken})
	})
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	if res.RefreshToken == "" {
		res.RefreshToken = refreshToken
	}
	return res, nil
}

// Logout отзывает access token и связанный refresh token
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+accessToken)
		if refreshToken != "" {
			r.AddCookie(&http.Cookie{Name: c.cookieName, Value: refreshToken})
		}
	})
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

// Me возвращает текущего пользователя
func (c *Client) Me(ctx context.Context, accessToken string) (*api.UserResponse, error) {
	var user api.UserResponse
	_, err := c.doRequest(ctx, http.MethodGet, "/api/v1/auth/me", nil, &user, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+accessToken)
	})
	if err != nil {
		return nil, fmt.Errorf("me request failed: %w", err)
	}
	return &user, nil
}

// RequestPasswordReset запускает сброс пароля; сервер отвечает одинаково для любого email
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/password-reset", api.PasswordResetRequest{Email: email}, nil, nil)
	if err != nil {
		return fmt.Errorf("password reset request failed: %w", err)
	}
	return nil
}

// ConfirmPasswordReset устанавливает новый пароль по токену из письма
func (c *Client) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/password-reset/confirm", api.PasswordResetConfirmRequest{
		Token:    token,
		Password: password,
	}, nil, nil)
	if err != nil {
		return fmt.Errorf("password reset confirm failed: %w", err)
	}
	return nil
}

func (c *Client) authRequest(ctx context.Context, path string, body any, prepare func(*http.Request)) (*AuthResult, error) {
	var resp api.AuthResponse
	httpResp, err := c.doRequest(ctx, http.MethodPost, path, body, &resp, prepare)
	if err != nil {
		return nil, err
	}

	access, ok := strings.CutPrefix(httpResp.Header.Get("Authorization"), "Bearer ")
	if !ok || access == "" {
		return nil, fmt.Errorf("server response has no access token")
	}

	res := &AuthResult{
		User:            resp.User,
		AccessToken:     access,
		AccessExpiresAt: resp.AccessTokenExpiresAt,
	}
	for _, cookie := range httpResp.Cookies() {
		if cookie.Name != c.cookieName || cookie.Value == "" {
			continue
		}
		res.RefreshToken = cookie.Value
		if !cookie.Expires.IsZero() {
			exp := cookie.Expires.UTC()
			res.RefreshExpiresAt = &exp
		}
	}

	return res, nil
}

// doRequest выполняет HTTP запрос. Тело ответа уже прочитано и закрыто.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, prepare func(*http.Request)) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prepare != nil {
		prepare(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp, nil
}

func parseError(status int, body []byte) error {
	se := &StatusError{StatusCode: status}

	if status == http.StatusUnprocessableEntity {
		var vr api.ValidationErrorResponse
		if err := json.Unmarshal(body, &vr); err == nil && len(vr.Fields) > 0 {
			se.Fields = vr.Fields
			return se
		}
	}

	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		se.Message = errResp.Message
		return se
	}

	se.Message = strings.TrimSpace(string(body))
	if se.Message == "" {
		se.Message = http.StatusText(status)
	}
	return se
}
