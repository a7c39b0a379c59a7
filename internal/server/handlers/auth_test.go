package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/projecthub/internal/models"
	"github.com/iudanet/projecthub/internal/server/auth"
	"github.com/iudanet/projecthub/pkg/api"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockFlow is a function-field fake of AuthFlow, unset methods fail the test
type mockFlow struct {
	register      func(ctx context.Context, reg auth.Registration, rememberMe bool) (*auth.Tokens, error)
	login         func(ctx context.Context, ra auth.RequestAuth, creds auth.Credentials, rememberMe bool) (*auth.Tokens, error)
	logout        func(ctx context.Context, ra auth.RequestAuth) error
	refresh       func(ctx context.Context, ra auth.RequestAuth) (*auth.Tokens, error)
	authenticated func(ctx context.Context, ra auth.RequestAuth) (*models.User, error)
	resetStart    func(ctx context.Context, email string) error
	resetFinish   func(ctx context.Context, token, newPassword string) error
}

var errUnexpectedCall = errors.New("unexpected call")

func (m *mockFlow) Register(ctx context.Context, reg auth.Registration, rememberMe bool) (*auth.Tokens, error) {
	if m.register == nil {
		return nil, errUnexpectedCall
	}
	return m.register(ctx, reg, rememberMe)
}

func (m *mockFlow) Login(ctx context.Context, ra auth.RequestAuth, creds auth.Credentials, rememberMe bool) (*auth.Tokens, error) {
	if m.login == nil {
		return nil, errUnexpectedCall
	}
	return m.login(ctx, ra, creds, rememberMe)
}

func (m *mockFlow) Logout(ctx context.Context, ra auth.RequestAuth) error {
	if m.logout == nil {
		return errUnexpectedCall
	}
	return m.logout(ctx, ra)
}

func (m *mockFlow) Refresh(ctx context.Context, ra auth.RequestAuth) (*auth.Tokens, error) {
	if m.refresh == nil {
		return nil, errUnexpectedCall
	}
	return m.refresh(ctx, ra)
}

func (m *mockFlow) AuthenticatedUser(ctx context.Context, ra auth.RequestAuth) (*models.User, error) {
	if m.authenticated == nil {
		return nil, errUnexpectedCall
	}
	return m.authenticated(ctx, ra)
}

func (m *mockFlow) PasswordResetStart(ctx context.Context, email string) error {
	if m.resetStart == nil {
		return errUnexpectedCall
	}
	return m.resetStart(ctx, email)
}

func (m *mockFlow) PasswordResetFinish(ctx context.Context, token, newPassword string) error {
	if m.resetFinish == nil {
		return errUnexpectedCall
	}
	return m.resetFinish(ctx, token, newPassword)
}

var (
	testNow  = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	testUser = &models.User{ID: 42, Email: "ann@example.com", Name: "Ann", CreatedAt: testNow.Add(-time.Hour)}
)

func testTokens(withRefresh bool) *auth.Tokens {
	t := &auth.Tokens{
		User:            testUser,
		AccessToken:     "access.jwt.value",
		AccessExpiresAt: testNow.Add(15 * time.Minute),
	}
	if withRefresh {
		exp := testNow.Add(30 * 24 * time.Hour)
		t.RefreshToken = "refresh.jwt.value"
		t.RefreshExpiresAt = &exp
	}
	return t
}

func newTestHandler(flow AuthFlow) *AuthHandler {
	return NewAuthHandler(setupTestLogger(), flow, CookieConfig{Secure: true})
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	raw, ok := body.(string)
	if !ok {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		raw = string(b)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(raw)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthHandler_Register_Success(t *testing.T) {
	var got auth.Registration
	flow := &mockFlow{
		register: func(ctx context.Context, reg auth.Registration, rememberMe bool) (*auth.Tokens, error) {
			got = reg
			assert.True(t, rememberMe)
			return testTokens(true), nil
		},
	}

	w := httptest.NewRecorder()
	newTestHandler(flow).Register(w, jsonRequest(t, http.MethodPost, "/api/v1/auth/register", api.RegisterRequest{
		Email:      "  Ann@Example.COM ",
		Password:   "correct horse battery",
		Name:       "Ann",
		RememberMe: true,
	}))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "ann@example.com", got.Email, "email should be normalized before the flow")
	assert.Equal(t, "Bearer access.jwt.value", w.Header().Get("Authorization"))
	assert.Equal(t, testNow.Add(15*time.Minute).Format(time.RFC3339), w.Header().Get(api.HeaderAccessExpires))

	cookie := findCookie(w, api.RefreshCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, "refresh.jwt.value", cookie.Value)
	assert.Equal(t, api.AuthCookiePath, cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	var resp api.AuthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, int64(42), resp.User.ID)
	assert.Equal(t, "ann@example.com", resp.User.Email)
	assert.NotContains(t, w.Body.String(), "access.jwt.value")
}

func TestAuthHandler_Register_Validation(t *testing.T) {
	w := httptest.NewRecorder()
	newTestHandler(&mockFlow{}).Register(w, jsonRequest(t, http.MethodPost, "/api/v1/auth/register", api.RegisterRequest{
		Email:    "not-an-email",
		Password: "short",
	}))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp api.ValidationErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp.Fields, "email")
	assert.Contains(t, resp.Fields, "password")
	assert.Contains(t, resp.Fields, "name")
}

func TestAuthHandler_Register_EmailTaken(t *testing.T) {
	flow := &mockFlow{
		register: func(ctx context.Context, reg auth.Registration, rememberMe bool) (*auth.Tokens, error) {
			return nil, fmt.Errorf("register: %w", auth.ErrEmailTaken)
		},
	}

	w := httptest.NewRecorder()
	newTestHandler(flow).Register(w, jsonRequest(t, http.MethodPost, "/api/v1/auth/register", api.RegisterRequest{
		Email:    "ann@example.com",
		Password: "correct horse battery",
		Name:     "Ann",
	}))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAuthHandler_InvalidJSON(t *testing.T) {
	h := newTestHandler(&mockFlow{})

	for name, fn := range map[string]http.HandlerFunc{
		"register":      h.Register,
		"login":         h.Login,
		"reset":         h.PasswordResetStart,
		"reset confirm": h.PasswordResetConfirm,
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			fn(w, jsonRequest(t, http.MethodPost, "/api/v1/auth/x", "{invalid json"))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		flowErr    error
		name       string
		rememberMe bool
		wantStatus int
		wantCookie bool
		wantBearer bool
	}{
		{name: "remember me", rememberMe: true, wantStatus: http.StatusOK, wantCookie: true, wantBearer: true},
		{name: "session only", wantStatus: http.StatusOK, wantBearer: true},
		{name: "bad credentials", flowErr: auth.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized},
		{name: "throttled", flowErr: auth.ErrLoginThrottled, wantStatus: http.StatusUnauthorized},
		{name: "misconfigured", flowErr: auth.ErrInvalidAuthConfiguration, wantStatus: http.StatusInternalServerError},
		{name: "storage failure", flowErr: errors.New("disk I/O error"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &mockFlow{
				login: func(ctx context.Context, ra auth.RequestAuth, creds auth.Credentials, rememberMe bool) (*auth.Tokens, error) {
					assert.Equal(t, "203.0.113.9", ra.IP)
					assert.Equal(t, "ann@example.com", creds.Email)
					assert.Equal(t, tt.rememberMe, rememberMe)
					if tt.flowErr != nil {
						return nil, tt.flowErr
					}
					return testTokens(rememberMe), nil
				},
			}

			req := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", api.LoginRequest{
				Email:      "ann@example.com",
				Password:   "whatever",
				RememberMe: tt.rememberMe,
			})
			req = req.WithContext(auth.WithRequestAuth(req.Context(), auth.RequestAuth{IP: "203.0.113.9"}))

			w := httptest.NewRecorder()
			newTestHandler(flow).Login(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCookie, findCookie(w, api.RefreshCookieName) != nil)
			assert.Equal(t, tt.wantBearer, w.Header().Get("Authorization") != "")

			if tt.wantStatus == http.StatusUnauthorized {
				var resp api.ErrorResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
				// throttling и неверный пароль неотличимы снаружи
				assert.Equal(t, "authentication failed", resp.Message)
			}
		})
	}
}

func TestAuthHandler_Login_Validation(t *testing.T) {
	w := httptest.NewRecorder()
	newTestHandler(&mockFlow{}).Login(w, jsonRequest(t, http.MethodPost, "/api/v1/auth/login", api.LoginRequest{
		Email: "ann@example.com",
	}))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "password")
}

func TestAuthHandler_Refresh(t *testing.T) {
	t.Run("success keeps cookie untouched", func(t *testing.T) {
		flow := &mockFlow{
			refresh: func(ctx context.Context, ra auth.RequestAuth) (*auth.Tokens, error) {
				assert.Equal(t, "refresh.jwt.value", ra.RefreshToken)
				return testTokens(false), nil
			},
		}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
		req = req.WithContext(auth.WithRequestAuth(req.Context(), auth.RequestAuth{RefreshToken: "refresh.jwt.value"}))

		w := httptest.NewRecorder()
		newTestHandler(flow).Refresh(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Bearer access.jwt.value", w.Header().Get("Authorization"))
		assert.Nil(t, findCookie(w, api.RefreshCookieName))
	})

	t.Run("revoked clears cookie", func(t *testing.T) {
		flow := &mockFlow{
			refresh: func(ctx context.Context, ra auth.RequestAuth) (*auth.Tokens, error) {
				return nil, auth.ErrNotAuthenticated
			},
		}
		w := httptest.NewRecorder()
		newTestHandler(flow).Refresh(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		cookie := findCookie(w, api.RefreshCookieName)
		require.NotNil(t, cookie)
		assert.Empty(t, cookie.Value)
		assert.Equal(t, -1, cookie.MaxAge)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	called := false
	flow := &mockFlow{
		logout: func(ctx context.Context, ra auth.RequestAuth) error {
			called = true
			assert.Equal(t, "access.jwt.value", ra.AccessToken)
			return nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req = req.WithContext(auth.WithRequestAuth(req.Context(), auth.RequestAuth{AccessToken: "access.jwt.value"}))

	w := httptest.NewRecorder()
	newTestHandler(flow).Logout(w, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, w.Code)
	cookie := findCookie(w, api.RefreshCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestAuthHandler_Logout_RevokedRefreshIsNotFound(t *testing.T) {
	flow := &mockFlow{
		logout: func(ctx context.Context, ra auth.RequestAuth) error {
			return fmt.Errorf("revoke: %w", auth.ErrModelNotFound)
		},
	}
	w := httptest.NewRecorder()
	newTestHandler(flow).Logout(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthHandler_Me(t *testing.T) {
	t.Run("user from context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req = req.WithContext(auth.WithUser(req.Context(), testUser))

		w := httptest.NewRecorder()
		newTestHandler(&mockFlow{}).Me(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp api.UserResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, testUser.Email, resp.Email)
		assert.Equal(t, testUser.Name, resp.Name)
	})

	t.Run("resolved through flow", func(t *testing.T) {
		flow := &mockFlow{
			authenticated: func(ctx context.Context, ra auth.RequestAuth) (*models.User, error) {
				return nil, auth.ErrNotAuthenticated
			},
		}
		w := httptest.NewRecorder()
		newTestHandler(flow).Me(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthHandler_PasswordResetStart_AlwaysNoContent(t *testing.T) {
	for name, flowErr := range map[string]error{
		"queued":        nil,
		"queue failure": errors.New("outbox unavailable"),
	} {
		t.Run(name, func(t *testing.T) {
			var gotEmail string
			flow := &mockFlow{
				resetStart: func(ctx context.Context, email string) error {
					gotEmail = email
					return flowErr
				},
			}

			w := httptest.NewRecorder()
			newTestHandler(flow).PasswordResetStart(w, jsonRequest(t, http.MethodPost, "/api/v1/auth/password-reset",
				api.PasswordResetRequest{Email: "Ann@Example.com"}))

			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, "ann@example.com", gotEmail)
			assert.Empty(t, w.Body.String())
		})
	}
}

func TestAuthHandler_PasswordResetStart_Validation(t *testing.T) {
	w := httptest.NewRecorder()
	newTestHandler(&mockFlow{}).PasswordResetStart(w, jsonRequest(t, http.MethodPost, "/api/v1/auth/password-reset",
		api.PasswordResetRequest{Email: "nope"}))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAuthHandler_PasswordResetConfirm(t *testing.T) {
	tests := []struct {
		flowErr    error
		name       string
		req        api.PasswordResetConfirmRequest
		wantStatus int
	}{
		{name: "success", req: api.PasswordResetConfirmRequest{Token: "reset.jwt", Password: "brand new password"}, wantStatus: http.StatusNoContent},
		{name: "used token", req: api.PasswordResetConfirmRequest{Token: "reset.jwt", Password: "brand new password"}, flowErr: auth.ErrNotAuthenticated, wantStatus: http.StatusUnauthorized},
		{name: "missing token", req: api.PasswordResetConfirmRequest{Password: "brand new password"}, wantStatus: http.StatusUnprocessableEntity},
		{name: "weak password", req: api.PasswordResetConfirmRequest{Token: "reset.jwt", Password: "123"}, wantStatus: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &mockFlow{
				resetFinish: func(ctx context.Context, token, newPassword string) error {
					assert.Equal(t, tt.req.Token, token)
					assert.Equal(t, tt.req.Password, newPassword)
					return tt.flowErr
				},
			}

			w := httptest.NewRecorder()
			newTestHandler(flow).PasswordResetConfirm(w, jsonRequest(t, http.MethodPost, "/api/v1/auth/password-reset/confirm", tt.req))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusNoContent {
				require.NotNil(t, findCookie(w, api.RefreshCookieName))
			}
		})
	}
}

func TestAuthHandler_BodyTooLarge(t *testing.T) {
	big := `{"email":"` + strings.Repeat("a", maxBodyBytes) + `"}`

	w := httptest.NewRecorder()
	newTestHandler(&mockFlow{}).Login(w, jsonRequest(t, http.MethodPost, "/api/v1/auth/login", big))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNewAuthHandler_CookieDefaults(t *testing.T) {
	h := NewAuthHandler(setupTestLogger(), &mockFlow{}, CookieConfig{})

	assert.Equal(t, api.RefreshCookieName, h.cookie.Name)
	assert.Equal(t, api.AuthCookiePath, h.cookie.Path)
	assert.False(t, h.cookie.Secure)
}
