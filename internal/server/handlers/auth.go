package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/projecthub/internal/models"
	"github.com/iudanet/projecthub/internal/server/auth"
	"github.com/iudanet/projecthub/internal/validation"
	"github.com/iudanet/projecthub/pkg/api"
)

// AuthFlow is the auth boundary the handlers are written against
type AuthFlow interface {
	Register(ctx context.Context, reg auth.Registration, rememberMe bool) (*auth.Tokens, error)
	Login(ctx context.Context, ra auth.RequestAuth, creds auth.Credentials, rememberMe bool) (*auth.Tokens, error)
	Logout(ctx context.Context, ra auth.RequestAuth) error
	Refresh(ctx context.Context, ra auth.RequestAuth) (*auth.Tokens, error)
	AuthenticatedUser(ctx context.Context, ra auth.RequestAuth) (*models.User, error)
	PasswordResetStart(ctx context.Context, email string) error
	PasswordResetFinish(ctx context.Context, token, newPassword string) error
}

// CookieConfig describes the refresh token cookie
type CookieConfig struct {
	Name   string
	Path   string
	Secure bool
}

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	logger *slog.Logger
	flow   AuthFlow
	cookie CookieConfig
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, flow AuthFlow, cookie CookieConfig) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = api.RefreshCookieName
	}
	if cookie.Path == "" {
		cookie.Path = api.AuthCookiePath
	}
	return &AuthHandler{
		logger: logger,
		flow:   flow,
		cookie: cookie,
	}
}

// Register обрабатывает POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	email := validation.NormalizeEmail(req.Email)
	errs := validation.Errors{}
	errs.Check("email", validation.ValidateEmail(email))
	errs.Check("password", validation.ValidatePassword(req.Password))
	errs.Check("name", validation.ValidateName(req.Name))
	if !errs.Empty() {
		h.sendValidation(w, errs)
		return
	}

	tokens, err := h.flow.Register(ctx, auth.Registration{
		Email:    email,
		Password: req.Password,
		Name:     req.Name,
	}, req.RememberMe)
	if err != nil {
		h.sendAuthError(ctx, w, err)
		return
	}

	h.writeTokens(w, tokens, http.StatusCreated)
}

// Login обрабатывает POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	email := validation.NormalizeEmail(req.Email)
	errs := validation.Errors{}
	errs.Check("email", validation.ValidateEmail(email))
	if req.Password == "" {
		errs.Add("password", "password cannot be empty")
	}
	if !errs.Empty() {
		h.sendValidation(w, errs)
		return
	}

	tokens, err := h.flow.Login(ctx, auth.RequestAuthFrom(ctx), auth.Credentials{
		Email:    email,
		Password: req.Password,
	}, req.RememberMe)
	if err != nil {
		h.sendAuthError(ctx, w, err)
		return
	}

	h.writeTokens(w, tokens, http.StatusOK)
}

// Refresh обрабатывает POST /api/v1/auth/refresh
// Refresh token приходит в HttpOnly cookie
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokens, err := h.flow.Refresh(ctx, auth.RequestAuthFrom(ctx))
	if err != nil {
		if errors.Is(err, auth.ErrNotAuthenticated) {
			h.clearRefreshCookie(w)
		}
		h.sendAuthError(ctx, w, err)
		return
	}

	h.writeTokens(w, tokens, http.StatusOK)
}

// Logout обрабатывает POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.flow.Logout(ctx, auth.RequestAuthFrom(ctx)); err != nil {
		h.sendAuthError(ctx, w, err)
		return
	}

	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me обрабатывает GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := auth.UserFrom(ctx)
	if !ok {
		var err error
		user, err = h.flow.AuthenticatedUser(ctx, auth.RequestAuthFrom(ctx))
		if err != nil {
			h.sendAuthError(ctx, w, err)
			return
		}
	}

	h.sendJSON(w, toUserResponse(user), http.StatusOK)
}

// PasswordResetStart обрабатывает POST /api/v1/auth/password-reset
// Всегда отвечает 204, чтобы не раскрывать существование аккаунта
func (h *AuthHandler) PasswordResetStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.PasswordResetRequest
	if !h.decode(w, r, &req) {
		return
	}

	email := validation.NormalizeEmail(req.Email)
	if err := validation.ValidateEmail(email); err != nil {
		errs := validation.Errors{}
		errs.Add("email", err.Error())
		h.sendValidation(w, errs)
		return
	}

	if err := h.flow.PasswordResetStart(ctx, email); err != nil {
		h.logger.ErrorContext(ctx, "password reset start failed", slog.Any("error", err))
	}

	w.WriteHeader(http.StatusNoContent)
}

// PasswordResetConfirm обрабатывает POST /api/v1/auth/password-reset/confirm
func (h *AuthHandler) PasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.PasswordResetConfirmRequest
	if !h.decode(w, r, &req) {
		return
	}

	errs := validation.Errors{}
	if req.Token == "" {
		errs.Add("token", "token cannot be empty")
	}
	errs.Check("password", validation.ValidatePassword(req.Password))
	if !errs.Empty() {
		h.sendValidation(w, errs)
		return
	}

	if err := h.flow.PasswordResetFinish(ctx, req.Token, req.Password); err != nil {
		h.sendAuthError(ctx, w, err)
		return
	}

	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) writeTokens(w http.ResponseWriter, tokens *auth.Tokens, status int) {
	w.Header().Set("Authorization", "Bearer "+tokens.AccessToken)
	w.Header().Set(api.HeaderAccessExpires, tokens.AccessExpiresAt.UTC().Format(time.RFC3339))

	if tokens.RefreshToken != "" {
		cookie := &http.Cookie{
			Name:     h.cookie.Name,
			Value:    tokens.RefreshToken,
			Path:     h.cookie.Path,
			HttpOnly: true,
			Secure:   h.cookie.Secure,
			SameSite: http.SameSiteStrictMode,
		}
		if tokens.RefreshExpiresAt != nil {
			cookie.Expires = tokens.RefreshExpiresAt.UTC()
		}
		http.SetCookie(w, cookie)
	}

	h.sendJSON(w, api.AuthResponse{
		User:                 toUserResponse(tokens.User),
		AccessTokenExpiresAt: tokens.AccessExpiresAt.UTC(),
	}, status)
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     h.cookie.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// sendAuthError maps auth errors onto HTTP statuses
func (h *AuthHandler) sendAuthError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		h.logger.InfoContext(ctx, "request not authenticated", slog.Any("error", err))
		sendError(h.logger, w, "authentication failed", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrEmailTaken):
		sendError(h.logger, w, "email already registered", http.StatusConflict)
	case errors.Is(err, auth.ErrModelNotFound):
		sendError(h.logger, w, "not found", http.StatusNotFound)
	case errors.Is(err, auth.ErrInvalidAuthConfiguration):
		h.logger.ErrorContext(ctx, "auth is misconfigured", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
	default:
		h.logger.ErrorContext(ctx, "auth request failed", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *AuthHandler) sendValidation(w http.ResponseWriter, errs validation.Errors) {
	h.sendJSON(w, api.ValidationErrorResponse{
		Error:  http.StatusText(http.StatusUnprocessableEntity),
		Fields: errs,
	}, http.StatusUnprocessableEntity)
}

func (h *AuthHandler) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	sendJSON(h.logger, w, data, statusCode)
}

func toUserResponse(u *models.User) api.UserResponse {
	return api.UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
}
