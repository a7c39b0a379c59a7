package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/iudanet/projecthub/internal/models"
	"github.com/iudanet/projecthub/internal/server/auth"
	"github.com/iudanet/projecthub/pkg/api"
)

// UserResolver resolves the principal of a request
type UserResolver interface {
	AuthenticatedUser(ctx context.Context, ra auth.RequestAuth) (*models.User, error)
}

// RequestAuthMiddleware собирает auth.RequestAuth один раз на запрос:
// access token из заголовка Authorization, refresh token из cookie, IP клиента.
// Запрос не отклоняется; это делает RequireAuth.
func RequestAuthMiddleware(cookieName string) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = api.RefreshCookieName
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ra := auth.RequestAuth{
				AccessToken: bearerToken(r.Header.Get("Authorization")),
				IP:          ClientIP(r),
			}
			if c, err := r.Cookie(cookieName); err == nil {
				ra.RefreshToken = c.Value
			}

			next.ServeHTTP(w, r.WithContext(auth.WithRequestAuth(r.Context(), ra)))
		})
	}
}

// RequireAuth rejects requests whose access token does not resolve to a user
// and stores the user in the request context
func RequireAuth(logger *slog.Logger, resolver UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			user, err := resolver.AuthenticatedUser(ctx, auth.RequestAuthFrom(ctx))
			if err != nil {
				if errors.Is(err, auth.ErrNotAuthenticated) {
					logger.DebugContext(ctx, "Request not authenticated", slog.Any("error", err))
					writeError(w, "authentication required", http.StatusUnauthorized)
					return
				}
				logger.ErrorContext(ctx, "Failed to resolve user", slog.Any("error", err))
				writeError(w, "internal server error", http.StatusInternalServerError)
				return
			}

			logger.DebugContext(ctx, "User authenticated", slog.Int64("user_id", user.ID))
			recordUser(ctx, user.ID)

			next.ServeHTTP(w, r.WithContext(auth.WithUser(ctx, user)))
		})
	}
}

// bearerToken extracts the token from "Bearer <token>", empty if absent or malformed
func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ClientIP returns the host part of RemoteAddr. Behind a proxy RemoteAddr is
// expected to be rewritten by handlers.ProxyHeaders first.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
