package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HeaderRequestID связывает строку access log с ответом клиенту
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLen = 64

type accessLogKey struct{}

// accessLog is filled while the request travels down the chain.
// RequireAuth records the resolved user here, the logging middleware reads it after.
type accessLog struct {
	requestID string
	userID    int64
}

// RequestIDFrom returns the id assigned by LoggingMiddleware, empty outside of it
func RequestIDFrom(ctx context.Context) string {
	if entry, ok := ctx.Value(accessLogKey{}).(*accessLog); ok {
		return entry.requestID
	}
	return ""
}

// recordUser attaches the authenticated user to the access log entry, if any
func recordUser(ctx context.Context, userID int64) {
	if entry, ok := ctx.Value(accessLogKey{}).(*accessLog); ok {
		entry.userID = userID
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the number of bytes written
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// LoggingMiddleware пишет access log: метод, путь, статус, IP, user_id и request id.
// Токены, пароли и тела запросов не логируются.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			entry := &accessLog{requestID: requestID(r.Header.Get(HeaderRequestID))}
			w.Header().Set(HeaderRequestID, entry.requestID)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), accessLogKey{}, entry)))

			attrs := []slog.Attr{
				slog.String("request_id", entry.requestID),
				slog.String("method", r.Method),
				slog.String("path", sanitizePath(r.URL.Path)),
				slog.String("ip", ClientIP(r)),
				slog.String("user_agent", r.UserAgent()),
				slog.Int("status", wrapped.statusCode),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.Int64("bytes_written", wrapped.written),
			}
			if entry.userID != 0 {
				attrs = append(attrs, slog.Int64("user_id", entry.userID))
			}

			logger.LogAttrs(r.Context(), statusLevel(wrapped.statusCode), "HTTP request", attrs...)
		})
	}
}

// statusLevel maps 5xx to error and 4xx to warn
func statusLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// requestID keeps a client supplied id when it is short printable ASCII, otherwise mints one
func requestID(incoming string) string {
	if incoming == "" || len(incoming) > maxRequestIDLen {
		return uuid.NewString()
	}
	for _, c := range incoming {
		if c <= ' ' || c > '~' {
			return uuid.NewString()
		}
	}
	return incoming
}

// sanitizePath удаляет sensitive части из пути (например, токены в URL)
// /api/v1/auth/reset/TOKEN заменяется на /api/v1/auth/reset/***
func sanitizePath(path string) string {
	if !strings.Contains(path, "/token/") && !strings.Contains(path, "/reset/") {
		return path
	}

	parts := strings.Split(path, "/")
	for i, part := range parts {
		if (part == "token" || part == "reset") && i+1 < len(parts) && parts[i+1] != "" {
			parts[i+1] = "***"
		}
	}
	return strings.Join(parts, "/")
}

// LoggingWithSkip не логирует пути из skipPaths (health checks балансировщика).
// Такие запросы не получают request id.
func LoggingWithSkip(logger *slog.Logger, skipPaths []string) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		logged := LoggingMiddleware(logger)(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			logged.ServeHTTP(w, r)
		})
	}
}
