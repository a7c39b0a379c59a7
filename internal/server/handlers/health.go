package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports storage availability
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger  *slog.Logger
	pingers map[string]Pinger
	version string
}

// NewHealthHandler создает новый handler для health check.
// pingers are checked by name on every request.
func NewHealthHandler(logger *slog.Logger, version string, pingers map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		pingers: pingers,
		version: version,
	}
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Checks  map[string]string `json:"checks,omitempty"`
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
}

// Health обрабатывает GET /api/v1/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
	}
	status := http.StatusOK

	if len(h.pingers) > 0 {
		resp.Checks = make(map[string]string, len(h.pingers))
	}
	for name, p := range h.pingers {
		if err := p.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", slog.String("check", name), slog.Any("error", err))
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	sendJSON(h.logger, w, resp, status)
}
