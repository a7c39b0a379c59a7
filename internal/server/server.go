// Package server собирает HTTP API: хранилища, сервисы авторизации,
// маршруты, middleware и фоновые циклы (outbox, janitor).
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	goredis "github.com/redis/go-redis/v9"

	"github.com/iudanet/projecthub/internal/clock"
	"github.com/iudanet/projecthub/internal/crypto"
	"github.com/iudanet/projecthub/internal/server/auth"
	"github.com/iudanet/projecthub/internal/server/config"
	"github.com/iudanet/projecthub/internal/server/handlers"
	"github.com/iudanet/projecthub/internal/server/jwt"
	"github.com/iudanet/projecthub/internal/server/ledger"
	"github.com/iudanet/projecthub/internal/server/mailer"
	"github.com/iudanet/projecthub/internal/server/middleware"
	"github.com/iudanet/projecthub/internal/server/storage"
	"github.com/iudanet/projecthub/internal/server/storage/redis"
	"github.com/iudanet/projecthub/internal/server/storage/sqlite"
	"github.com/iudanet/projecthub/internal/server/throttle"
)

// Маршруты API
const (
	RouteHealth              = "/api/v1/health"
	RouteRegister            = "/api/v1/auth/register"
	RouteLogin               = "/api/v1/auth/login"
	RouteRefresh             = "/api/v1/auth/refresh"
	RouteLogout              = "/api/v1/auth/logout"
	RouteMe                  = "/api/v1/auth/me"
	RoutePasswordReset       = "/api/v1/auth/password-reset"
	RoutePasswordResetFinish = "/api/v1/auth/password-reset/confirm"
)

// Options содержит зависимости, которые удобно подменять в тестах
type Options struct {
	Clock clock.Clock
	// Sender доставляет письма из outbox, по умолчанию LogSender
	Sender mailer.Sender
	// Hasher по умолчанию argon2id с crypto.DefaultParams
	Hasher  auth.PasswordHasher
	Version string
}

// Server is the assembled API server
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	clock      clock.Clock
	store      *sqlite.Storage
	redis      *goredis.Client
	pingers    map[string]handlers.Pinger
	blacklist  storage.BlacklistStorage
	flow       *auth.Flow
	dispatcher *mailer.Dispatcher
	limiter    *middleware.PathRateLimiter
	handler    http.Handler
}

// New opens storage and wires every component. Close releases them.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Server, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Sender == nil {
		opts.Sender = mailer.NewLogSender(logger)
	}

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		clock:  opts.Clock,
		store:  store,
	}

	if err := s.wire(ctx, opts); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Server) wire(ctx context.Context, opts Options) error {
	cfg := s.cfg
	s.pingers = map[string]handlers.Pinger{"sqlite": s.store}

	switch cfg.Blacklist {
	case config.BlacklistRedis:
		client, err := redis.Connect(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("failed to connect blacklist: %w", err)
		}
		rb := redis.NewBlacklist(client)
		s.redis = client
		s.blacklist = rb
		s.pingers["redis"] = rb
	default:
		s.blacklist = s.store
	}

	hasher := opts.Hasher
	if hasher == nil {
		h, err := crypto.NewPasswordHasher(crypto.DefaultParams())
		if err != nil {
			return fmt.Errorf("failed to create password hasher: %w", err)
		}
		hasher = h
	}

	signer, err := jwt.NewService([]byte(cfg.JWTSecret), cfg.JWTIssuer, s.clock)
	if err != nil {
		return fmt.Errorf("failed to create token signer: %w", err)
	}

	service, err := auth.NewService(auth.ServiceDeps{
		Users:     s.store,
		Tokens:    s.store,
		Blacklist: s.blacklist,
		Signer:    signer,
		Hasher:    hasher,
		Clock:     s.clock,
		Logger:    s.logger,
	}, auth.Config{
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create auth service: %w", err)
	}

	attempts := ledger.New(s.store)
	engine, err := throttle.New(attempts, s.clock, throttle.Config{
		MaxAttempts: cfg.MaxLoginAttempts,
		Window:      cfg.ThrottlingWindow(),
	})
	if err != nil {
		return fmt.Errorf("failed to create login throttle: %w", err)
	}

	s.flow, err = auth.NewFlow(auth.FlowDeps{
		Service:         service,
		Throttle:        engine,
		Ledger:          attempts,
		Users:           s.store,
		Resets:          s.store,
		Mail:            mailer.NewOutboxQueue(s.store, s.clock),
		Clock:           s.clock,
		Logger:          s.logger,
		ResetTTLMinutes: cfg.ResetTokenTTLMinutes,
	})
	if err != nil {
		return fmt.Errorf("failed to create auth flow: %w", err)
	}

	s.dispatcher = mailer.NewDispatcher(s.store, opts.Sender, s.clock, mailer.DispatcherConfig{
		Interval:    cfg.OutboxInterval,
		MaxAttempts: cfg.OutboxMaxAttempts,
	}, s.logger)

	s.handler = s.routes(opts.Version)

	return nil
}

func (s *Server) routes(version string) http.Handler {
	authHandler := handlers.NewAuthHandler(s.logger, s.flow, handlers.CookieConfig{
		Name:   s.cfg.CookieName,
		Secure: s.cfg.CookieSecure,
	})

	healthHandler := handlers.NewHealthHandler(s.logger, version, s.pingers)

	requireAuth := middleware.RequireAuth(s.logger, s.flow)

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+RouteHealth, healthHandler.Health)
	mux.HandleFunc("POST "+RouteRegister, authHandler.Register)
	mux.HandleFunc("POST "+RouteLogin, authHandler.Login)
	mux.HandleFunc("POST "+RouteRefresh, authHandler.Refresh)
	mux.Handle("POST "+RouteLogout, requireAuth(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET "+RouteMe, requireAuth(http.HandlerFunc(authHandler.Me)))
	mux.HandleFunc("POST "+RoutePasswordReset, authHandler.PasswordResetStart)
	mux.HandleFunc("POST "+RoutePasswordResetFinish, authHandler.PasswordResetConfirm)

	// лимиты только на анонимные эндпоинты, которые можно перебирать
	s.limiter = middleware.NewPathRateLimiter([]middleware.PathRateLimit{
		{Path: RouteLogin, Rate: s.cfg.RateLimit, Window: s.cfg.RateLimitWindow},
		{Path: RouteRegister, Rate: s.cfg.RateLimit, Window: s.cfg.RateLimitWindow},
		{Path: RoutePasswordReset, Rate: s.cfg.RateLimit, Window: s.cfg.RateLimitWindow},
		{Path: RoutePasswordResetFinish, Rate: s.cfg.RateLimit, Window: s.cfg.RateLimitWindow},
	}, s.logger)

	var h http.Handler = mux
	h = middleware.RequestAuthMiddleware(s.cfg.CookieName)(h)
	h = s.limiter.Middleware(h)
	// recovery внутри логирования: паника попадает в access log как 500 со своим request id
	h = middleware.RecoveryMiddleware(s.logger)(h)
	h = middleware.LoggingWithSkip(s.logger, []string{RouteHealth})(h)
	if s.cfg.TrustProxy {
		// X-Forwarded-For / X-Real-IP переписывают RemoteAddr до всех остальных слоев
		h = gorillahandlers.ProxyHeaders(h)
	}

	return h
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves HTTP and the background loops until ctx is canceled,
// then shuts down gracefully within cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	var wg sync.WaitGroup
	wg.Go(func() { s.dispatcher.Run(bgCtx) })
	wg.Go(func() { s.runJanitor(bgCtx) })

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", slog.String("addr", s.cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("http shutdown failed: %w", err))
	}

	stopBackground()
	wg.Wait()

	return runErr
}

// runJanitor периодически удаляет записи blacklist, чьи токены истекли сами
func (s *Server) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PurgeBlacklist(ctx)
		}
	}
}

// PurgeBlacklist runs one janitor pass
func (s *Server) PurgeBlacklist(ctx context.Context) {
	n, err := s.blacklist.PurgeExpiredBlacklist(ctx, s.clock.Now())
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to purge blacklist", slog.Any("error", err))
		return
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "Purged expired blacklist entries", slog.Int("count", n))
	}
}

// DispatchEmails drains one outbox batch
func (s *Server) DispatchEmails(ctx context.Context) (int, error) {
	return s.dispatcher.DispatchOnce(ctx)
}

// Close releases storage connections
func (s *Server) Close() error {
	var errs []error
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
