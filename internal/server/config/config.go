// Package config loads the server configuration from the environment
// and command-line flags. Flags override environment values.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "PROJECTHUB_"

// Blacklist backends
const (
	BlacklistSQLite = "sqlite"
	BlacklistRedis  = "redis"
)

// MinSecretLength is the minimal JWT secret length in bytes
const MinSecretLength = 32

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the server configuration
type Config struct {
	ListenAddr    string `env:"LISTEN_ADDR" envDefault:":8080"`
	DBPath        string `env:"DB_PATH" envDefault:"projecthub.db"`
	JWTSecret     string `env:"JWT_SECRET"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"projecthub"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json"`
	Blacklist     string `env:"BLACKLIST_BACKEND" envDefault:"sqlite"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CookieName    string `env:"REFRESH_COOKIE_NAME" envDefault:"refresh_token"`
	TrustProxy    bool   `env:"TRUST_PROXY" envDefault:"false"`
	CookieSecure  bool   `env:"REFRESH_COOKIE_SECURE" envDefault:"true"`
	ShowVersion   bool

	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"0s"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	OutboxInterval  time.Duration `env:"OUTBOX_INTERVAL" envDefault:"5s"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"10m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	RedisDB                 int `env:"REDIS_DB" envDefault:"0"`
	MaxLoginAttempts        int `env:"MAX_LOGIN_ATTEMPTS" envDefault:"5"`
	ThrottlingWindowMinutes int `env:"THROTTLING_WINDOW_MINUTES" envDefault:"15"`
	ResetTokenTTLMinutes    int `env:"RESET_TOKEN_TTL_MINUTES" envDefault:"15"`
	RateLimit               int `env:"RATE_LIMIT" envDefault:"20"`
	OutboxMaxAttempts       int `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"5"`
}

// Load reads the environment, applies flags from args and validates the result.
// environ == nil means the process environment.
func Load(args []string, environ map[string]string) (*Config, error) {
	cfg := &Config{}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite database")
	fs.StringVar(&cfg.Blacklist, "blacklist", cfg.Blacklist, "Access token blacklist backend: sqlite or redis")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json or text")
	fs.DurationVar(&cfg.AccessTokenTTL, "access-ttl", cfg.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&cfg.RefreshTokenTTL, "refresh-ttl", cfg.RefreshTokenTTL, "Refresh token lifetime, 0 means until revoked")
	fs.IntVar(&cfg.MaxLoginAttempts, "max-login-attempts", cfg.MaxLoginAttempts, "Consecutive failed logins before lockout")
	fs.IntVar(&cfg.ThrottlingWindowMinutes, "throttling-window", cfg.ThrottlingWindowMinutes, "Throttling window in minutes")
	fs.BoolVar(&cfg.TrustProxy, "trust-proxy", cfg.TrustProxy, "Take client IP from X-Forwarded-For / X-Real-IP")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.ShowVersion {
		return cfg, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required values and thresholds
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWTSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("%sJWT_SECRET must be at least %d bytes", EnvPrefix, MinSecretLength))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("access token ttl must be positive"))
	}
	if c.RefreshTokenTTL < 0 {
		errs = append(errs, errors.New("refresh token ttl must not be negative"))
	}
	if c.MaxLoginAttempts <= 0 {
		errs = append(errs, errors.New("max login attempts must be positive"))
	}
	if c.ThrottlingWindowMinutes <= 0 {
		errs = append(errs, errors.New("throttling window must be positive"))
	}
	if c.ResetTokenTTLMinutes <= 0 {
		errs = append(errs, errors.New("reset token ttl must be positive"))
	}
	if c.RateLimit <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate limit and its window must be positive"))
	}
	if c.OutboxInterval <= 0 || c.JanitorInterval <= 0 || c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("background intervals and shutdown timeout must be positive"))
	}
	if c.Blacklist != BlacklistSQLite && c.Blacklist != BlacklistRedis {
		errs = append(errs, fmt.Errorf("unknown blacklist backend %q", c.Blacklist))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ThrottlingWindow returns the throttling window as a duration
func (c *Config) ThrottlingWindow() time.Duration {
	return time.Duration(c.ThrottlingWindowMinutes) * time.Minute
}

// SlogLevel parses LogLevel
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return level, nil
}
