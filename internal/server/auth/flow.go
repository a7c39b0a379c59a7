package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/iudanet/projecthub/internal/clock"
	"github.com/iudanet/projecthub/internal/crypto"
	"github.com/iudanet/projecthub/internal/models"
	"github.com/iudanet/projecthub/internal/server/mailer"
	"github.com/iudanet/projecthub/internal/server/storage"
	"github.com/iudanet/projecthub/internal/validation"
)

// DefaultResetTTLMinutes is the lifetime of password reset tokens
const DefaultResetTTLMinutes = 15

// LoginThrottle decides whether a login attempt must be rejected
type LoginThrottle interface {
	IsLoginBlocked(ctx context.Context, ip, identifier string) (bool, error)
}

// AttemptRecorder appends login attempts to the ledger
type AttemptRecorder interface {
	Record(ctx context.Context, ip, identifier string, attemptedAt time.Time, success bool) (*models.LoginAttempt, error)
}

// Registration is a validated sign-up request
type Registration struct {
	Email    string
	Password string
	Name     string
}

// FlowDeps are the collaborators of Flow
type FlowDeps struct {
	Service  *Service
	Throttle LoginThrottle
	Ledger   AttemptRecorder
	Users    storage.UserStorage
	Resets   storage.ResetTokenStorage
	Mail     mailer.Queue
	Clock    clock.Clock
	Logger   *slog.Logger
	// ResetTTLMinutes defaults to DefaultResetTTLMinutes
	ResetTTLMinutes int
}

// Flow is the boundary used by HTTP handlers. It runs throttling before
// credential checks and records every login outcome in the ledger.
type Flow struct {
	service  *Service
	throttle LoginThrottle
	ledger   AttemptRecorder
	users    storage.UserStorage
	resets   storage.ResetTokenStorage
	mail     mailer.Queue
	clock    clock.Clock
	logger   *slog.Logger
	resetTTL int
}

// NewFlow creates the auth flow orchestrator
func NewFlow(deps FlowDeps) (*Flow, error) {
	if deps.Service == nil || deps.Throttle == nil || deps.Ledger == nil || deps.Users == nil {
		return nil, fmt.Errorf("%w: service, throttle, ledger and users are required", ErrInvalidAuthConfiguration)
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ResetTTLMinutes <= 0 {
		deps.ResetTTLMinutes = DefaultResetTTLMinutes
	}

	return &Flow{
		service:  deps.Service,
		throttle: deps.Throttle,
		ledger:   deps.Ledger,
		users:    deps.Users,
		resets:   deps.Resets,
		mail:     deps.Mail,
		clock:    deps.Clock,
		logger:   deps.Logger,
		resetTTL: deps.ResetTTLMinutes,
	}, nil
}

// Login checks the throttle, verifies credentials and records the outcome.
// A throttled attempt is recorded as a failure and never reaches credential checks.
// Any attempt that ends without tokens, internal errors included, is recorded as a failure.
func (f *Flow) Login(ctx context.Context, ra RequestAuth, creds Credentials, rememberMe bool) (*Tokens, error) {
	identifier := validation.NormalizeEmail(creds.Email)

	blocked, err := f.throttle.IsLoginBlocked(ctx, ra.IP, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to check login throttle: %w", err)
	}
	if blocked {
		f.logger.WarnContext(ctx, "Login throttled",
			slog.String("ip", ra.IP),
			slog.String("identifier", identifier),
		)
		f.recordAttempt(ctx, ra.IP, identifier, false)
		return nil, ErrLoginThrottled
	}

	tokens, err := f.service.Login(ctx, Credentials{Email: identifier, Password: creds.Password}, rememberMe)
	switch {
	case err == nil:
		f.recordAttempt(ctx, ra.IP, identifier, true)
		f.logger.InfoContext(ctx, "User logged in",
			slog.Int64("user_id", tokens.User.ID),
			slog.Bool("remember_me", rememberMe),
		)
		return tokens, nil
	case errors.Is(err, ErrNotAuthenticated):
		f.recordAttempt(ctx, ra.IP, identifier, false)
		f.logger.InfoContext(ctx, "Login failed",
			slog.String("ip", ra.IP),
			slog.String("identifier", identifier),
		)
		return nil, err
	default:
		// внутренняя ошибка тоже попытка входа: без токенов это неудача
		f.recordAttempt(ctx, ra.IP, identifier, false)
		f.logger.ErrorContext(ctx, "Login failed with internal error",
			slog.String("ip", ra.IP),
			slog.String("identifier", identifier),
			slog.Any("error", err),
		)
		return nil, err
	}
}

// recordAttempt never fails the surrounding flow
func (f *Flow) recordAttempt(ctx context.Context, ip, identifier string, success bool) {
	if _, err := f.ledger.Record(ctx, ip, identifier, f.clock.Now(), success); err != nil {
		f.logger.WarnContext(ctx, "Failed to record login attempt",
			slog.String("ip", ip),
			slog.String("identifier", identifier),
			slog.Bool("success", success),
			slog.Any("error", err),
		)
	}
}

// Register creates a user and issues tokens
func (f *Flow) Register(ctx context.Context, reg Registration, rememberMe bool) (*Tokens, error) {
	hash, err := f.service.HashPassword(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := f.clock.Now()
	user := &models.User{
		Email:        validation.NormalizeEmail(reg.Email),
		Name:         reg.Name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := f.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	f.logger.InfoContext(ctx, "User registered", slog.Int64("user_id", user.ID))

	return f.service.IssueTokens(ctx, user, rememberMe)
}

// Logout passes through to the service
func (f *Flow) Logout(ctx context.Context, ra RequestAuth) error {
	return f.service.Logout(ctx, ra)
}

// Refresh passes through to the service
func (f *Flow) Refresh(ctx context.Context, ra RequestAuth) (*Tokens, error) {
	return f.service.RefreshAccessToken(ctx, ra)
}

// AuthenticatedUser passes through to the service
func (f *Flow) AuthenticatedUser(ctx context.Context, ra RequestAuth) (*models.User, error) {
	return f.service.AuthenticatedUser(ctx, ra)
}

// PasswordResetStart queues a reset email for a known address.
// Unknown addresses are a silent no-op.
func (f *Flow) PasswordResetStart(ctx context.Context, email string) error {
	if f.resets == nil || f.mail == nil {
		return fmt.Errorf("%w: password reset is not configured", ErrInvalidAuthConfiguration)
	}

	user, err := f.users.GetUserByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	token, err := f.service.CreateJWT(user, f.resetTTL)
	if err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}

	digest, err := crypto.HashToken(token)
	if err != nil {
		return fmt.Errorf("failed to hash reset token: %w", err)
	}

	now := f.clock.Now()
	record := &models.PasswordResetToken{
		UserID:     user.ID,
		TokenHash:  digest,
		ValidUntil: now.Add(time.Duration(f.resetTTL) * time.Minute),
		CreatedAt:  now,
	}
	if err := f.resets.SaveResetToken(ctx, record); err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}

	err = f.mail.QueueEmail(ctx, mailer.TemplatePasswordReset, user.Email, map[string]string{
		"name":        user.Name,
		"token":       token,
		"ttl_minutes": strconv.Itoa(f.resetTTL),
	})
	if err != nil {
		return fmt.Errorf("failed to queue reset email: %w", err)
	}

	f.logger.InfoContext(ctx, "Password reset requested", slog.Int64("user_id", user.ID))

	return nil
}

// PasswordResetFinish consumes a reset token and sets a new password.
// All refresh tokens of the user are revoked afterwards.
func (f *Flow) PasswordResetFinish(ctx context.Context, token, newPassword string) error {
	if f.resets == nil {
		return fmt.Errorf("%w: password reset is not configured", ErrInvalidAuthConfiguration)
	}

	claims, err := f.service.VerifyJWT(token)
	if err != nil {
		return err
	}

	digest, err := crypto.HashToken(token)
	if err != nil {
		return notAuthenticated("invalid reset token", err)
	}

	record, err := f.resets.GetResetToken(ctx, digest)
	if err != nil {
		if errors.Is(err, storage.ErrResetTokenNotFound) {
			return notAuthenticated("unknown reset token", nil)
		}
		return fmt.Errorf("failed to load reset token: %w", err)
	}

	now := f.clock.Now()
	if !record.Usable(now) {
		return notAuthenticated("reset token used or expired", nil)
	}

	user, err := f.users.GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return notAuthenticated("user no longer exists", nil)
		}
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user.Email != claims.Email {
		return notAuthenticated("reset token does not match user", nil)
	}

	hash, err := f.service.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	// пароль и отметка об использовании токена пишутся одной транзакцией
	if err := f.resets.ConsumeResetToken(ctx, record.ID, hash, now); err != nil {
		switch {
		case errors.Is(err, storage.ErrResetTokenUsed), errors.Is(err, storage.ErrResetTokenNotFound):
			return notAuthenticated("reset token used or expired", nil)
		case errors.Is(err, storage.ErrUserNotFound):
			return notAuthenticated("user no longer exists", nil)
		}
		return fmt.Errorf("failed to reset password: %w", err)
	}

	revoked, err := f.service.RevokeAllRefreshTokens(ctx, user.ID)
	if err != nil {
		return err
	}

	f.logger.InfoContext(ctx, "Password reset completed",
		slog.Int64("user_id", user.ID),
		slog.Int("revoked_refresh_tokens", revoked),
	)

	return nil
}
