// Package auth issues and validates access and refresh tokens and coordinates
// the login, logout, refresh and password reset flows.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/projecthub/internal/clock"
	"github.com/iudanet/projecthub/internal/crypto"
	"github.com/iudanet/projecthub/internal/models"
	"github.com/iudanet/projecthub/internal/server/jwt"
	"github.com/iudanet/projecthub/internal/server/storage"
	"github.com/iudanet/projecthub/internal/validation"
)

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Credentials is an email/password pair
type Credentials struct {
	Email    string
	Password string
}

// Tokens is the result of a successful login, registration or refresh
type Tokens struct {
	AccessExpiresAt  time.Time
	RefreshExpiresAt *time.Time
	User             *models.User
	AccessToken      string
	// RefreshToken is empty unless a refresh token was issued
	RefreshToken string
}

// Config holds token lifetimes
type Config struct {
	// AccessTTL is the access token lifetime
	AccessTTL time.Duration
	// RefreshTTL > 0 sets an explicit expiry on issued refresh tokens,
	// otherwise they stay valid until revoked
	RefreshTTL time.Duration
}

// ServiceDeps are the collaborators of Service. Tokens may be nil:
// the service then works without refresh tokens.
type ServiceDeps struct {
	Users     storage.UserStorage
	Tokens    storage.TokenStorage
	Blacklist storage.BlacklistStorage
	Signer    *jwt.Service
	Hasher    PasswordHasher
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Service is the token issuance and validation service
type Service struct {
	users     storage.UserStorage
	tokens    storage.TokenStorage
	blacklist storage.BlacklistStorage
	signer    *jwt.Service
	hasher    PasswordHasher
	clock     clock.Clock
	logger    *slog.Logger
	// dummyHash is verified for unknown emails so both paths cost the same
	dummyHash string
	cfg       Config
}

// NewService creates a new auth service
func NewService(deps ServiceDeps, cfg Config) (*Service, error) {
	if deps.Users == nil || deps.Blacklist == nil || deps.Signer == nil || deps.Hasher == nil {
		return nil, fmt.Errorf("%w: users, blacklist, signer and hasher are required", ErrInvalidAuthConfiguration)
	}
	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("%w: access token ttl must be positive", ErrInvalidAuthConfiguration)
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	dummy, err := deps.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &Service{
		users:     deps.Users,
		tokens:    deps.Tokens,
		blacklist: deps.Blacklist,
		signer:    deps.Signer,
		hasher:    deps.Hasher,
		clock:     deps.Clock,
		logger:    deps.Logger,
		dummyHash: dummy,
		cfg:       cfg,
	}, nil
}

// HashPassword hashes a new password with the configured hasher
func (s *Service) HashPassword(password string) (string, error) {
	return s.hasher.Hash(password)
}

// Login verifies credentials and issues tokens
func (s *Service) Login(ctx context.Context, creds Credentials, issueRefreshToken bool) (*Tokens, error) {
	email := validation.NormalizeEmail(creds.Email)

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		// тратим столько же времени, сколько на реальную проверку
		_, _ = s.hasher.Verify(creds.Password, s.dummyHash)
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(creds.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return s.IssueTokens(ctx, user, issueRefreshToken)
}

// IssueTokens mints an access token and, if requested, a persisted refresh token
func (s *Service) IssueTokens(ctx context.Context, user *models.User, issueRefreshToken bool) (*Tokens, error) {
	if user == nil || user.ID <= 0 {
		return nil, fmt.Errorf("%w: user", ErrModelNotFound)
	}
	if issueRefreshToken && s.tokens == nil {
		return nil, fmt.Errorf("%w: refresh token store is not configured", ErrInvalidAuthConfiguration)
	}

	result := &Tokens{User: user}
	refreshID := ""

	if issueRefreshToken {
		now := s.clock.Now()
		record := &models.RefreshToken{
			Identifier: uuid.NewString(),
			UserID:     user.ID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if s.cfg.RefreshTTL > 0 {
			validUntil := now.Add(s.cfg.RefreshTTL)
			record.ValidUntil = &validUntil
		}

		if err := s.tokens.SaveRefreshToken(ctx, record, true); err != nil {
			return nil, fmt.Errorf("failed to save refresh token: %w", err)
		}

		signed, claims, err := s.signer.SignRefresh(user.ID, record.Identifier, s.cfg.RefreshTTL)
		if err != nil {
			return nil, err
		}

		refreshID = record.Identifier
		result.RefreshToken = signed
		if claims.ExpiresAt != nil {
			exp := claims.ExpiresAt.Time
			result.RefreshExpiresAt = &exp
		}
	}

	access, claims, err := s.signer.SignAccess(user.ID, user.Email, refreshID, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	result.AccessToken = access
	result.AccessExpiresAt = claims.ExpiresAt.Time

	return result, nil
}

// Logout blacklists the request's access token until its natural expiry
// and revokes the refresh token the session was built on
func (s *Service) Logout(ctx context.Context, ra RequestAuth) error {
	if ra.AccessToken == "" {
		return notAuthenticated("no access token", nil)
	}

	claims, err := s.signer.ParseAccess(ra.AccessToken)
	if err != nil {
		return notAuthenticated("invalid access token", err)
	}

	key, err := crypto.HashToken(ra.AccessToken)
	if err != nil {
		return notAuthenticated("invalid access token", err)
	}

	if err := s.blacklist.AddToBlacklist(ctx, key, s.clock.Now(), claims.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("failed to blacklist access token: %w", err)
	}

	if s.tokens == nil {
		return nil
	}

	ids := make([]string, 0, 2)
	if claims.RefreshTokenID != "" {
		ids = append(ids, claims.RefreshTokenID)
	}
	if ra.RefreshToken != "" {
		if rc, err := s.signer.ParseRefresh(ra.RefreshToken); err == nil && rc.ID != claims.RefreshTokenID {
			ids = append(ids, rc.ID)
		}
	}

	for _, id := range ids {
		if err := s.RevokeRefreshToken(ctx, id); err != nil && !errors.Is(err, ErrModelNotFound) {
			return err
		}
	}

	return nil
}

// RefreshAccessToken mints a new access token from the request's refresh token.
// The refresh token itself is not rotated.
func (s *Service) RefreshAccessToken(ctx context.Context, ra RequestAuth) (*Tokens, error) {
	if s.tokens == nil {
		return nil, fmt.Errorf("%w: refresh token store is not configured", ErrInvalidAuthConfiguration)
	}
	if ra.RefreshToken == "" {
		return nil, notAuthenticated("no refresh token", nil)
	}

	claims, err := s.signer.ParseRefresh(ra.RefreshToken)
	if err != nil {
		return nil, notAuthenticated("invalid refresh token", err)
	}

	record, err := s.tokens.FindRefreshToken(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil, notAuthenticated("refresh token revoked", nil)
		}
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}
	if !record.IsValid(s.clock.Now()) {
		return nil, notAuthenticated("refresh token revoked", nil)
	}

	subject, err := jwt.SubjectID(claims.RegisteredClaims)
	if err != nil || subject != record.UserID {
		return nil, notAuthenticated("refresh token subject mismatch", err)
	}

	user, err := s.userByID(ctx, record.UserID)
	if err != nil {
		return nil, err
	}

	access, accessClaims, err := s.signer.SignAccess(user.ID, user.Email, record.Identifier, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}

	return &Tokens{
		User:            user,
		AccessToken:     access,
		AccessExpiresAt: accessClaims.ExpiresAt.Time,
	}, nil
}

// AuthenticatedUser resolves the principal of the request's access token.
// Signature, expiry, blacklist and the referenced refresh token are checked
// on every call.
func (s *Service) AuthenticatedUser(ctx context.Context, ra RequestAuth) (*models.User, error) {
	if ra.AccessToken == "" {
		return nil, notAuthenticated("no access token", nil)
	}

	claims, err := s.signer.ParseAccess(ra.AccessToken)
	if err != nil {
		return nil, notAuthenticated("invalid access token", err)
	}

	key, err := crypto.HashToken(ra.AccessToken)
	if err != nil {
		return nil, notAuthenticated("invalid access token", err)
	}

	blacklisted, err := s.blacklist.IsBlacklisted(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check blacklist: %w", err)
	}
	if blacklisted {
		return nil, notAuthenticated("access token revoked", nil)
	}

	if claims.RefreshTokenID != "" {
		revoked, err := s.IsRefreshTokenRevoked(ctx, claims.RefreshTokenID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, notAuthenticated("refresh token revoked", nil)
		}
	}

	userID, err := jwt.SubjectID(claims.RegisteredClaims)
	if err != nil {
		return nil, notAuthenticated("invalid access token", err)
	}

	return s.userByID(ctx, userID)
}

// CreateJWT creates a general purpose token carrying the user's email that
// expires ttlMinutes after creation
func (s *Service) CreateJWT(user *models.User, ttlMinutes int) (string, error) {
	if user == nil {
		return "", fmt.Errorf("%w: user", ErrModelNotFound)
	}

	token, _, err := s.signer.SignUser(user.ID, user.Email, time.Duration(ttlMinutes)*time.Minute)
	if err != nil {
		return "", err
	}
	return token, nil
}

// VerifyJWT parses a token produced by CreateJWT
func (s *Service) VerifyJWT(token string) (*jwt.UserClaims, error) {
	claims, err := s.signer.ParseUser(token)
	if err != nil {
		return nil, notAuthenticated("invalid token", err)
	}
	return claims, nil
}

// IsRefreshTokenRevoked reports whether the refresh token is unusable.
// An unknown identifier counts as revoked.
func (s *Service) IsRefreshTokenRevoked(ctx context.Context, identifier string) (bool, error) {
	if s.tokens == nil {
		return false, fmt.Errorf("%w: refresh token store is not configured", ErrInvalidAuthConfiguration)
	}

	record, err := s.tokens.FindRefreshToken(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("failed to load refresh token: %w", err)
	}

	return !record.IsValid(s.clock.Now()), nil
}

// RevokeRefreshToken sets valid_until = now on the token
func (s *Service) RevokeRefreshToken(ctx context.Context, identifier string) error {
	if s.tokens == nil {
		return fmt.Errorf("%w: refresh token store is not configured", ErrInvalidAuthConfiguration)
	}

	record, err := s.tokens.FindRefreshToken(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return fmt.Errorf("%w: refresh token %s", ErrModelNotFound, identifier)
		}
		return fmt.Errorf("failed to load refresh token: %w", err)
	}

	record.Revoke(s.clock.Now())

	if err := s.tokens.SaveRefreshToken(ctx, record, true); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	s.logger.InfoContext(ctx, "Refresh token revoked",
		slog.Int64("user_id", record.UserID),
		slog.String("refresh_token_id", record.Identifier),
	)

	return nil
}

// RevokeAllRefreshTokens revokes every valid refresh token of the user
func (s *Service) RevokeAllRefreshTokens(ctx context.Context, userID int64) (int, error) {
	if s.tokens == nil {
		return 0, nil
	}

	n, err := s.tokens.RevokeUserTokens(ctx, userID, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	return n, nil
}

func (s *Service) userByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, notAuthenticated("user no longer exists", nil)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}
