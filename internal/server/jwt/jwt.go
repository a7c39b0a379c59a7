// Package jwt signs and parses the HS256 tokens used by the auth service.
// Every token kind has its own typed claims; the "typ" claim keeps one kind
// from being accepted in place of another.
package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iudanet/projecthub/internal/clock"
)

// Token kinds
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
	TypeUser    = "user"
)

var (
	// ErrInvalidToken covers bad signature, malformed payload, wrong kind and expiry
	ErrInvalidToken = errors.New("invalid token")
	// ErrEmptySecret is returned when the service is built without a key
	ErrEmptySecret = errors.New("jwt secret is empty")
)

// AccessClaims are carried by access tokens
type AccessClaims struct {
	Email          string `json:"email"`
	RefreshTokenID string `json:"refreshTokenId,omitempty"`
	Type           string `json:"typ"`
	gojwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens; ID is the persisted token identifier
type RefreshClaims struct {
	Type string `json:"typ"`
	gojwt.RegisteredClaims
}

// UserClaims are carried by general purpose short-lived tokens (password reset)
type UserClaims struct {
	Email string `json:"email"`
	Type  string `json:"typ"`
	gojwt.RegisteredClaims
}

// Service provides JWT token generation and validation
type Service struct {
	clock  clock.Clock
	issuer string
	secret []byte
}

// NewService creates a new JWT service.
// secret should be a cryptographically secure random string
func NewService(secret []byte, issuer string, clk clock.Clock) (*Service, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &Service{
		secret: secret,
		issuer: issuer,
		clock:  clk,
	}, nil
}

// SignAccess creates an access token for the user
func (s *Service) SignAccess(userID int64, email, refreshTokenID string, ttl time.Duration) (string, *AccessClaims, error) {
	claims := &AccessClaims{
		Email:            email,
		RefreshTokenID:   refreshTokenID,
		Type:             TypeAccess,
		RegisteredClaims: s.registered(userID, uuid.NewString(), ttl),
	}

	token, err := s.sign(claims)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create access token: %w", err)
	}
	return token, claims, nil
}

// SignRefresh creates a refresh token whose jti is identifier.
// ttl <= 0 produces a token without exp; the persisted record decides validity then.
func (s *Service) SignRefresh(userID int64, identifier string, ttl time.Duration) (string, *RefreshClaims, error) {
	if identifier == "" {
		return "", nil, fmt.Errorf("refresh token identifier is empty")
	}

	claims := &RefreshClaims{
		Type:             TypeRefresh,
		RegisteredClaims: s.registered(userID, identifier, ttl),
	}

	token, err := s.sign(claims)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create refresh token: %w", err)
	}
	return token, claims, nil
}

// SignUser creates a general purpose token embedding the user's email
func (s *Service) SignUser(userID int64, email string, ttl time.Duration) (string, *UserClaims, error) {
	if ttl <= 0 {
		return "", nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	claims := &UserClaims{
		Email:            email,
		Type:             TypeUser,
		RegisteredClaims: s.registered(userID, uuid.NewString(), ttl),
	}

	token, err := s.sign(claims)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create user token: %w", err)
	}
	return token, claims, nil
}

// ParseAccess validates signature, expiry and kind of an access token
func (s *Service) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(token, claims, true); err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.Type)
	}
	return claims, nil
}

// ParseRefresh validates a refresh token
func (s *Service) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(token, claims, false); err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.Type)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: refresh token has no identifier", ErrInvalidToken)
	}
	return claims, nil
}

// ParseUser validates a general purpose user token
func (s *Service) ParseUser(token string) (*UserClaims, error) {
	claims := &UserClaims{}
	if err := s.parse(token, claims, true); err != nil {
		return nil, err
	}
	if claims.Type != TypeUser {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.Type)
	}
	return claims, nil
}

// SubjectID converts the sub claim back to a user id
func SubjectID(claims gojwt.RegisteredClaims) (int64, error) {
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, claims.Subject)
	}
	return id, nil
}

func (s *Service) registered(userID int64, jti string, ttl time.Duration) gojwt.RegisteredClaims {
	now := s.clock.Now()
	rc := gojwt.RegisteredClaims{
		Issuer:   s.issuer,
		Subject:  strconv.FormatInt(userID, 10),
		ID:       jti,
		IssuedAt: gojwt.NewNumericDate(now),
	}
	if ttl > 0 {
		rc.ExpiresAt = gojwt.NewNumericDate(now.Add(ttl))
	}
	return rc
}

func (s *Service) sign(claims gojwt.Claims) (string, error) {
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) parse(token string, claims gojwt.Claims, requireExp bool) error {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithTimeFunc(s.clock.Now),
		gojwt.WithIssuedAt(),
	}
	if s.issuer != "" {
		opts = append(opts, gojwt.WithIssuer(s.issuer))
	}
	if requireExp {
		opts = append(opts, gojwt.WithExpirationRequired())
	}

	_, err := gojwt.ParseWithClaims(token, claims, func(t *gojwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return nil
}
