package auth

import (
	"context"

	"github.com/iudanet/projecthub/internal/models"
)

// RequestAuth is the authentication state of one inbound request.
// Middleware builds it once from headers and cookies; handlers pass it
// explicitly to every call that needs it.
type RequestAuth struct {
	AccessToken  string
	RefreshToken string
	IP           string
}

type (
	requestAuthKey struct{}
	userKey        struct{}
)

// WithRequestAuth stores ra in ctx
func WithRequestAuth(ctx context.Context, ra RequestAuth) context.Context {
	return context.WithValue(ctx, requestAuthKey{}, ra)
}

// RequestAuthFrom returns the request auth state, zero value if absent
func RequestAuthFrom(ctx context.Context) RequestAuth {
	ra, _ := ctx.Value(requestAuthKey{}).(RequestAuth)
	return ra
}

// WithUser stores the resolved principal in ctx
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the principal resolved by the auth middleware
func UserFrom(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey{}).(*models.User)
	return user, ok && user != nil
}
