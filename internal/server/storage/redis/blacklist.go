// Package redis implements the access-token blacklist on top of Redis.
// Entries expire with the token itself, so no purge job is needed.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/iudanet/projecthub/internal/server/storage"
)

const keyPrefix = "blacklist:"

// ErrRedisUnavailable indicates that the blacklist backend cannot be reached
var ErrRedisUnavailable = errors.New("redis unavailable")

var _ storage.BlacklistStorage = (*Blacklist)(nil)

// Blacklist stores revoked access-token keys with a TTL equal to the remaining token lifetime
type Blacklist struct {
	client goredis.UniversalClient
}

// Options содержит параметры подключения к Redis
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a client and checks connectivity
func Connect(ctx context.Context, opts Options) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return client, nil
}

// NewBlacklist creates a Redis backed blacklist
func NewBlacklist(client goredis.UniversalClient) *Blacklist {
	return &Blacklist{client: client}
}

// AddToBlacklist stores key with TTL equal to the token lifetime left at revokedAt
func (b *Blacklist) AddToBlacklist(ctx context.Context, key string, revokedAt, expiresAt time.Time) error {
	ttl := expiresAt.Sub(revokedAt)
	if ttl <= 0 {
		// токен уже истек сам, хранить нечего
		return nil
	}

	// Округляем вверх до секунды: Redis не должен забыть ключ раньше, чем истечет токен
	ttl = ttl.Truncate(time.Second) + time.Second

	if err := b.client.Set(ctx, keyPrefix+key, 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// IsBlacklisted reports whether key is present
func (b *Blacklist) IsBlacklisted(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return n > 0, nil
}

// PurgeExpiredBlacklist is a no-op: Redis expires keys on its own
func (b *Blacklist) PurgeExpiredBlacklist(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// Ping checks connectivity
func (b *Blacklist) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
