package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/projecthub/internal/clock"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return mr, client
}

func TestBlacklist_AddAndCheck(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)

	clk := clock.NewManual(time.Now())
	b := NewBlacklist(client)

	found, err := b.IsBlacklisted(ctx, "token-key")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, b.AddToBlacklist(ctx, "token-key", clk.Now(), clk.Now().Add(10*time.Minute)))

	found, err = b.IsBlacklisted(ctx, "token-key")
	require.NoError(t, err)
	assert.True(t, found)

	ttl := mr.TTL(keyPrefix + "token-key")
	assert.GreaterOrEqual(t, ttl, 10*time.Minute)
	assert.LessOrEqual(t, ttl, 10*time.Minute+time.Second)

	// после естественного истечения токена ключ исчезает
	mr.FastForward(11 * time.Minute)

	found, err = b.IsBlacklisted(ctx, "token-key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBlacklist_AlreadyExpiredTokenIsSkipped(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)

	clk := clock.NewManual(time.Now())
	b := NewBlacklist(client)

	require.NoError(t, b.AddToBlacklist(ctx, "old", clk.Now(), clk.Now().Add(-time.Second)))
	assert.False(t, mr.Exists(keyPrefix+"old"))
}

func TestBlacklist_Purge(t *testing.T) {
	_, client := newTestRedis(t)
	b := NewBlacklist(client)

	n, err := b.PurgeExpiredBlacklist(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBlacklist_Unavailable(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	b := NewBlacklist(client)
	require.NoError(t, b.Ping(ctx))

	mr.Close()

	assert.ErrorIs(t, b.Ping(ctx), ErrRedisUnavailable)

	_, err := b.IsBlacklisted(ctx, "key")
	assert.ErrorIs(t, err, ErrRedisUnavailable)

	err = b.AddToBlacklist(ctx, "key", time.Now(), time.Now().Add(time.Minute))
	assert.ErrorIs(t, err, ErrRedisUnavailable)
}

func TestConnect(t *testing.T) {
	ctx := context.Background()
	mr, _ := newTestRedis(t)

	addr := mr.Addr()

	client, err := Connect(ctx, Options{Addr: addr})
	require.NoError(t, err)
	assert.NoError(t, client.Close())

	mr.Close()
	_, err = Connect(ctx, Options{Addr: addr})
	assert.ErrorIs(t, err, ErrRedisUnavailable)
}
