package seencache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedis(context.Background(), RedisConfig{Addr: mr.Addr(), TTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

// exercise runs the shared contract against any Cache
func exercise(t *testing.T, c Cache) {
	ctx := context.Background()

	seen, err := c.Seen(ctx, "id-1", "fp-a")
	require.NoError(t, err)
	assert.False(t, seen, "unknown identity")

	require.NoError(t, c.Remember(ctx, "id-1", "fp-a"))

	seen, err = c.Seen(ctx, "id-1", "fp-a")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = c.Seen(ctx, "id-1", "fp-b")
	require.NoError(t, err)
	assert.False(t, seen, "same identity with edited content is not seen")

	require.NoError(t, c.Remember(ctx, "id-1", "fp-b"))
	seen, err = c.Seen(ctx, "id-1", "fp-b")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestMemoryCache(t *testing.T) {
	exercise(t, NewMemory(time.Hour))
}

func TestRedisCache(t *testing.T) {
	c, _ := newTestRedis(t)
	exercise(t, c)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Remember(ctx, "id", "fp"))
	assert.Equal(t, 1, m.Len())

	now = now.Add(2 * time.Minute)
	seen, err := m.Seen(ctx, "id", "fp")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, 0, m.Len())
}

func TestRedisExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	require.NoError(t, c.Remember(ctx, "id", "fp"))
	assert.True(t, mr.Exists("newsdedup:seen:id"))
	assert.Equal(t, time.Hour, mr.TTL("newsdedup:seen:id"))

	mr.FastForward(2 * time.Hour)
	seen, err := c.Seen(ctx, "id", "fp")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisErrorsSurface(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	c := NewRedisWithClient(client, "", 0)
	defer c.Close()

	mr.Close()
	_, err = c.Seen(context.Background(), "id", "fp")
	assert.Error(t, err)
}

func TestNewRedisUnreachable(t *testing.T) {
	_, err := NewRedis(context.Background(), RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	_, ok := RedisConfigFromEnv()
	assert.False(t, ok)

	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("NEWSDEDUP_SEEN_TTL_SECONDS", "60")
	cfg, ok := RedisConfigFromEnv()
	assert.True(t, ok)
	assert.Equal(t, "cache:6379", cfg.Addr)
	assert.Equal(t, 2, cfg.DB)
	assert.Equal(t, time.Minute, cfg.TTL)
}
