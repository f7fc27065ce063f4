package seencache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the redis-backed cache
type RedisConfig struct {
	Addr      string // e.g. localhost:6379
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisConfigFromEnv reads REDIS_ADDR, REDIS_PASS, REDIS_DB and
// NEWSDEDUP_SEEN_TTL_SECONDS. ok is false when REDIS_ADDR is unset.
func RedisConfigFromEnv() (cfg RedisConfig, ok bool) {
	cfg = RedisConfig{
		Addr:      os.Getenv("REDIS_ADDR"),
		Password:  os.Getenv("REDIS_PASS"),
		KeyPrefix: "newsdedup:seen:",
		TTL:       DefaultTTL,
	}
	if db, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil && db >= 0 {
		cfg.DB = db
	}
	if t := os.Getenv("NEWSDEDUP_SEEN_TTL_SECONDS"); t != "" {
		if secs, err := strconv.Atoi(t); err == nil && secs > 0 {
			cfg.TTL = time.Duration(secs) * time.Second
		}
	}
	return cfg, cfg.Addr != ""
}

// Redis is a Cache backed by plain redis keys with expiry
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects and verifies connectivity with a ping
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisWithClient wraps an existing client
func NewRedisWithClient(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "newsdedup:seen:"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) Seen(ctx context.Context, identity, content string) (bool, error) {
	stored, err := r.client.Get(ctx, r.prefix+identity).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("seen cache get: %w", err)
	}
	return stored == content, nil
}

func (r *Redis) Remember(ctx context.Context, identity, content string) error {
	if err := r.client.Set(ctx, r.prefix+identity, content, r.ttl).Err(); err != nil {
		return fmt.Errorf("seen cache set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
