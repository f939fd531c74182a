package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/config"
)

// RedisCache is the advisory lookup cache shared across replicas. It
// fronts the registration lookups the transfer path performs per
// observed sender; misses always fall through to Postgres.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache connection.
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, ttl: cfg.TTL}, nil
}

// NewRedisCacheWithClient wraps an existing client. Used in tests with
// miniredis.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping checks if Redis is reachable.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func registrationKey(address string) string {
	return "registration:" + address
}

// GetRegistered returns whether an address is cached as registered. The
// second return reports whether the cache held an answer at all.
func (r *RedisCache) GetRegistered(ctx context.Context, address string) (registered, found bool, err error) {
	val, err := r.client.Get(ctx, registrationKey(address)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, false, nil
		}
		return false, false, fmt.Errorf("failed to read registration cache for %s: %w", address, err)
	}
	return val == "1", true, nil
}

// SetRegistered caches an address's registration state.
func (r *RedisCache) SetRegistered(ctx context.Context, address string, registered bool) error {
	val := "0"
	if registered {
		val = "1"
	}
	if err := r.client.Set(ctx, registrationKey(address), val, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache registration for %s: %w", address, err)
	}
	return nil
}

// InvalidateRegistration drops the cached registration state for an
// address. Called when a tag or detag completes.
func (r *RedisCache) InvalidateRegistration(ctx context.Context, address string) error {
	if err := r.client.Del(ctx, registrationKey(address)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate registration cache for %s: %w", address, err)
	}
	return nil
}
