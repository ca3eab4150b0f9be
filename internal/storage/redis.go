package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/splits-indexer/internal/config"
)

// RedisQueueStore wraps the Redis client backing the job queue transport
type RedisQueueStore struct {
	client *redis.Client
}

// NewRedisQueueStore creates a new Redis connection for the job queue
func NewRedisQueueStore(cfg *config.RedisConfig) (*RedisQueueStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisQueueStore{client: client}, nil
}

// NewRedisQueueStoreFromClient wraps an existing client. Used by tests
// running against miniredis.
func NewRedisQueueStoreFromClient(client *redis.Client) *RedisQueueStore {
	return &RedisQueueStore{client: client}
}

// Close closes the Redis connection
func (r *RedisQueueStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisQueueStore) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisQueueStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
