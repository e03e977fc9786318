package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/util"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

// ErrLockTimeout is returned when a lock could not be acquired before the context ended
var ErrLockTimeout = errors.New("lock acquisition timed out")

type Client struct {
	rdb           redis.UniversalClient
	releaseScript *redis.Script
	retryInterval time.Duration
	logger        *zap.Logger
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb), nil
}

func newClient(rdb redis.UniversalClient) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		retryInterval: 25 * time.Millisecond,
		logger:        util.GetLogger(),
	}
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// GetIdempotencyKey returns the stored value and whether the key exists
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// AcquireLock tries once to take a distributed lock and returns the owner token when it succeeds
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseLock releases a distributed lock only if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	return c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Err()
}

// Acquire polls for the lock until it is held or ctx ends.
// The lock expires after ttl even if release is never called.
func (c *Client) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	for {
		token, ok, err := c.AcquireLock(ctx, key, ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				defer cancel()
				if err := c.ReleaseLock(releaseCtx, key, token); err != nil {
					c.logger.Warn("Failed to release lock, it will expire after its TTL",
						zap.String("key", key),
						zap.Duration("ttl", ttl),
						zap.Error(err))
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", key, ErrLockTimeout)
		case <-time.After(c.retryInterval):
		}
	}
}
