// Package throttle counts failed logins per email in Redis.
package throttle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "login:"

// RedisLimiter locks a key after maxFailures failures inside one window.
// The window starts at the first failure and is not extended by later ones.
type RedisLimiter struct {
	client      *redis.Client
	prefix      string
	maxFailures int
	window      time.Duration
}

func NewRedisLimiter(redisURL string, maxFailures int, window time.Duration) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisLimiterWithClient(client, maxFailures, window), nil
}

func NewRedisLimiterWithClient(client *redis.Client, maxFailures int, window time.Duration) *RedisLimiter {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RedisLimiter{
		client:      client,
		prefix:      keyPrefix,
		maxFailures: maxFailures,
		window:      window,
	}
}

// key hashes the normalized email so raw addresses never land in Redis.
func (l *RedisLimiter) key(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return l.prefix + hex.EncodeToString(sum[:])
}

// Allow reports whether another attempt is permitted and, if not, how long
// until the window closes.
func (l *RedisLimiter) Allow(ctx context.Context, email string) (bool, time.Duration, error) {
	key := l.key(email)
	count, err := l.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return true, 0, nil
	}
	if err != nil {
		return true, 0, fmt.Errorf("read failure count: %w", err)
	}
	if count < l.maxFailures {
		return true, 0, nil
	}

	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil {
		return false, l.window, fmt.Errorf("read failure ttl: %w", err)
	}
	if ttl <= 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

func (l *RedisLimiter) RecordFailure(ctx context.Context, email string) error {
	key := l.key(email)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("set failure window: %w", err)
		}
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, email string) error {
	if err := l.client.Del(ctx, l.key(email)).Err(); err != nil {
		return fmt.Errorf("reset failures: %w", err)
	}
	return nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
