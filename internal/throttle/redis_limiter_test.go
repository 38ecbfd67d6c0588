package throttle

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestLimiter(t *testing.T, max int, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	limiter, err := NewRedisLimiter("redis://"+s.Addr(), max, window)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	t.Cleanup(func() { _ = limiter.Close() })
	return limiter, s
}

func TestNewRedisLimiterBadURL(t *testing.T) {
	if _, err := NewRedisLimiter("://nope", 3, time.Minute); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLimiterLocksAfterMaxFailures(t *testing.T) {
	limiter, _ := setupTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := limiter.Allow(ctx, "ada@example.com")
		if err != nil || !allowed {
			t.Fatalf("attempt %d should be allowed: allowed=%v err=%v", i, allowed, err)
		}
		if err := limiter.RecordFailure(ctx, "ada@example.com"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	allowed, retryAfter, err := limiter.Allow(ctx, "ADA@example.com")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Fatal("expected lock after max failures")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("unexpected retryAfter %v", retryAfter)
	}

	other, _, _ := limiter.Allow(ctx, "grace@example.com")
	if !other {
		t.Fatal("lock must be per email")
	}
}

func TestLimiterWindowExpires(t *testing.T) {
	limiter, s := setupTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if err := limiter.RecordFailure(ctx, "ada@example.com"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if allowed, _, _ := limiter.Allow(ctx, "ada@example.com"); allowed {
		t.Fatal("expected lock")
	}

	s.FastForward(61 * time.Second)

	if allowed, _, _ := limiter.Allow(ctx, "ada@example.com"); !allowed {
		t.Fatal("expected lock to clear once the window passes")
	}
}

func TestLimiterResetClearsFailures(t *testing.T) {
	limiter, _ := setupTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	_ = limiter.RecordFailure(ctx, "ada@example.com")
	if err := limiter.Reset(ctx, "ada@example.com"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if allowed, _, _ := limiter.Allow(ctx, "ada@example.com"); !allowed {
		t.Fatal("expected reset to clear lock")
	}
}

func TestLimiterKeysAreHashed(t *testing.T) {
	limiter, s := setupTestLimiter(t, 5, time.Minute)
	ctx := context.Background()

	_ = limiter.RecordFailure(ctx, "ada@example.com")
	keys := s.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one key, got %v", keys)
	}
	if !strings.HasPrefix(keys[0], keyPrefix) || strings.Contains(keys[0], "ada") {
		t.Fatalf("expected hashed key, got %q", keys[0])
	}
	if ttl := s.TTL(keys[0]); ttl != time.Minute {
		t.Fatalf("expected window ttl, got %v", ttl)
	}
}

func TestLimiterPing(t *testing.T) {
	limiter, s := setupTestLimiter(t, 5, time.Minute)
	if err := limiter.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	s.Close()
	if err := limiter.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail after redis stops")
	}
}
