package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLimiterRespectsLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewRedisLimiter(client, 2, time.Minute, "rl")

	ctx := context.Background()
	if err := limiter.Allow(ctx, "user-1", "like"); err != nil {
		t.Fatalf("first action should pass, got: %v", err)
	}
	if err := limiter.Allow(ctx, "user-1", "like"); err != nil {
		t.Fatalf("second action should pass, got: %v", err)
	}

	if err := limiter.Allow(ctx, "user-1", "like"); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("third action should be blocked, got: %v", err)
	}

	key := limiter.buildKey("user-1", "like")
	if ttl := mr.TTL(key); ttl <= 0 {
		t.Fatalf("expected positive TTL for %s, got %v", key, ttl)
	}
}

func TestRedisLimiterCountsActionsSeparately(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewRedisLimiter(client, 1, time.Minute, "rl")

	ctx := context.Background()
	if err := limiter.Allow(ctx, "user-1", "like"); err != nil {
		t.Fatalf("like should pass: %v", err)
	}
	if err := limiter.Allow(ctx, "user-1", "vote"); err != nil {
		t.Fatalf("vote uses its own window, got: %v", err)
	}
	if err := limiter.Allow(ctx, "user-1", "like"); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("second like should be blocked, got: %v", err)
	}
}

func TestRedisLimiterResetsAfterWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	window := 30 * time.Second
	limiter := NewRedisLimiter(client, 1, window, "rl")

	ctx := context.Background()
	if err := limiter.Allow(ctx, "user-2", "vote"); err != nil {
		t.Fatalf("initial action should pass: %v", err)
	}
	if err := limiter.Allow(ctx, "user-2", "vote"); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("second action inside the window should fail, got: %v", err)
	}

	mr.FastForward(window + time.Second)

	if err := limiter.Allow(ctx, "user-2", "vote"); err != nil {
		t.Fatalf("after the window expires the action should pass: %v", err)
	}
}
