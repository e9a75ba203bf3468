package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRateLimiterAllow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	rl := NewRateLimiter(rdb, 2)
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	allowed, used, _, err := rl.Allow(context.Background(), "user-1", now)
	if err != nil {
		t.Fatalf("allow#1: %v", err)
	}
	if !allowed || used != 1 {
		t.Fatalf("expected first call allowed with used=1, got allowed=%v used=%d", allowed, used)
	}

	allowed, used, _, err = rl.Allow(context.Background(), "user-1", now)
	if err != nil {
		t.Fatalf("allow#2: %v", err)
	}
	if !allowed || used != 2 {
		t.Fatalf("expected second call allowed with used=2, got allowed=%v used=%d", allowed, used)
	}

	allowed, used, _, err = rl.Allow(context.Background(), "user-1", now)
	if err != nil {
		t.Fatalf("allow#3: %v", err)
	}
	if allowed || used != 3 {
		t.Fatalf("expected third call denied with used=3, got allowed=%v used=%d", allowed, used)
	}

	// A different user has an independent window.
	allowed, used, _, err = rl.Allow(context.Background(), "user-2", now)
	if err != nil {
		t.Fatalf("allow other user: %v", err)
	}
	if !allowed || used != 1 {
		t.Fatalf("expected independent counter for second user, got allowed=%v used=%d", allowed, used)
	}
}

func TestResetThrottle(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	th := NewResetThrottle(rdb, time.Minute)

	first, err := th.MarkFirst(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("mark#1: %v", err)
	}
	if !first {
		t.Fatalf("expected first mark to pass")
	}

	second, err := th.MarkFirst(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("mark#2: %v", err)
	}
	if second {
		t.Fatalf("expected repeat mark to be throttled")
	}

	mr.FastForward(2 * time.Minute)
	again, err := th.MarkFirst(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("mark#3: %v", err)
	}
	if !again {
		t.Fatalf("expected mark to pass after ttl expiry")
	}
}
