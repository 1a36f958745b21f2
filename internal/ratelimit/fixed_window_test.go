package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiterBlocksOverQuota(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "reviewshelf:ratelimit:login", 2, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	key := "/user/login|203.0.113.7"
	if !limiter.Allow(key) {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow(key) {
		t.Fatalf("second request should pass")
	}
	if limiter.Allow(key) {
		t.Fatalf("third request should be blocked")
	}
	// Another client is counted independently.
	if !limiter.Allow("/user/login|198.51.100.9") {
		t.Fatalf("different key should have its own window")
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "reviewshelf:ratelimit:register", 1, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	redis.Close()
	if limiter.Allow("/user/register|203.0.113.7") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterRequiresRedisAddr(t *testing.T) {
	limiter, err := NewRedisFixedWindowLimiter("", "", "reviewshelf:ratelimit:login", 1, time.Minute)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
}

func TestFixedWindowLimiterRejectsBadQuota(t *testing.T) {
	redis := miniredis.RunT(t)
	if _, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "reviewshelf:ratelimit:login", 0, time.Minute); err == nil {
		t.Fatalf("expected constructor error for zero limit")
	}
	if _, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "reviewshelf:ratelimit:login", 1, 0); err == nil {
		t.Fatalf("expected constructor error for zero window")
	}
}
