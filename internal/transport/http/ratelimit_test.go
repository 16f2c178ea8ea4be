package http

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	limiter := newRateLimiter(2, time.Hour)
	stop := make(chan struct{})
	defer close(stop)
	limiter.startReset(stop)

	if !limiter.allow() || !limiter.allow() {
		t.Fatal("first two messages should pass")
	}
	if limiter.allow() {
		t.Fatal("third message should be rejected")
	}
}

func TestRateLimiterResets(t *testing.T) {
	limiter := newRateLimiter(1, 20*time.Millisecond)
	stop := make(chan struct{})
	defer close(stop)
	limiter.startReset(stop)

	if !limiter.allow() {
		t.Fatal("first message should pass")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		if limiter.allow() {
			return
		}
	}
	t.Fatal("limiter never reset")
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := newRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !limiter.allow() {
			t.Fatal("disabled limiter should allow everything")
		}
	}
}
