package infra

import (
	"testing"
	"time"
)

func TestRateLimiter_TryAcquire(t *testing.T) {
	rl := NewRateLimiter(2, 10)

	if !rl.TryAcquire() {
		t.Error("expected first TryAcquire to succeed")
	}
	if !rl.TryAcquire() {
		t.Error("expected second TryAcquire to succeed")
	}

	// Bucket drained.
	if rl.TryAcquire() {
		t.Error("expected third TryAcquire to fail")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	rl := NewRateLimiter(1, 10)

	if !rl.TryAcquire() {
		t.Error("expected first TryAcquire to succeed")
	}
	if rl.TryAcquire() {
		t.Error("expected immediate TryAcquire to fail")
	}

	// 1 token refills in 100ms at 10/s.
	time.Sleep(120 * time.Millisecond)

	if !rl.TryAcquire() {
		t.Error("expected TryAcquire to succeed after refill")
	}
}

func TestRateLimiter_Wait(t *testing.T) {
	rl := NewRateLimiter(1, 100)

	rl.Wait()

	start := time.Now()
	rl.Wait()
	elapsed := time.Since(start)

	if elapsed < 5*time.Millisecond {
		t.Errorf("expected Wait to block for a refill, blocked %s", elapsed)
	}
}

func TestNewKISLimiter_VirtualIsStricter(t *testing.T) {
	virtual := NewKISLimiter(true)
	real := NewKISLimiter(false)

	if virtual.maxTokens >= real.maxTokens {
		t.Errorf("virtual burst %v should be below real burst %v", virtual.maxTokens, real.maxTokens)
	}
	if virtual.refillRate >= real.refillRate {
		t.Errorf("virtual rate %v should be below real rate %v", virtual.refillRate, real.refillRate)
	}
}
