package middleware

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, 50*time.Millisecond)
	ctx := context.Background()
	boom := errors.New("boom")

	// 连续失败达到阈值后熔断
	for i := 0; i < 2; i++ {
		if err := cb.Call(ctx, func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("expected underlying error, got %v", err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open state, got %v", cb.GetState())
	}

	// 熔断期间直接拒绝，不执行函数
	called := false
	if err := cb.Call(ctx, func() error { called = true; return nil }); err == nil {
		t.Fatalf("expected open breaker to reject")
	}
	if called {
		t.Fatalf("function should not run while open")
	}

	// 超时后进入半开，成功一次即恢复
	time.Sleep(60 * time.Millisecond)
	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("expected half-open call to pass: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed after recovery, got %v", cb.GetState())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)
	ctx := context.Background()
	boom := errors.New("boom")

	if err := cb.Call(ctx, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected underlying error, got %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	// 半开下再失败：重新熔断
	if err := cb.Call(ctx, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected underlying error, got %v", err)
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected reopened breaker, got %v", cb.GetState())
	}
}

func TestTokenBucketRefill(t *testing.T) {
	tb := NewTokenBucket(1, 1000)
	ctx := context.Background()

	if !tb.Allow(ctx) {
		t.Fatalf("first request should pass")
	}
	if tb.Allow(ctx) {
		t.Fatalf("bucket should be empty")
	}
	time.Sleep(5 * time.Millisecond)
	if !tb.Allow(ctx) {
		t.Fatalf("bucket should refill")
	}
}

func TestSlidingWindow(t *testing.T) {
	sw := NewSlidingWindow(50*time.Millisecond, 2)
	ctx := context.Background()

	if !sw.Allow(ctx) || !sw.Allow(ctx) {
		t.Fatalf("first two requests should pass")
	}
	if sw.Allow(ctx) {
		t.Fatalf("third request in window should be limited")
	}
	time.Sleep(60 * time.Millisecond)
	if !sw.Allow(ctx) {
		t.Fatalf("request after window should pass")
	}
}
