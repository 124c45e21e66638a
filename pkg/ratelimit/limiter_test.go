package ratelimit

import (
	"context"
	"testing"
)

func TestWaitUnknownLimiterDoesNotThrottle(t *testing.T) {
	m := NewMultiLimiter()
	if err := m.Wait(context.Background(), "missing"); err != nil {
		t.Fatalf("expected nil error for unregistered limiter, got %v", err)
	}
	if !m.Allow("missing") {
		t.Fatal("expected Allow to pass for unregistered limiter")
	}
}

func TestAllowRespectsBurst(t *testing.T) {
	m := NewMultiLimiter()
	m.AddLimiter("svc", 0.0001, 2)

	if !m.Allow("svc") || !m.Allow("svc") {
		t.Fatal("expected first two events within burst to be allowed")
	}
	if m.Allow("svc") {
		t.Fatal("expected third event to exceed burst")
	}
}

func TestWaitHonorsCancelledContext(t *testing.T) {
	m := NewMultiLimiter()
	m.AddLimiter("svc", 0.0001, 1)
	m.Allow("svc")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Wait(ctx, "svc"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestNewRegistersDefaults(t *testing.T) {
	m := NewDefaultLimiter()
	for _, name := range []string{LimiterLinkedIn, LimiterAnthropic, LimiterHashNode, LimiterSlack, LimiterRSS} {
		m.mu.RLock()
		_, ok := m.limiters[name]
		m.mu.RUnlock()
		if !ok {
			t.Errorf("expected limiter %q to be registered", name)
		}
	}
}
