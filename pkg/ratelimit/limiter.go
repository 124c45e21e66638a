package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter manages multiple rate limiters for different services
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddLimiter adds a new rate limiter for a service
// requestsPerSecond: the rate limit (e.g., 10 means 10 requests per second)
// burst: maximum burst size
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Wait blocks until the limiter allows an event.
// Services without a registered limiter are not throttled.
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return nil
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("limiter %s: %w", name, err)
	}
	return nil
}

// Allow reports whether an event may happen now
func (m *MultiLimiter) Allow(name string) bool {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return true
	}

	return limiter.Allow()
}

// Default rate limiter names
const (
	LimiterLinkedIn  = "linkedin"
	LimiterAnthropic = "anthropic"
	LimiterHashNode  = "hashnode"
	LimiterSlack     = "slack"
	LimiterRSS       = "rss"
)

// Limits holds per-service request budgets
type Limits struct {
	LinkedInPerDay     int
	AnthropicPerMinute int
	HashNodePerHour    int
	SlackPerMinute     int
}

// New creates a limiter from configured budgets, falling back to defaults for zero values
func New(l Limits) *MultiLimiter {
	if l.LinkedInPerDay <= 0 {
		l.LinkedInPerDay = 100
	}
	if l.AnthropicPerMinute <= 0 {
		l.AnthropicPerMinute = 10
	}
	if l.HashNodePerHour <= 0 {
		l.HashNodePerHour = 30
	}
	if l.SlackPerMinute <= 0 {
		l.SlackPerMinute = 60
	}

	m := NewMultiLimiter()
	m.AddLimiter(LimiterLinkedIn, float64(l.LinkedInPerDay)/(24*60*60), 5)
	m.AddLimiter(LimiterAnthropic, float64(l.AnthropicPerMinute)/60, 2)
	m.AddLimiter(LimiterHashNode, float64(l.HashNodePerHour)/(60*60), 2)
	m.AddLimiter(LimiterSlack, float64(l.SlackPerMinute)/60, 5)

	// RSS: no published limit, be polite - 1 per second, burst 10
	m.AddLimiter(LimiterRSS, 1, 10)

	return m
}

// NewDefaultLimiter creates a limiter with default rate limits
func NewDefaultLimiter() *MultiLimiter {
	return New(Limits{})
}
