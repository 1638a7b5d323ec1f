// Package ratelimit throttles post-ready commands per session.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per session handle
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewLimiter creates a new command limiter
// perMinute: commands allowed per minute per session (e.g., 60)
// burst: max commands in a burst (e.g., 10)
func NewLimiter(perMinute int, burst int) *Limiter {
	r := rate.Limit(float64(perMinute) / 60.0)
	if perMinute <= 0 {
		r = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// GetLimiter returns the bucket for a session, creating it on first use
func (l *Limiter) GetLimiter(sessionID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[sessionID]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[sessionID] = limiter
	}

	return limiter
}

// Allow reports whether a command may run now for the given session
func (l *Limiter) Allow(sessionID string) bool {
	return l.GetLimiter(sessionID).Allow()
}

// AllowAt is Allow evaluated at t.
func (l *Limiter) AllowAt(sessionID string, t time.Time) bool {
	return l.GetLimiter(sessionID).AllowN(t, 1)
}

// RetryAfter returns how long until the next command would be allowed
func (l *Limiter) RetryAfter(sessionID string) time.Duration {
	r := l.GetLimiter(sessionID).Reserve()
	defer r.Cancel()
	return r.Delay()
}

// Tokens returns the current number of available tokens for a session
func (l *Limiter) Tokens(sessionID string) float64 {
	return l.GetLimiter(sessionID).Tokens()
}

// Forget drops the bucket of a session that was torn down
func (l *Limiter) Forget(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, sessionID)
}

// Len returns how many sessions currently have a bucket
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
