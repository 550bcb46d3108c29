package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces requests per origin (scheme + host)
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	delay    time.Duration
}

// NewRateLimiter creates a new rate limiter. A zero delay never waits.
func NewRateLimiter(defaultDelay time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    defaultDelay,
	}
}

// Wait waits for permission to proceed with a request to the given URL
func (r *RateLimiter) Wait(ctx context.Context, urlStr string) error {
	origin, err := originKey(urlStr)
	if err != nil {
		return err
	}
	return r.getLimiter(origin).Wait(ctx)
}

// SetOriginDelay sets a custom delay for the origin of urlStr. It never
// lowers the configured default.
func (r *RateLimiter) SetOriginDelay(urlStr string, delay time.Duration) error {
	origin, err := originKey(urlStr)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if delay < r.delay {
		delay = r.delay
	}
	r.limiters[origin] = newLimiter(delay)
	return nil
}

// getLimiter gets or creates a rate limiter for an origin
func (r *RateLimiter) getLimiter(origin string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[origin]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check again in case another goroutine created it
	if limiter, exists := r.limiters[origin]; exists {
		return limiter
	}

	limiter = newLimiter(r.delay)
	r.limiters[origin] = limiter
	return limiter
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

func originKey(urlStr string) (string, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid URL %q: missing host", urlStr)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}
