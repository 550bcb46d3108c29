package crawler

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(100 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()

	// First request should be immediate
	if err := limiter.Wait(ctx, "https://old.example.com/page1"); err != nil {
		t.Errorf("First request failed: %v", err)
	}

	// Second request to the same origin should wait
	if err := limiter.Wait(ctx, "https://old.example.com/page2"); err != nil {
		t.Errorf("Second request failed: %v", err)
	}

	elapsed := time.Since(start)
	if elapsed < 90*time.Millisecond {
		t.Errorf("Rate limiting not working, elapsed time: %v", elapsed)
	}

	// Different origin should not be rate limited
	start2 := time.Now()
	if err := limiter.Wait(ctx, "https://new.example.com/page1"); err != nil {
		t.Errorf("Different origin request failed: %v", err)
	}
	if elapsed2 := time.Since(start2); elapsed2 > 20*time.Millisecond {
		t.Errorf("Different origin was rate limited, elapsed time: %v", elapsed2)
	}
}

func TestRateLimiterZeroDelay(t *testing.T) {
	limiter := NewRateLimiter(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 20; i++ {
		if err := limiter.Wait(ctx, "https://old.example.com/"); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Zero delay should not wait, elapsed time: %v", elapsed)
	}
}

func TestRateLimiterSchemeSeparatesOrigins(t *testing.T) {
	limiter := NewRateLimiter(200 * time.Millisecond)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "http://example.com/a"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	start := time.Now()
	if err := limiter.Wait(ctx, "https://example.com/a"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("https origin shared the http limiter, elapsed time: %v", elapsed)
	}
}

func TestRateLimiterCustomDelay(t *testing.T) {
	limiter := NewRateLimiter(0)
	ctx := context.Background()

	if err := limiter.SetOriginDelay("https://example.com/robots.txt", 200*time.Millisecond); err != nil {
		t.Fatalf("SetOriginDelay() error = %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx, "https://example.com/page1"); err != nil {
		t.Errorf("First request failed: %v", err)
	}
	if err := limiter.Wait(ctx, "https://example.com/page2"); err != nil {
		t.Errorf("Second request failed: %v", err)
	}

	if elapsed := time.Since(start); elapsed < 190*time.Millisecond {
		t.Errorf("Custom delay not working, elapsed time: %v", elapsed)
	}
}

func TestRateLimiterContextCancellation(t *testing.T) {
	limiter := NewRateLimiter(500 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	// First request to establish timing
	if err := limiter.Wait(ctx, "https://example.com/page1"); err != nil {
		t.Errorf("First request failed: %v", err)
	}

	cancel()

	// Second request should return context cancelled error
	err := limiter.Wait(ctx, "https://example.com/page2")
	if err == nil {
		t.Errorf("Expected context cancellation error, got nil")
	}
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRateLimiterInvalidURL(t *testing.T) {
	limiter := NewRateLimiter(100 * time.Millisecond)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "http://[::1]:namedport"); err == nil {
		t.Errorf("Expected error for invalid URL, got nil")
	}
	if err := limiter.Wait(ctx, "/relative/path"); err == nil {
		t.Errorf("Expected error for URL without host, got nil")
	}
}
