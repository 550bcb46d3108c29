package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsChecker evaluates robots.txt rules with one cached fetch per origin
type RobotsChecker struct {
	getter    Getter
	userAgent string
	limiter   *RateLimiter // receives Crawl-delay, may be nil

	mu    sync.RWMutex
	rules map[string]*robotstxt.RobotsData
}

// NewRobotsChecker creates a robots.txt checker. When limiter is non-nil,
// a Crawl-delay found for the agent is applied to that origin.
func NewRobotsChecker(getter Getter, userAgent string, limiter *RateLimiter) *RobotsChecker {
	return &RobotsChecker{
		getter:    getter,
		userAgent: userAgent,
		limiter:   limiter,
		rules:     make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed checks if a URL is allowed by robots.txt. Fetch or parse
// failures allow the URL.
func (r *RobotsChecker) IsAllowed(ctx context.Context, urlStr string) (bool, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false, fmt.Errorf("invalid URL: %w", err)
	}
	if !parsedURL.IsAbs() || parsedURL.Host == "" {
		return false, fmt.Errorf("invalid URL %q: not absolute", urlStr)
	}

	rules, err := r.getRules(ctx, parsedURL)
	if err != nil {
		slog.Debug("robots.txt unavailable, allowing", "url", urlStr, "error", err)
		return true, nil
	}

	path := parsedURL.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsedURL.RawQuery != "" {
		path += "?" + parsedURL.RawQuery
	}
	return rules.TestAgent(path, r.userAgent), nil
}

// CrawlDelay returns the Crawl-delay declared for the agent on the origin
// of urlStr, or zero when unknown.
func (r *RobotsChecker) CrawlDelay(urlStr string) time.Duration {
	key, err := originKey(urlStr)
	if err != nil {
		return 0
	}

	r.mu.RLock()
	rules, ok := r.rules[key]
	r.mu.RUnlock()

	if !ok {
		return 0
	}
	if group := rules.FindGroup(r.userAgent); group != nil {
		return group.CrawlDelay
	}
	return 0
}

// getRules fetches and parses robots.txt for an origin
func (r *RobotsChecker) getRules(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	key := strings.ToLower(target.Scheme + "://" + target.Host)

	r.mu.RLock()
	rules, exists := r.rules[key]
	r.mu.RUnlock()

	if exists {
		return rules, nil
	}

	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"
	resp, err := r.getter.Get(ctx, robotsURL)
	if err != nil {
		return nil, err
	}

	rules, err = robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.mu.Lock()
	r.rules[key] = rules
	r.mu.Unlock()

	if r.limiter != nil {
		if group := rules.FindGroup(r.userAgent); group != nil && group.CrawlDelay > 0 {
			if err := r.limiter.SetOriginDelay(robotsURL, group.CrawlDelay); err == nil {
				slog.Info("Applying robots.txt crawl delay", "origin", key, "delay", group.CrawlDelay)
			}
		}
	}

	return rules, nil
}
