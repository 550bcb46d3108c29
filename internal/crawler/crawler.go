// Package crawler fetches pages of the old and new deployments. It resolves
// redirect chains hop by hop, crawls the old site breadth-first from seed
// paths, and probes the new site for a fixed list of paths.
package crawler

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/masahif/sitediff/internal/urlpath"
)

// Options configures a SiteCrawler
type Options struct {
	MaxPages int            // Budget of distinct visited pages, <= 0 means 500
	Limiter  *RateLimiter   // Per-origin politeness, may be nil
	Robots   *RobotsChecker // robots.txt compliance, nil disables it
	// OnPage is called after every recorded page with the visited count
	// and the number of queued paths.
	OnPage func(path string, visited, pending int)
}

// CrawlStats summarizes one crawl
type CrawlStats struct {
	PagesCrawled int
	Fetched      int
	Discarded    int
	Failed       int
	Disallowed   int
	Duration     time.Duration
}

// SiteCrawler walks one site breadth-first, following same-origin links
type SiteCrawler struct {
	processor *PageProcessor
	base      *url.URL
	maxPages  int
	robots    *RobotsChecker
	onPage    func(path string, visited, pending int)
	stats     CrawlStats
}

// NewSiteCrawler creates a crawler for the site at base
func NewSiteCrawler(resolver Resolver, base *url.URL, opts Options) *SiteCrawler {
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 500
	}
	return &SiteCrawler{
		processor: NewPageProcessor(resolver, opts.Limiter),
		base:      base,
		maxPages:  maxPages,
		robots:    opts.Robots,
		onPage:    opts.OnPage,
	}
}

// Crawl seeds the frontier with startPaths and then sitemapPaths and visits
// paths until the queue is empty or MaxPages pages were recorded. Pages are
// keyed by their final normalized path. On cancellation the pages recorded
// so far are returned together with ctx.Err().
func (c *SiteCrawler) Crawl(ctx context.Context, startPaths, sitemapPaths []string) (map[string]*PageRecord, error) {
	started := time.Now()
	c.stats = CrawlStats{}
	defer func() { c.stats.Duration = time.Since(started) }()

	frontier := NewFrontier()
	c.seed(frontier, startPaths, sitemapPaths)

	slog.Info("Starting crawl", "base", c.base.String(), "seeds", frontier.Pending(), "max_pages", c.maxPages)

	pages := make(map[string]*PageRecord)
	for frontier.VisitedCount() < c.maxPages {
		if err := ctx.Err(); err != nil {
			slog.Info("Crawl cancelled", "visited", frontier.VisitedCount(), "pending", frontier.Pending())
			return pages, err
		}

		path, ok := frontier.Dequeue()
		if !ok {
			break
		}

		record, finalPath, err := c.visit(ctx, frontier, path)
		if err != nil {
			return pages, err
		}
		if record == nil {
			continue
		}

		pages[finalPath] = record
		c.stats.PagesCrawled++
		for _, link := range record.Links {
			frontier.Enqueue(link)
		}

		slog.Debug("Crawled page", "path", path, "final_path", finalPath, "status", record.Status, "links", len(record.Links))
		if c.onPage != nil {
			c.onPage(finalPath, frontier.VisitedCount(), frontier.Pending())
		}
	}

	if frontier.Pending() > 0 {
		slog.Info("Crawl budget reached", "visited", frontier.VisitedCount(), "pending", frontier.Pending())
	}
	slog.Info("Crawl completed", "base", c.base.String(), "pages", len(pages), "failed", c.stats.Failed, "discarded", c.stats.Discarded)
	return pages, nil
}

// Stats returns the statistics of the last crawl
func (c *SiteCrawler) Stats() CrawlStats {
	return c.stats
}

func (c *SiteCrawler) seed(frontier *Frontier, startPaths, sitemapPaths []string) {
	for _, sp := range startPaths {
		ref, err := url.Parse(sp)
		if err != nil {
			slog.Warn("Skipping invalid start path", "path", sp, "error", err)
			continue
		}
		np, ok := urlpath.Normalize(sp, c.base)
		if !ok || urlpath.IsPaginationPath(np, ref.RawQuery) {
			continue
		}
		frontier.Enqueue(np)
	}
	for _, sp := range sitemapPaths {
		if urlpath.IsPaginationPath(sp, "") {
			continue
		}
		frontier.Enqueue(sp)
	}
}

// visit fetches path and returns its record, or nil when the response is
// discarded. err is only set when ctx was cancelled.
func (c *SiteCrawler) visit(ctx context.Context, frontier *Frontier, path string) (*PageRecord, string, error) {
	target := urlpath.Resolve(c.base, path).String()

	if c.robots != nil {
		allowed, err := c.robots.IsAllowed(ctx, target)
		if err == nil && !allowed {
			slog.Info("URL disallowed by robots.txt", "url", target)
			c.stats.Disallowed++
			return nil, "", nil
		}
	}

	outcome, err := c.processor.Fetch(ctx, target)
	c.stats.Fetched++
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		slog.Warn("Fetch failed", "url", target, "error", err)
		c.stats.Failed++
		return nil, "", nil
	}

	final, err := url.Parse(outcome.FinalURL)
	if err != nil || !urlpath.SameOrigin(final, c.base) {
		slog.Debug("Discarding off-origin result", "url", target, "final_url", outcome.FinalURL)
		c.stats.Discarded++
		return nil, "", nil
	}
	if urlpath.IsPaginationPath(final.Path, final.RawQuery) || !IsHTMLContentType(outcome.ContentType) {
		c.stats.Discarded++
		return nil, "", nil
	}

	record := BuildRecord(outcome, c.base)
	if record.FinalPath == "" || frontier.Visited(record.FinalPath) {
		c.stats.Discarded++
		return nil, "", nil
	}
	frontier.MarkVisited(record.FinalPath)
	return record, record.FinalPath, nil
}
