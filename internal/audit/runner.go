// Package audit runs the migration audit end to end: sitemap ingestion and
// crawl of the old site, probing of the new site, and synthesis of the
// report that is written to the configured store.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/masahif/sitediff/internal/config"
	"github.com/masahif/sitediff/internal/crawler"
	"github.com/masahif/sitediff/internal/report"
	"github.com/masahif/sitediff/internal/sitemap"
	"github.com/masahif/sitediff/internal/storage"
	"github.com/masahif/sitediff/internal/urlpath"
)

// Progress milestones of a full run
const (
	ProgressStarted    = 5
	ProgressSitemap    = 20
	ProgressCrawlOld   = 35
	ProgressOldDone    = 55
	ProgressCheckNew   = 75
	ProgressSaving     = 95
	ProgressCompleted  = 100
	progressBatchPages = 25
)

// ProgressFunc receives the run progress in percent and a status message
type ProgressFunc func(percent int, message string)

// Runner executes audit runs against the configured sites
type Runner struct {
	config  *config.AuditConfig
	store   storage.ReportStore
	client  *crawler.HTTPClient
	limiter *crawler.RateLimiter
	oldBase *url.URL
	newBase *url.URL
}

// NewRunner validates cfg and creates a runner writing to store
func NewRunner(cfg *config.AuditConfig, store storage.ReportStore) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if store == nil {
		return nil, errors.New("report store is required")
	}

	return &Runner{
		config:  cfg,
		store:   store,
		client:  crawler.NewHTTPClient(cfg.UserAgent, cfg.RequestTimeout, cfg.MaxRedirects),
		limiter: crawler.NewRateLimiter(cfg.RequestDelay),
		oldBase: cfg.OldBaseURL(),
		newBase: cfg.NewBaseURL(),
	}, nil
}

// Close releases idle connections
func (r *Runner) Close() {
	r.client.Close()
}

// Store returns the report store the runner writes to
func (r *Runner) Store() storage.ReportStore {
	return r.store
}

// Run performs a full audit and saves the report. progress may be nil.
// A cancelled run returns ctx.Err() and leaves the stored report untouched.
func (r *Runner) Run(ctx context.Context, progress ProgressFunc) (*report.Report, error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	started := time.Now()
	progress(ProgressStarted, "Starting audit")
	slog.Info("Starting audit", "old_base", r.config.OldBase, "new_base", r.config.NewBase)

	sitemapPaths, err := r.collectSitemap(ctx, progress)
	if err != nil {
		return nil, err
	}

	progress(ProgressCrawlOld, "Crawling old site")
	oldPages, err := r.crawlOld(ctx, sitemapPaths, progress)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(oldPages))
	for p := range oldPages {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	progress(ProgressOldDone, fmt.Sprintf("Old site crawled: %d pages", len(paths)))

	progress(ProgressCheckNew, "Checking new site")
	prober := crawler.NewShadowProber(r.client, r.newBase, r.limiter, func(done, total int) {
		if done%progressBatchPages == 0 || done == total {
			progress(ProgressCheckNew, fmt.Sprintf("Checked %d/%d pages on new site", done, total))
		}
	})
	newPages, err := prober.Probe(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("probe of new site interrupted: %w", err)
	}

	rep := report.Build(report.Meta{
		OldBase: r.config.OldBase,
		NewBase: r.config.NewBase,
	}, paths, oldPages, newPages)

	progress(ProgressSaving, "Saving report")
	if err := r.store.Save(ctx, rep); err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	progress(ProgressCompleted, "Completed")
	slog.Info("Audit completed",
		"pages", len(rep.Paths),
		"consolidated_targets", len(rep.Meta.ConsolidatedTargets),
		"duration", time.Since(started))
	return rep, nil
}

func (r *Runner) collectSitemap(ctx context.Context, progress ProgressFunc) ([]string, error) {
	if strings.TrimSpace(r.config.OldSitemap) == "" {
		return nil, nil
	}

	progress(ProgressSitemap, "Reading sitemap")
	ingester := sitemap.NewIngester(r.client, r.oldBase, r.config.SitemapLimit)
	result, err := ingester.Collect(ctx, r.config.OldSitemap)
	if err != nil {
		return nil, fmt.Errorf("sitemap ingestion interrupted: %w", err)
	}
	for _, f := range result.Failures {
		slog.Warn("Sitemap skipped", "url", f.URL, "error", f.Err)
	}
	progress(ProgressSitemap, fmt.Sprintf("Sitemap: %d paths", len(result.Paths)))
	return result.Paths, nil
}

func (r *Runner) crawlOld(ctx context.Context, sitemapPaths []string, progress ProgressFunc) (map[string]*crawler.PageRecord, error) {
	opts := crawler.Options{
		MaxPages: r.config.MaxPages,
		Limiter:  r.limiter,
		OnPage: func(_ string, visited, pending int) {
			if visited%progressBatchPages == 0 {
				progress(ProgressCrawlOld, fmt.Sprintf("Crawled %d pages, %d queued", visited, pending))
			}
		},
	}
	if r.config.RespectRobots {
		opts.Robots = crawler.NewRobotsChecker(r.client, r.config.UserAgent, r.limiter)
	}

	siteCrawler := crawler.NewSiteCrawler(r.client, r.oldBase, opts)
	pages, err := siteCrawler.Crawl(ctx, r.config.StartPaths, sitemapPaths)
	if err != nil {
		return nil, fmt.Errorf("crawl of old site interrupted: %w", err)
	}

	stats := siteCrawler.Stats()
	slog.Info("Old site crawled",
		"pages", stats.PagesCrawled,
		"fetched", stats.Fetched,
		"discarded", stats.Discarded,
		"failed", stats.Failed,
		"disallowed", stats.Disallowed,
		"duration", stats.Duration)
	return pages, nil
}

// Refresh re-fetches path on both sites and replaces its report entry.
// consolidatedRedirect of the new entry stays false unless recompute is
// set, in which case consolidation is recomputed for the whole report.
func (r *Runner) Refresh(ctx context.Context, path string, recompute bool) (*report.PageEntry, error) {
	normalized, ok := urlpath.Normalize(path, r.oldBase)
	if !ok || strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	oldRec := crawler.NewShadowProber(r.client, r.oldBase, r.limiter, nil).ProbePath(ctx, normalized)
	newRec := crawler.NewShadowProber(r.client, r.newBase, r.limiter, nil).ProbePath(ctx, normalized)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry := report.Synthesize(normalized, oldRec, newRec, nil)
	err := r.store.Update(ctx, func(rep *report.Report) error {
		if _, exists := rep.Pages[normalized]; !exists {
			rep.Paths = append(rep.Paths, normalized)
			slices.Sort(rep.Paths)
		}
		rep.Pages[normalized] = entry

		if recompute {
			report.RecomputeConsolidation(rep)
		}
		entry = rep.Pages[normalized]
		return nil
	})
	if errors.Is(err, storage.ErrReportNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update report: %w", err)
	}

	slog.Info("Refreshed path", "path", normalized, "old_status", entry.Old.Status,
		"new_status", entry.New.Status, "recompute", recompute)
	return entry, nil
}
