package crawler

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/masahif/sitediff/internal/urlpath"
)

// ShadowProber fetches known paths on the new site without following links
type ShadowProber struct {
	processor *PageProcessor
	base      *url.URL
	onProbe   func(done, total int)
}

// NewShadowProber creates a prober for the site at base. onProbe may be nil.
func NewShadowProber(resolver Resolver, base *url.URL, limiter *RateLimiter, onProbe func(done, total int)) *ShadowProber {
	return &ShadowProber{
		processor: NewPageProcessor(resolver, limiter),
		base:      base,
		onProbe:   onProbe,
	}
}

// Probe fetches every path and returns records keyed by the probed path.
// On cancellation the records collected so far are returned with ctx.Err().
func (p *ShadowProber) Probe(ctx context.Context, paths []string) (map[string]*PageRecord, error) {
	pages := make(map[string]*PageRecord, len(paths))
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		pages[path] = p.ProbePath(ctx, path)
		if p.onProbe != nil {
			p.onProbe(i+1, len(paths))
		}
	}
	return pages, ctx.Err()
}

// ProbePath fetches one path. Failed fetches yield a record with Status 0.
// FinalPath is the path of the final URL even when a redirect leaves the
// site, and falls back to path only when the final URL cannot be parsed.
func (p *ShadowProber) ProbePath(ctx context.Context, path string) *PageRecord {
	target := urlpath.Resolve(p.base, path).String()

	outcome, err := p.processor.Fetch(ctx, target)
	if err != nil {
		slog.Warn("Probe failed", "url", target, "error", err)
	}

	record := BuildRecord(outcome, p.base)
	if record.FinalPath == "" {
		record.FinalPath = path
	}
	slog.Debug("Probed page", "path", path, "status", record.Status, "final_path", record.FinalPath)
	return record
}
