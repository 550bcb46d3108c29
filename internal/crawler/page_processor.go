package crawler

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/masahif/sitediff/internal/parser"
	"github.com/masahif/sitediff/internal/urlpath"
)

// PageProcessor fetches one URL and turns the outcome into a PageRecord
type PageProcessor struct {
	resolver Resolver
	limiter  *RateLimiter
}

// NewPageProcessor creates a page processor. limiter may be nil.
func NewPageProcessor(resolver Resolver, limiter *RateLimiter) *PageProcessor {
	return &PageProcessor{
		resolver: resolver,
		limiter:  limiter,
	}
}

// Fetch waits for the origin's rate limit and resolves rawURL. The outcome
// is never nil.
func (p *PageProcessor) Fetch(ctx context.Context, rawURL string) (*FetchOutcome, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, rawURL); err != nil {
			return &FetchOutcome{FinalURL: rawURL, Err: err}, err
		}
	}
	outcome, err := p.resolver.Resolve(ctx, rawURL)
	if outcome == nil {
		outcome = &FetchOutcome{FinalURL: rawURL, Err: err}
	}
	return outcome, err
}

// BuildRecord extracts metadata and links from outcome. The final path is
// the normalized path of the final URL on whichever host served it. Links
// are normalized against site and keep only same-origin, non-pagination
// document paths, deduplicated in first-seen order.
func BuildRecord(outcome *FetchOutcome, site *url.URL) *PageRecord {
	record := &PageRecord{
		Status:                outcome.Status,
		ContentType:           outcome.ContentType,
		Links:                 []string{},
		Redirected:            outcome.Redirected(),
		RedirectedPermanently: outcome.RedirectedPermanently(),
	}

	if final, err := url.Parse(outcome.FinalURL); err == nil {
		record.FinalPath = urlpath.PathOf(final)
	}

	if outcome.Body == "" || !IsHTMLContentType(outcome.ContentType) {
		return record
	}

	htmlParser, err := parser.NewHTMLParser(outcome.FinalURL)
	if err != nil {
		return record
	}
	result, err := htmlParser.Parse([]byte(outcome.Body))
	if err != nil {
		slog.Debug("Skipping unparsable document", "url", outcome.FinalURL, "error", err)
		return record
	}

	record.Title = result.Title
	record.H1 = result.H1
	record.Description = result.MetaDesc

	seen := make(map[string]struct{}, len(result.Links))
	for _, link := range result.Links {
		u, err := url.Parse(link.URL)
		if err != nil {
			continue
		}
		if urlpath.IsPaginationPath(u.Path, u.RawQuery) {
			continue
		}
		p, ok := urlpath.NormalizeURL(u, site)
		if !ok || !urlpath.IsDocumentPath(p) {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		record.Links = append(record.Links, p)
	}

	slog.Debug("Found links", "url", outcome.FinalURL, "links_count", len(record.Links))
	return record
}
