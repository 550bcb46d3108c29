// Package sitemap collects page paths from XML sitemaps and sitemap indexes.
package sitemap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/klauspost/compress/gzip"

	"github.com/masahif/sitediff/internal/crawler"
	"github.com/masahif/sitediff/internal/urlpath"
)

// DefaultLimit caps visited sitemaps plus collected paths
const DefaultLimit = 200000

var (
	// ErrMalformedSitemap is returned for documents that are neither a
	// urlset nor a sitemapindex
	ErrMalformedSitemap = errors.New("malformed sitemap")
	// ErrUnexpectedStatus is returned for non-2xx sitemap responses
	ErrUnexpectedStatus = errors.New("unexpected sitemap status")
)

var gzSuffixRe = regexp.MustCompile(`(?i)\.gz($|\?)`)

const (
	urlLocXPath     = "/*[local-name()='urlset']/*[local-name()='url']/*[local-name()='loc']"
	sitemapLocXPath = "/*[local-name()='sitemapindex']/*[local-name()='sitemap']/*[local-name()='loc']"
)

// Failure records one sitemap that could not be used
type Failure struct {
	URL string
	Err error
}

// Result is the outcome of one Collect call
type Result struct {
	Paths    []string  // Sorted, deduplicated page paths
	Sitemaps int       // Sitemap documents visited
	Failures []Failure // Sitemaps skipped because of an error
}

// Ingester walks a sitemap tree depth-first
type Ingester struct {
	fetcher crawler.Getter
	base    *url.URL
	limit   int

	visited  map[string]struct{}
	found    map[string]struct{}
	failures []Failure
}

// NewIngester creates an ingester that keeps paths same-origin with base.
// A limit <= 0 means DefaultLimit.
func NewIngester(fetcher crawler.Getter, base *url.URL, limit int) *Ingester {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Ingester{
		fetcher: fetcher,
		base:    base,
		limit:   limit,
	}
}

// Collect loads sitemapURL and every sitemap it references. Failures of
// individual sitemaps are recorded in the result and do not stop the walk.
// The returned error is non-nil only when ctx is cancelled.
func (in *Ingester) Collect(ctx context.Context, sitemapURL string) (*Result, error) {
	in.visited = make(map[string]struct{})
	in.found = make(map[string]struct{})
	in.failures = nil

	sitemapURL = strings.TrimSpace(sitemapURL)
	if sitemapURL == "" {
		return &Result{Paths: []string{}}, nil
	}

	in.visited[sitemapURL] = struct{}{}
	err := in.load(ctx, sitemapURL)

	paths := make([]string, 0, len(in.found))
	for p := range in.found {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	result := &Result{
		Paths:    paths,
		Sitemaps: len(in.visited),
		Failures: in.failures,
	}
	slog.Info("Sitemap collected", "url", sitemapURL, "paths", len(paths), "sitemaps", result.Sitemaps, "failures", len(result.Failures))
	return result, err
}

func (in *Ingester) exceeded() bool {
	return len(in.visited)+len(in.found) > in.limit
}

func (in *Ingester) load(ctx context.Context, sitemapURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if in.exceeded() {
		return nil
	}

	doc, err := in.fetch(ctx, sitemapURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		in.fail(sitemapURL, err)
		return nil
	}

	if locs := xmlquery.Find(doc, urlLocXPath); len(locs) > 0 || xmlquery.FindOne(doc, "/*[local-name()='urlset']") != nil {
		in.addPaths(sitemapURL, locs)
		return nil
	}

	if xmlquery.FindOne(doc, "/*[local-name()='sitemapindex']") == nil {
		in.fail(sitemapURL, ErrMalformedSitemap)
		return nil
	}

	for _, node := range xmlquery.Find(doc, sitemapLocXPath) {
		child, ok := resolveLoc(sitemapURL, node.InnerText())
		if !ok {
			continue
		}
		if _, seen := in.visited[child]; seen {
			continue
		}
		in.visited[child] = struct{}{}
		if err := in.load(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// fetch downloads and parses one sitemap document
func (in *Ingester) fetch(ctx context.Context, sitemapURL string) (*xmlquery.Node, error) {
	resp, err := in.fetcher.Get(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body := gunzipMaybe(resp.Body, sitemapURL, resp.ContentType, resp.ContentEncoding)
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSitemap, err)
	}
	return doc, nil
}

func (in *Ingester) addPaths(sitemapURL string, locs []*xmlquery.Node) {
	for _, node := range locs {
		if len(in.visited)+len(in.found) >= in.limit {
			slog.Warn("Sitemap limit reached", "limit", in.limit, "url", sitemapURL)
			return
		}
		raw, ok := resolveLoc(sitemapURL, node.InnerText())
		if !ok {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		p, ok := urlpath.NormalizeURL(u, in.base)
		if !ok {
			continue
		}
		if !urlpath.IsDocumentPath(u.Path) || urlpath.IsPaginationPath(u.Path, u.RawQuery) {
			continue
		}
		in.found[p] = struct{}{}
	}
}

func (in *Ingester) fail(sitemapURL string, err error) {
	slog.Warn("Skipping sitemap", "url", sitemapURL, "error", err)
	in.failures = append(in.failures, Failure{URL: sitemapURL, Err: err})
}

func resolveLoc(sitemapURL, loc string) (string, bool) {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return "", false
	}
	base, err := url.Parse(sitemapURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

// gunzipMaybe decompresses gzip sitemaps, returning body unchanged when it
// is not gzip or cannot be decompressed
func gunzipMaybe(body []byte, sitemapURL, contentType, encoding string) []byte {
	isGz := gzSuffixRe.MatchString(sitemapURL) ||
		strings.Contains(strings.ToLower(encoding), "gzip") ||
		strings.Contains(strings.ToLower(contentType), "application/gzip") ||
		strings.Contains(strings.ToLower(contentType), "application/x-gzip")
	if !isGz {
		return body
	}
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return body
	}
	defer func() { _ = gz.Close() }()
	out, err := io.ReadAll(gz)
	if err != nil {
		return body
	}
	return out
}
