package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/net/html/charset"
)

const (
	defaultMaxRedirects = 10
	defaultMaxBodyBytes = 10 * 1024 * 1024
)

// HTTPClient fetches pages for the audit. Resolve follows redirects by hand
// so every hop is visible; Get is a plain redirect-following fetch.
type HTTPClient struct {
	manual       *http.Client // redirects disabled
	follow       *http.Client // redirects followed by net/http
	userAgent    string
	timeout      time.Duration
	maxRedirects int
	maxBodyBytes int64
}

// HTTPResponse contains a fully read response from Get
type HTTPResponse struct {
	StatusCode      int
	Headers         http.Header
	Body            []byte // Content-Encoding already removed
	ContentType     string
	ContentEncoding string // Content-Encoding as sent by the server
	FinalURL        string // After following redirects
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(userAgent string, timeout time.Duration, maxRedirects int) *HTTPClient {
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		// Accept-Encoding is set explicitly and decoded in decodeBody
		DisableCompression: true,
	}

	manual := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	follow := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}

	return &HTTPClient{
		manual:       manual,
		follow:       follow,
		userAgent:    userAgent,
		timeout:      timeout,
		maxRedirects: maxRedirects,
		maxBodyBytes: defaultMaxBodyBytes,
	}
}

// IsRedirectStatus reports whether status is one the resolver follows
func IsRedirectStatus(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// IsHTMLContentType reports whether a Content-Type denotes an HTML document
func IsHTMLContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

// Resolve fetches rawURL and follows up to maxRedirects redirects itself,
// recording each hop. The whole chain shares one timeout. The outcome is
// never nil; on failure it has Status 0, the hops seen so far, and the
// returned error is also stored in outcome.Err.
func (h *HTTPClient) Resolve(ctx context.Context, rawURL string) (*FetchOutcome, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	current := rawURL
	var chain []RedirectHop

	for i := 0; i < h.maxRedirects; i++ {
		resp, err := h.do(ctx, h.manual, current)
		if err != nil {
			return failedOutcome(ctx, current, chain, err)
		}

		location := resp.Header.Get("Location")
		if IsRedirectStatus(resp.StatusCode) && location != "" {
			discard(resp)
			next, err := resolveLocation(current, location)
			if err != nil {
				return failedOutcome(ctx, current, chain, err)
			}
			chain = append(chain, RedirectHop{Status: resp.StatusCode, From: current, To: next})
			current = next
			continue
		}

		contentType := resp.Header.Get("Content-Type")
		var body string
		if IsHTMLContentType(contentType) {
			body, err = h.readText(resp)
			if err != nil {
				return failedOutcome(ctx, current, chain, err)
			}
		} else {
			discard(resp)
		}

		return &FetchOutcome{
			Status:      resp.StatusCode,
			ContentType: contentType,
			Body:        body,
			FinalURL:    current,
			Chain:       chain,
		}, nil
	}

	fetchErr := &FetchError{Kind: KindTooManyRedirects, URL: current, Err: ErrTooManyRedirects}
	return &FetchOutcome{FinalURL: current, Chain: chain, Err: fetchErr}, fetchErr
}

// Get performs an HTTP GET that lets net/http follow redirects and reads
// the whole (decoded) body.
func (h *HTTPClient) Get(ctx context.Context, rawURL string) (*HTTPResponse, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	resp, err := h.do(ctx, h.follow, rawURL)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	body, err := h.readAll(resp, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &HTTPResponse{
		StatusCode:      resp.StatusCode,
		Headers:         resp.Header,
		Body:            body,
		ContentType:     resp.Header.Get("Content-Type"),
		ContentEncoding: resp.Header.Get("Content-Encoding"),
		FinalURL:        resp.Request.URL.String(),
	}, nil
}

// Close closes idle connections
func (h *HTTPClient) Close() {
	h.manual.CloseIdleConnections()
}

func (h *HTTPClient) do(ctx context.Context, client *http.Client, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	return client.Do(req)
}

// readText reads an HTML body and converts it to UTF-8 using the declared
// or sniffed charset. Oversized documents are cut at maxBodyBytes so the
// head of the page still yields title, h1, description and early links.
func (h *HTTPClient) readText(resp *http.Response) (string, error) {
	raw, err := h.readAll(resp, true)
	if err != nil {
		return "", err
	}
	reader, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		return string(raw), nil
	}
	text, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("decode charset: %w", err)
	}
	return string(text), nil
}

// readAll reads the decoded body. A body longer than maxBodyBytes is an
// error unless truncate is set, in which case its prefix is returned.
func (h *HTTPClient) readAll(resp *http.Response, truncate bool) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()

	reader, closeDecoder, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	defer closeDecoder()

	body, err := io.ReadAll(io.LimitReader(reader, h.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > h.maxBodyBytes {
		if !truncate {
			return nil, fmt.Errorf("response body exceeds limit of %d bytes", h.maxBodyBytes)
		}
		slog.Debug("Truncated response body", "url", resp.Request.URL.String(), "limit", h.maxBodyBytes)
		body = body[:h.maxBodyBytes]
	}
	return body, nil
}

// decodeBody strips Content-Encoding from the response body
func decodeBody(resp *http.Response) (io.Reader, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, noop, fmt.Errorf("gzip decode: %w", err)
		}
		return gz, func() { _ = gz.Close() }, nil
	case "br":
		return brotli.NewReader(resp.Body), noop, nil
	case "deflate":
		fl := flate.NewReader(resp.Body)
		return fl, func() { _ = fl.Close() }, nil
	}
	return resp.Body, noop, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	_ = resp.Body.Close()
}

func resolveLocation(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", current, err)
	}
	ref, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", fmt.Errorf("invalid Location %q: %w", location, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func failedOutcome(ctx context.Context, current string, chain []RedirectHop, err error) (*FetchOutcome, error) {
	kind := KindNetwork
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	fetchErr := &FetchError{Kind: kind, URL: current, Err: err}
	return &FetchOutcome{FinalURL: current, Chain: chain, Err: fetchErr}, fetchErr
}
