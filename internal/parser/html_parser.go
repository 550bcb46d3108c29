// Package parser provides HTML parsing and content extraction capabilities.
// It extracts the metadata compared by the audit (title, first heading and
// meta description) and the outgoing links of a document.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLParser extracts metadata and links from HTML
type HTMLParser struct {
	pageURL        *url.URL
	allowedSchemes []string
}

// ParseResult contains the parsed HTML data
type ParseResult struct {
	Title        string
	H1           string
	MetaDesc     string
	MetaRobots   string
	CanonicalURL string
	Links        []Link
}

// Link represents a parsed link
type Link struct {
	URL          string // Absolute URL
	AnchorText   string
	RelAttribute string
}

// NewHTMLParser creates a parser for a document fetched from pageURL
func NewHTMLParser(pageURL string) (*HTMLParser, error) {
	return NewHTMLParserWithSchemes(pageURL, []string{"https", "http"})
}

// NewHTMLParserWithSchemes creates a new HTML parser with custom allowed schemes
func NewHTMLParserWithSchemes(pageURL string, allowedSchemes []string) (*HTMLParser, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	if len(allowedSchemes) == 0 {
		allowedSchemes = []string{"https", "http"}
	}

	return &HTMLParser{
		pageURL:        parsedURL,
		allowedSchemes: allowedSchemes,
	}, nil
}

// Parse parses HTML content and extracts metadata and links.
// Title is the first <title> trimmed; H1 and the meta description have
// runs of whitespace collapsed. Links are resolved against the page URL,
// or against <base href> when the document declares one.
func (p *HTMLParser) Parse(htmlContent []byte) (*ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	result := &ParseResult{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		H1:    CollapseSpace(doc.Find("h1").First().Text()),
		Links: []Link{},
	}

	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "description":
			if result.MetaDesc == "" {
				result.MetaDesc = CollapseSpace(content)
			}
		case "robots":
			if result.MetaRobots == "" {
				result.MetaRobots = strings.TrimSpace(content)
			}
		}
		return result.MetaDesc == "" || result.MetaRobots == ""
	})

	base := p.documentBase(doc)

	doc.Find("link[rel][href]").Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		if result.CanonicalURL != "" || !strings.EqualFold(strings.TrimSpace(rel), "canonical") {
			return
		}
		href, _ := s.Attr("href")
		if abs, ok := p.resolve(base, href); ok {
			result.CanonicalURL = abs
		}
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		abs, ok := p.resolve(base, href)
		if !ok {
			return
		}
		rel, _ := s.Attr("rel")
		result.Links = append(result.Links, Link{
			URL:          abs,
			AnchorText:   CollapseSpace(s.Text()),
			RelAttribute: rel,
		})
	})

	return result, nil
}

// documentBase returns the URL relative links resolve against
func (p *HTMLParser) documentBase(doc *goquery.Document) *url.URL {
	href, exists := doc.Find("base[href]").First().Attr("href")
	if !exists {
		return p.pageURL
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return p.pageURL
	}
	return p.pageURL.ResolveReference(ref)
}

// resolve converts href to an absolute URL with an allowed scheme
func (p *HTMLParser) resolve(base *url.URL, href string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(u)
	if !p.isAllowedScheme(resolved.Scheme) {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}

// isAllowedScheme checks if the URL has an allowed scheme
func (p *HTMLParser) isAllowedScheme(scheme string) bool {
	for _, allowed := range p.allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// CollapseSpace replaces runs of whitespace with one space and trims the ends
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
