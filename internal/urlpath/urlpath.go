// Package urlpath canonicalizes links into site-relative paths and classifies
// them as crawlable documents, static assets or paginated listings.
package urlpath

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	paginationPathRe  = regexp.MustCompile(`(?i)(^|/)page/\d+(/|$)`)
	paginationQueryRe = regexp.MustCompile(`(?i)(^|[?&])page=\d+(&|$|\b)`)
)

// nonDocumentExts lists extensions that never denote a page.
var nonDocumentExts = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "webp": {}, "gif": {}, "svg": {}, "ico": {},
	"css": {}, "js": {}, "mjs": {}, "map": {}, "json": {}, "xml": {}, "txt": {},
	"woff": {}, "woff2": {}, "ttf": {}, "otf": {}, "eot": {},
	"mp4": {}, "webm": {}, "ogg": {}, "mp3": {}, "wav": {},
	"zip": {}, "gz": {}, "rar": {}, "7z": {},
	"pdf": {}, "doc": {}, "docx": {}, "xls": {}, "xlsx": {}, "ppt": {}, "pptx": {},
}

// Normalize resolves href against base and returns its normalized path.
// The result always starts with "/" and never ends with "/" unless it is
// exactly "/". Percent-encoding is kept as written, so /a%2Fb and /a/b stay
// distinct paths. ok is false when href cannot be parsed or resolves to a
// different origin than base.
func Normalize(href string, base *url.URL) (string, bool) {
	if base == nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if !SameOrigin(resolved, base) {
		return "", false
	}
	return PathOf(resolved), true
}

// NormalizeURL is Normalize for an already parsed absolute URL.
func NormalizeURL(u *url.URL, base *url.URL) (string, bool) {
	if u == nil || base == nil || !SameOrigin(u, base) {
		return "", false
	}
	return PathOf(u), true
}

// PathOf returns the normalized escaped path of u whatever its origin.
func PathOf(u *url.URL) string {
	return clean(u.EscapedPath())
}

// Resolve returns the absolute URL of the normalized path p on base. The
// escapes in p survive into the request line.
func Resolve(base *url.URL, p string) *url.URL {
	ref := &url.URL{Path: p, RawPath: p}
	if unescaped, err := url.PathUnescape(p); err == nil {
		ref.Path = unescaped
	}
	return base.ResolveReference(ref)
}

func clean(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if trimmed := strings.TrimRight(p, "/"); trimmed != "" {
		return trimmed
	}
	return "/"
}

// SameOrigin reports whether a and b share scheme, host and port.
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(hostPort(a), hostPort(b))
}

func hostPort(u *url.URL) string {
	host, port := u.Hostname(), u.Port()
	switch {
	case port == "":
	case port == "80" && strings.EqualFold(u.Scheme, "http"):
		port = ""
	case port == "443" && strings.EqualFold(u.Scheme, "https"):
		port = ""
	}
	if port == "" {
		return host
	}
	return host + ":" + port
}

// IsTrivialSlashRedirect reports whether from and to name the same logical
// page, differing at most by one trailing slash.
func IsTrivialSlashRedirect(from, to string) bool {
	if from == "" || to == "" {
		return false
	}
	return from == to || from+"/" == to || from == to+"/"
}

// IsDocumentPath reports whether pathname looks like page content rather
// than a static asset. Unknown extensions count as documents.
func IsDocumentPath(pathname string) bool {
	if pathname == "" {
		return false
	}
	ext := strings.TrimPrefix(path.Ext(lastSegment(pathname)), ".")
	if ext == "" {
		return true
	}
	ext = strings.ToLower(ext)
	if ext == "html" || ext == "htm" {
		return true
	}
	_, denied := nonDocumentExts[ext]
	return !denied
}

func lastSegment(pathname string) string {
	if i := strings.LastIndex(pathname, "/"); i >= 0 {
		return pathname[i+1:]
	}
	return pathname
}

// IsPaginationPath reports whether the path or query addresses a numbered
// listing page such as /blog/page/2 or ?page=3.
func IsPaginationPath(pathname, rawQuery string) bool {
	if paginationPathRe.MatchString(pathname) {
		return true
	}
	return rawQuery != "" && paginationQueryRe.MatchString(rawQuery)
}
