package config

import "errors"

var (
	// ErrMissingOldBase is returned when old_base is not set
	ErrMissingOldBase = errors.New("old_base is required")
	// ErrMissingNewBase is returned when new_base is not set
	ErrMissingNewBase = errors.New("new_base is required")
	// ErrInvalidBaseURL is returned when a base URL is not an absolute http(s) URL
	ErrInvalidBaseURL = errors.New("base URL must be an absolute http or https URL")
	// ErrInvalidMaxPages is returned when max_pages is not greater than 0
	ErrInvalidMaxPages = errors.New("max_pages must be greater than 0")
	// ErrInvalidTimeout is returned when request timeout is not greater than 0
	ErrInvalidTimeout = errors.New("request_timeout must be greater than 0")
	// ErrInvalidMaxRedirects is returned when max_redirects is not greater than 0
	ErrInvalidMaxRedirects = errors.New("max_redirects must be greater than 0")
	// ErrInvalidSitemapLimit is returned when sitemap_limit is not greater than 0
	ErrInvalidSitemapLimit = errors.New("sitemap_limit must be greater than 0")
	// ErrInvalidRequestDelay is returned when request_delay is negative
	ErrInvalidRequestDelay = errors.New("request_delay cannot be negative")
	// ErrInvalidReportBackend is returned when report.backend is neither json nor sqlite
	ErrInvalidReportBackend = errors.New("report.backend must be 'json' or 'sqlite'")
	// ErrEmptyReportPath is returned when report.path is empty
	ErrEmptyReportPath = errors.New("report.path cannot be empty")
)
