// Package config provides configuration management for the migration audit.
// It defines configuration structures and default values for crawling,
// report storage, the dashboard server and the visual pass.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Report storage backends
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// ReportConfig selects where the report is persisted
type ReportConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // json or sqlite
	Path    string `mapstructure:"path" yaml:"path"`       // Report file or SQLite database
}

// ServerConfig configures the dashboard HTTP server
type ServerConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`             // Listen address
	StaticDir string `mapstructure:"static_dir" yaml:"static_dir"` // Directory with the browser UI
}

// VisualConfig configures the screenshot comparison pass
type VisualConfig struct {
	Dir        string  `mapstructure:"dir" yaml:"dir"`                 // Output directory for screenshots
	Width      int     `mapstructure:"width" yaml:"width"`             // Viewport width
	Height     int     `mapstructure:"height" yaml:"height"`           // Viewport height
	Threshold  float64 `mapstructure:"threshold" yaml:"threshold"`     // Per-pixel color threshold (0..1)
	BrowserURL string  `mapstructure:"browser_url" yaml:"browser_url"` // Remote Chrome websocket, empty launches locally
}

// LogConfig configures logging output
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"`           // json or text
	File       string `mapstructure:"file" yaml:"file"`               // Optional log file
	MaxSize    int64  `mapstructure:"max_size" yaml:"max_size"`       // MB before rotation
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // Rotated files to keep
}

// AuditConfig holds the migration audit configuration
type AuditConfig struct {
	// Sites under comparison
	OldBase    string   `mapstructure:"old_base" yaml:"old_base"`       // Base URL of the old deployment
	NewBase    string   `mapstructure:"new_base" yaml:"new_base"`       // Base URL of the new deployment
	StartPaths []string `mapstructure:"start_paths" yaml:"start_paths"` // Manual seed paths on the old site
	OldSitemap string   `mapstructure:"old_sitemap" yaml:"old_sitemap"` // Optional sitemap of the old site

	// Crawl budget and fetch behaviour
	MaxPages       int           `mapstructure:"max_pages" yaml:"max_pages"`             // Page budget for the old-site crawl
	SitemapLimit   int           `mapstructure:"sitemap_limit" yaml:"sitemap_limit"`     // Safety limit on sitemap items
	MaxRedirects   int           `mapstructure:"max_redirects" yaml:"max_redirects"`     // Redirect hop limit per fetch
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"` // Timeout per logical fetch
	RequestDelay   time.Duration `mapstructure:"request_delay" yaml:"request_delay"`     // Delay between requests to one origin
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`           // HTTP User-Agent header
	RespectRobots  bool          `mapstructure:"respect_robots" yaml:"respect_robots"`   // Honor robots.txt on the old site

	Report ReportConfig `mapstructure:"report" yaml:"report"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Visual VisualConfig `mapstructure:"visual" yaml:"visual"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *AuditConfig {
	return &AuditConfig{
		StartPaths:     []string{"/"},
		MaxPages:       500,
		SitemapLimit:   200000,
		MaxRedirects:   10,
		RequestTimeout: 15 * time.Second,
		RequestDelay:   0,
		UserAgent:      "SiteDiff/1.0",
		RespectRobots:  false,
		Report: ReportConfig{
			Backend: BackendJSON,
			Path:    "./data/report.json",
		},
		Server: ServerConfig{
			Addr:      ":3000",
			StaticDir: "./public",
		},
		Visual: VisualConfig{
			Dir:       "./data/shots",
			Width:     1366,
			Height:    900,
			Threshold: 0.1,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSize:    100,
			MaxBackups: 5,
		},
	}
}

// Validate checks if the configuration is valid
func (c *AuditConfig) Validate() error {
	if strings.TrimSpace(c.OldBase) == "" {
		return ErrMissingOldBase
	}
	if strings.TrimSpace(c.NewBase) == "" {
		return ErrMissingNewBase
	}
	if _, err := ParseBase(c.OldBase); err != nil {
		return fmt.Errorf("old_base: %w", err)
	}
	if _, err := ParseBase(c.NewBase); err != nil {
		return fmt.Errorf("new_base: %w", err)
	}

	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxRedirects <= 0 {
		return ErrInvalidMaxRedirects
	}
	if c.SitemapLimit <= 0 {
		return ErrInvalidSitemapLimit
	}
	if c.RequestDelay < 0 {
		return ErrInvalidRequestDelay
	}

	switch c.Report.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return ErrInvalidReportBackend
	}
	if c.Report.Path == "" {
		return ErrEmptyReportPath
	}

	if len(c.StartPaths) == 0 {
		c.StartPaths = []string{"/"}
	}
	if c.Visual.Threshold < 0 || c.Visual.Threshold > 1 {
		c.Visual.Threshold = 0.1
	}

	return nil
}

// ParseBase parses a site base URL and checks that it is absolute http(s)
func ParseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, raw)
	}
	return u, nil
}

// OldBaseURL returns the parsed old_base. Call after Validate.
func (c *AuditConfig) OldBaseURL() *url.URL {
	u, _ := ParseBase(c.OldBase)
	return u
}

// NewBaseURL returns the parsed new_base. Call after Validate.
func (c *AuditConfig) NewBaseURL() *url.URL {
	u, _ := ParseBase(c.NewBase)
	return u
}
