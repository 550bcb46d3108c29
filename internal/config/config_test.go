package config

import (
	"errors"
	"testing"
	"time"
)

func validConfig() *AuditConfig {
	cfg := DefaultConfig()
	cfg.OldBase = "https://old.example.com"
	cfg.NewBase = "https://new.example.com"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxPages != 500 {
		t.Errorf("Expected max pages 500, got %d", cfg.MaxPages)
	}

	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("Expected request timeout 15s, got %v", cfg.RequestTimeout)
	}

	if cfg.MaxRedirects != 10 {
		t.Errorf("Expected max redirects 10, got %d", cfg.MaxRedirects)
	}

	if cfg.SitemapLimit != 200000 {
		t.Errorf("Expected sitemap limit 200000, got %d", cfg.SitemapLimit)
	}

	if cfg.UserAgent != "SiteDiff/1.0" {
		t.Errorf("Expected user agent 'SiteDiff/1.0', got %s", cfg.UserAgent)
	}

	if cfg.RespectRobots {
		t.Errorf("Expected respect robots false, got %v", cfg.RespectRobots)
	}

	if len(cfg.StartPaths) != 1 || cfg.StartPaths[0] != "/" {
		t.Errorf("Expected start paths [/], got %v", cfg.StartPaths)
	}

	if cfg.Report.Backend != BackendJSON || cfg.Report.Path != "./data/report.json" {
		t.Errorf("Unexpected report defaults: %+v", cfg.Report)
	}

	if cfg.Visual.Width != 1366 || cfg.Visual.Height != 900 || cfg.Visual.Threshold != 0.1 {
		t.Errorf("Unexpected visual defaults: %+v", cfg.Visual)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *AuditConfig)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(c *AuditConfig) {},
		},
		{
			name:    "missing old base",
			mutate:  func(c *AuditConfig) { c.OldBase = "" },
			wantErr: ErrMissingOldBase,
		},
		{
			name:    "missing new base",
			mutate:  func(c *AuditConfig) { c.NewBase = "  " },
			wantErr: ErrMissingNewBase,
		},
		{
			name:    "relative old base",
			mutate:  func(c *AuditConfig) { c.OldBase = "/just/a/path" },
			wantErr: ErrInvalidBaseURL,
		},
		{
			name:    "ftp new base",
			mutate:  func(c *AuditConfig) { c.NewBase = "ftp://new.example.com" },
			wantErr: ErrInvalidBaseURL,
		},
		{
			name:    "zero max pages",
			mutate:  func(c *AuditConfig) { c.MaxPages = 0 },
			wantErr: ErrInvalidMaxPages,
		},
		{
			name:    "zero timeout",
			mutate:  func(c *AuditConfig) { c.RequestTimeout = 0 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "zero max redirects",
			mutate:  func(c *AuditConfig) { c.MaxRedirects = 0 },
			wantErr: ErrInvalidMaxRedirects,
		},
		{
			name:    "zero sitemap limit",
			mutate:  func(c *AuditConfig) { c.SitemapLimit = 0 },
			wantErr: ErrInvalidSitemapLimit,
		},
		{
			name:    "negative delay",
			mutate:  func(c *AuditConfig) { c.RequestDelay = -time.Second },
			wantErr: ErrInvalidRequestDelay,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *AuditConfig) { c.Report.Backend = "mongo" },
			wantErr: ErrInvalidReportBackend,
		},
		{
			name:    "empty report path",
			mutate:  func(c *AuditConfig) { c.Report.Path = "" },
			wantErr: ErrEmptyReportPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.StartPaths = nil
	cfg.Visual.Threshold = 3

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(cfg.StartPaths) != 1 || cfg.StartPaths[0] != "/" {
		t.Errorf("Expected start paths to default to [/], got %v", cfg.StartPaths)
	}
	if cfg.Visual.Threshold != 0.1 {
		t.Errorf("Expected threshold to be reset to 0.1, got %v", cfg.Visual.Threshold)
	}
}

func TestBaseURLs(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := cfg.OldBaseURL().Host; got != "old.example.com" {
		t.Errorf("OldBaseURL host = %q", got)
	}
	if got := cfg.NewBaseURL().Host; got != "new.example.com" {
		t.Errorf("NewBaseURL host = %q", got)
	}
}
