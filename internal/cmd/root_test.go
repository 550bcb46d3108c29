package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/masahif/sitediff/internal/storage"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

// execute runs a fresh command tree and returns its stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	previous := slog.Default()
	defer slog.SetDefault(previous)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func newSites(t *testing.T) (oldURL, newURL string) {
	t.Helper()
	html := func(w http.ResponseWriter, title string, links ...string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		body := fmt.Sprintf("<html><head><title>%s</title></head><body><h1>%s</h1>", title, title)
		for _, l := range links {
			body += fmt.Sprintf(`<a href="%s">%s</a>`, l, l)
		}
		_, _ = fmt.Fprint(w, body+"</body></html>")
	}

	oldSite := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			html(w, "Home", "/a")
		case "/a":
			html(w, "Page A")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(oldSite.Close)

	newSite := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			html(w, "Home")
		case "/a":
			http.Redirect(w, r, "/b", http.StatusMovedPermanently)
		case "/b":
			html(w, "Page B")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(newSite.Close)

	return oldSite.URL, newSite.URL
}

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "2023-12-01T10:00:00Z")

	expected := "1.2.3 (built 2023-12-01T10:00:00Z)"
	if rootCmd.Version != expected {
		t.Errorf("Expected version %s, got %s", expected, rootCmd.Version)
	}
	if ua := generateUserAgent(); ua != "SiteDiff/1.2.3" {
		t.Errorf("Expected user agent SiteDiff/1.2.3, got %s", ua)
	}

	SetVersionInfo("dev", "unknown")
	if ua := generateUserAgent(); ua != "SiteDiff/dev" {
		t.Errorf("Expected user agent SiteDiff/dev, got %s", ua)
	}
}

func TestRootCmd(t *testing.T) {
	root := newRootCmd()

	if root.Use != "sitediff" {
		t.Errorf("Expected use 'sitediff', got %s", root.Use)
	}

	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"crawl", "serve", "refresh", "visual", "export"} {
		found := false
		for _, name := range names {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected subcommand %s, got %v", want, names)
		}
	}
}

func TestFlagBinding(t *testing.T) {
	root := newRootCmd()

	persistent := root.PersistentFlags()
	for _, name := range []string{"config", "show-config", "log-level", "log-format", "log-file", "old-base", "new-base", "report", "report-backend"} {
		if persistent.Lookup(name) == nil {
			t.Errorf("Expected persistent flag %s to be defined", name)
		}
	}

	crawl, _, err := root.Find([]string{"crawl"})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"start-path", "sitemap", "max-pages", "sitemap-limit", "max-redirects", "timeout", "delay", "user-agent", "respect-robots"} {
		if crawl.Flags().Lookup(name) == nil {
			t.Errorf("Expected crawl flag %s to be defined", name)
		}
	}
}

func TestShowConfig(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "sitediff.yml")
	configContent := `
old_base: https://old.example.com
new_base: https://new.example.com
max_pages: 42
request_timeout: 5s
report:
  backend: sqlite
  path: ./data/report.db
`
	if err := os.WriteFile(configFile, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	t.Run("config file", func(t *testing.T) {
		out, err := execute(t, "crawl", "--config", configFile, "--show-config")
		if err != nil {
			t.Fatalf("show-config failed: %v", err)
		}
		for _, want := range []string{"old_base: https://old.example.com", "max_pages: 42", "request_timeout: 5s", "backend: sqlite"} {
			if !strings.Contains(out, want) {
				t.Errorf("Expected %q in output:\n%s", want, out)
			}
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("SD_MAX_PAGES", "7")
		out, err := execute(t, "crawl", "--config", configFile, "--show-config")
		if err != nil {
			t.Fatalf("show-config failed: %v", err)
		}
		if !strings.Contains(out, "max_pages: 7") {
			t.Errorf("Expected env override, got:\n%s", out)
		}
	})

	t.Run("flag overrides environment", func(t *testing.T) {
		t.Setenv("SD_MAX_PAGES", "7")
		out, err := execute(t, "crawl", "--config", configFile, "--show-config", "--max-pages", "3")
		if err != nil {
			t.Fatalf("show-config failed: %v", err)
		}
		if !strings.Contains(out, "max_pages: 3") {
			t.Errorf("Expected flag override, got:\n%s", out)
		}
	})

	t.Run("missing config file", func(t *testing.T) {
		if _, err := execute(t, "crawl", "--config", filepath.Join(tempDir, "missing.yml"), "--show-config"); err == nil {
			t.Error("Expected error for missing config file")
		}
	})
}

func TestCrawlValidation(t *testing.T) {
	reportPath := filepath.Join(t.TempDir(), "report.json")

	_, err := execute(t, "crawl", "--report", reportPath, "--new-base", "https://new.example.com")
	if err == nil || !strings.Contains(err.Error(), "old_base is required") {
		t.Errorf("Expected missing old_base error, got %v", err)
	}

	_, err = execute(t, "crawl", "--report", reportPath,
		"--old-base", "ftp://old.example.com", "--new-base", "https://new.example.com")
	if err == nil || !strings.Contains(err.Error(), "old_base") {
		t.Errorf("Expected invalid old_base error, got %v", err)
	}

	if _, err := os.Stat(reportPath); !os.IsNotExist(err) {
		t.Error("No report should be written for an invalid configuration")
	}
}

func TestCrawlRefreshExport(t *testing.T) {
	oldURL, newURL := newSites(t)
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "data", "report.db")
	sites := []string{"--old-base", oldURL, "--new-base", newURL, "--report", reportPath, "--report-backend", "sqlite"}

	out, err := execute(t, append([]string{"crawl"}, sites...)...)
	if err != nil {
		t.Fatalf("crawl failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "[100%] Completed") || !strings.Contains(out, "Audited 2 pages") {
		t.Errorf("Unexpected crawl output:\n%s", out)
	}

	out, err = execute(t, append([]string{"refresh", "/a"}, sites...)...)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if !strings.Contains(out, `"finalPath": "/b"`) || !strings.Contains(out, `"redirectToDifferentPath": true`) {
		t.Errorf("Unexpected refresh output:\n%s", out)
	}

	xlsxPath := filepath.Join(dir, "report.xlsx")
	out, err = execute(t, "export", "--report", reportPath, "--report-backend", "sqlite", "--out", xlsxPath)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.Contains(out, "Exported 2 pages") {
		t.Errorf("Unexpected export output: %s", out)
	}
	if info, err := os.Stat(xlsxPath); err != nil || info.Size() == 0 {
		t.Errorf("Expected non-empty workbook: %v", err)
	}
}

func TestExportWithoutReport(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "export", "--report", filepath.Join(dir, "report.json"), "--out", filepath.Join(dir, "out.xlsx"))
	if !errors.Is(err, storage.ErrReportNotFound) {
		t.Errorf("Expected ErrReportNotFound, got %v", err)
	}
}

func TestRefreshRequiresPath(t *testing.T) {
	if _, err := execute(t, "refresh", "--old-base", "https://old.example.com", "--new-base", "https://new.example.com"); err == nil {
		t.Error("Expected argument error without a path")
	}
}
