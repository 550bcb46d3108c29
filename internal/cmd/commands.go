package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/masahif/sitediff/internal/audit"
	"github.com/masahif/sitediff/internal/config"
	"github.com/masahif/sitediff/internal/export"
	"github.com/masahif/sitediff/internal/job"
	"github.com/masahif/sitediff/internal/server"
	"github.com/masahif/sitediff/internal/visual"
)

func (c *cli) newCrawlCmd(defaults *config.AuditConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the old site, probe the new site and write the report",
		Args:  cobra.NoArgs,
		RunE:  c.withConfig(true, runCrawl),
	}

	flags := cmd.Flags()
	flags.StringSlice("start-path", defaults.StartPaths, "Seed paths on the old site")
	flags.String("sitemap", "", "Sitemap URL of the old site")
	flags.IntP("max-pages", "l", defaults.MaxPages, "Page budget for the old-site crawl")
	flags.Int("sitemap-limit", defaults.SitemapLimit, "Safety limit on sitemap items")
	flags.Int("max-redirects", defaults.MaxRedirects, "Redirect hop limit per fetch")
	flags.DurationP("timeout", "t", defaults.RequestTimeout, "Timeout per fetch")
	flags.DurationP("delay", "r", defaults.RequestDelay, "Delay between requests to one site")
	flags.StringP("user-agent", "u", defaults.UserAgent, "HTTP User-Agent header")
	flags.Bool("respect-robots", defaults.RespectRobots, "Honor robots.txt on the old site")

	c.bindFlags(flags, []flagBinding{
		{"start_paths", "start-path"},
		{"old_sitemap", "sitemap"},
		{"max_pages", "max-pages"},
		{"sitemap_limit", "sitemap-limit"},
		{"max_redirects", "max-redirects"},
		{"request_timeout", "timeout"},
		{"request_delay", "delay"},
		{"user_agent", "user-agent"},
		{"respect_robots", "respect-robots"},
	})
	return cmd
}

func runCrawl(cmd *cobra.Command, _ []string, cfg *config.AuditConfig) error {
	store, err := openStore(cfg.Report)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runner, err := audit.NewRunner(cfg, store)
	if err != nil {
		return err
	}
	defer runner.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Starting audit:\n")
	fmt.Fprintf(out, "  Old site: %s\n", cfg.OldBase)
	fmt.Fprintf(out, "  New site: %s\n", cfg.NewBase)
	fmt.Fprintf(out, "  Max pages: %d\n", cfg.MaxPages)
	fmt.Fprintf(out, "  Report: %s (%s)\n", cfg.Report.Path, cfg.Report.Backend)

	rep, err := runner.Run(cmd.Context(), func(percent int, message string) {
		fmt.Fprintf(out, "[%3d%%] %s\n", percent, message)
	})
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}

	fmt.Fprintf(out, "Audited %d pages, %d consolidation targets\n",
		len(rep.Paths), len(rep.Meta.ConsolidatedTargets))
	return nil
}

func (c *cli) newServeCmd(defaults *config.AuditConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard and the report API",
		Args:  cobra.NoArgs,
		RunE:  c.withConfig(true, runServe),
	}

	flags := cmd.Flags()
	flags.String("addr", defaults.Server.Addr, "Listen address")
	flags.String("static-dir", defaults.Server.StaticDir, "Directory with the dashboard UI")

	c.bindFlags(flags, []flagBinding{
		{"server.addr", "addr"},
		{"server.static_dir", "static-dir"},
	})
	return cmd
}

func runServe(cmd *cobra.Command, _ []string, cfg *config.AuditConfig) error {
	store, err := openStore(cfg.Report)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runner, err := audit.NewRunner(cfg, store)
	if err != nil {
		return err
	}
	defer runner.Close()

	jobs := job.NewManager(cmd.Context())
	srv := server.New(cfg.Server.Addr, cfg.Server.StaticDir, runner, store, jobs)

	fmt.Fprintf(cmd.OutOrStdout(), "Dashboard listening on %s\n", cfg.Server.Addr)
	return srv.ListenAndServe(cmd.Context())
}

func (c *cli) newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh <path>",
		Short: "Re-check one path on both sites and update the report",
		Args:  cobra.ExactArgs(1),
		RunE:  c.withConfig(true, runRefresh),
	}
	cmd.Flags().Bool("recompute", false, "Recompute redirect consolidation over the whole report")
	return cmd
}

func runRefresh(cmd *cobra.Command, args []string, cfg *config.AuditConfig) error {
	recompute, _ := cmd.Flags().GetBool("recompute")

	store, err := openStore(cfg.Report)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runner, err := audit.NewRunner(cfg, store)
	if err != nil {
		return err
	}
	defer runner.Close()

	entry, err := runner.Refresh(cmd.Context(), args[0], recompute)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", args[0], err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(entry)
}

func (c *cli) newVisualCmd(defaults *config.AuditConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visual",
		Short: "Screenshot every report path on both sites and count changed pixels",
		Args:  cobra.NoArgs,
		RunE:  c.withConfig(false, runVisual),
	}

	flags := cmd.Flags()
	flags.String("dir", defaults.Visual.Dir, "Output directory for screenshots")
	flags.Int("width", defaults.Visual.Width, "Viewport width")
	flags.Int("height", defaults.Visual.Height, "Viewport height")
	flags.Float64("threshold", defaults.Visual.Threshold, "Per-pixel color threshold between 0 and 1")
	flags.String("browser-url", "", "Remote Chrome DevTools websocket, empty launches a local browser")

	c.bindFlags(flags, []flagBinding{
		{"visual.dir", "dir"},
		{"visual.width", "width"},
		{"visual.height", "height"},
		{"visual.threshold", "threshold"},
		{"visual.browser_url", "browser-url"},
	})
	return cmd
}

func runVisual(cmd *cobra.Command, _ []string, cfg *config.AuditConfig) error {
	store, err := openStore(cfg.Report)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	browser, err := visual.NewBrowser(cfg.Visual.BrowserURL, cfg.Visual.Width, cfg.Visual.Height, cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() { _ = browser.Close() }()

	out := cmd.OutOrStdout()
	started := time.Now()
	pass := visual.NewPass(browser, store, cfg.Visual)
	rep, err := pass.Run(cmd.Context(), func(done, total int) {
		fmt.Fprintf(out, "Compared %d/%d\n", done, total)
	})
	if err != nil {
		return fmt.Errorf("visual comparison failed: %w", err)
	}

	changed := 0
	for _, entry := range rep.Pages {
		if entry.Visual != nil && entry.Visual.MismatchPixels > 0 {
			changed++
		}
	}
	fmt.Fprintf(out, "Visual comparison of %d pages finished in %s, %d with changed pixels\n",
		len(rep.Paths), time.Since(started).Round(time.Second), changed)
	return nil
}

func (c *cli) newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the stored report as an xlsx workbook",
		Args:  cobra.NoArgs,
		RunE:  c.withConfig(false, runExport),
	}
	cmd.Flags().String("out", "report.xlsx", "Output file")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string, cfg *config.AuditConfig) error {
	out, _ := cmd.Flags().GetString("out")

	store, err := openStore(cfg.Report)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rep, err := store.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load report: %w", err)
	}

	if err := export.SaveXLSX(out, rep); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d pages to %s\n", len(rep.Paths), out)
	return nil
}
