// Package cmd provides the command-line interface for SiteDiff.
// It handles command parsing, configuration loading and wiring of the
// audit, dashboard, visual and export components.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/masahif/sitediff/internal/config"
	"github.com/masahif/sitediff/internal/logging"
	"github.com/masahif/sitediff/internal/storage"
)

var (
	version   string
	buildTime string
)

// rootCmd is the command tree used by Execute
var rootCmd = newRootCmd()

// Execute runs the root command until it finishes or the process receives
// an interrupt
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

// cli holds the state shared by the commands of one tree
type cli struct {
	v       *viper.Viper
	cfgFile string
}

type flagBinding struct {
	viperKey string
	flagName string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	defaults := config.DefaultConfig()

	root := &cobra.Command{
		Use:   "sitediff",
		Short: "Compare an old and a new deployment of a website",
		Long: `SiteDiff audits a site migration.

It crawls the old site, probes every discovered path on the new site,
compares status, title, h1, description and links, and detects redirect
consolidation. Results can be browsed on a dashboard, refreshed per path,
compared visually and exported to a spreadsheet.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return c.initConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is ./sitediff.yml)")
	flags.Bool("show-config", false, "Display current configuration in YAML format and exit")
	flags.String("log-level", defaults.Log.Level, "Log level: debug, info, warn or error")
	flags.String("log-format", defaults.Log.Format, "Log format: json or text")
	flags.String("log-file", "", "Also write logs to this file, rotated by size")
	flags.String("old-base", "", "Base URL of the old site")
	flags.String("new-base", "", "Base URL of the new site")
	flags.String("report-backend", defaults.Report.Backend, "Report storage backend: json or sqlite")
	flags.StringP("report", "o", defaults.Report.Path, "Path of the report file or database")

	c.bindFlags(flags, []flagBinding{
		{"log.level", "log-level"},
		{"log.format", "log-format"},
		{"log.file", "log-file"},
		{"old_base", "old-base"},
		{"new_base", "new-base"},
		{"report.backend", "report-backend"},
		{"report.path", "report"},
	})

	root.AddCommand(
		c.newCrawlCmd(defaults),
		c.newServeCmd(defaults),
		c.newRefreshCmd(),
		c.newVisualCmd(defaults),
		c.newExportCmd(),
	)
	return root
}

func (c *cli) bindFlags(flags *pflag.FlagSet, bindings []flagBinding) {
	for _, bind := range bindings {
		if err := c.v.BindPFlag(bind.viperKey, flags.Lookup(bind.flagName)); err != nil {
			// Log the error but continue - non-critical for operation
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}
}

// initConfig reads in config file and ENV variables if set
func (c *cli) initConfig() error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	} else {
		c.v.AddConfigPath(".")
		c.v.SetConfigType("yaml")
		c.v.SetConfigName("sitediff")
	}

	c.v.SetEnvPrefix("SD")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if c.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}
	fmt.Fprintf(os.Stderr, "Using config file: %s\n", c.v.ConfigFileUsed())
	return nil
}

// loadConfig merges defaults, config file, environment and flags
func (c *cli) loadConfig() (*config.AuditConfig, error) {
	cfg := config.DefaultConfig()
	if err := c.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.UserAgent == "SiteDiff/1.0" {
		cfg.UserAgent = generateUserAgent()
	}
	return cfg, nil
}

// runFunc is the body of a command once configuration and logging are set up
type runFunc func(cmd *cobra.Command, args []string, cfg *config.AuditConfig) error

// withConfig loads configuration, handles --show-config, validates and
// installs the logger before calling run. Commands that only read the
// stored report pass needSites=false and skip base URL validation.
func (c *cli) withConfig(needSites bool, run runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := c.loadConfig()
		if err != nil {
			return err
		}

		if show, _ := cmd.Flags().GetBool("show-config"); show {
			return showCurrentConfig(cmd.OutOrStdout(), cfg)
		}

		if needSites {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
		} else if cfg.Report.Path == "" {
			return config.ErrEmptyReportPath
		}

		closer, err := logging.SetDefault(logging.FromAuditConfig(cfg.Log))
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		defer func() { _ = closer.Close() }()

		return run(cmd, args, cfg)
	}
}

func generateUserAgent() string {
	if version != "" && version != "dev" {
		return fmt.Sprintf("SiteDiff/%s", version)
	}
	return "SiteDiff/dev"
}

// openStore opens the configured report store, creating its directory
func openStore(cfg config.ReportConfig) (storage.ReportStore, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	store, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open report store: %w", err)
	}
	return store, nil
}

func showCurrentConfig(w io.Writer, cfg *config.AuditConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Configuration validation failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Displaying configuration anyway...\n\n")
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Fprintf(w, "# Current SiteDiff Configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file search paths: ./sitediff.yml\n")
	fmt.Fprintf(w, "# Environment variables prefix: SD_\n\n")

	fmt.Fprint(w, string(yamlData))

	fmt.Fprintf(w, "\n# Configuration source priority:\n")
	fmt.Fprintf(w, "# 1. Command-line arguments (highest priority)\n")
	fmt.Fprintf(w, "# 2. Environment variables (SD_ prefix)\n")
	fmt.Fprintf(w, "# 3. Configuration file (sitediff.yml)\n")
	fmt.Fprintf(w, "# 4. Default values (lowest priority)\n")

	return nil
}
