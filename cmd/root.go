package cmd

import (
	"fmt"
	"log/slog"
	"os"

	cfgpkg "github.com/KaramelBytes/clusterlens/internal/config"
	"github.com/KaramelBytes/clusterlens/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	debug     bool
	logFormat string
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int

	// Loaded configuration
	cfg *cfgpkg.Global
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "clusterlens",
	Short: "ClusterLens: find and explain clusters in tabular data",
	Long: `ClusterLens loads a CSV, TSV or XLSX dataset, picks the number of clusters with the
elbow method, runs K-means on the selected features and explains what sets each cluster apart.
Results can be exported per cluster, charted, served over HTTP, or questioned with a language model.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentPreRunE = loadConfig
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.clusterlens/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text|json (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max attempts per model request (overrides config)")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg = c

	// Apply CLI overrides if provided
	f := cmd.Root().PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("log-format") {
		if logFormat != "text" && logFormat != "json" {
			return fmt.Errorf("unsupported --log-format: %s (use text|json)", logFormat)
		}
		cfg.LogFormat = logFormat
	}
	log = logger.Init(cfg.LogFormat, debug)
	log.Debug("config loaded", "command", cmd.Name(), "provider", cfg.Provider, "model", cfg.Model)
	return nil
}
