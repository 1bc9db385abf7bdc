// Package cli implements the command-line interface for vectier.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/hupe1980/vectier/internal/config"
)

var (
	// Version information set at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile string
	debug   bool

	// Loaded by PersistentPreRunE
	cfg    *config.Config
	logger *slog.Logger
)

// SetVersionInfo sets the version information from build flags.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

var rootCmd = &cobra.Command{
	Use:   "vectier",
	Short: "Tiered vector-similarity engine",
	Long: `vectier indexes embeddings with a DiskANN-style graph per hot tier and
moves cold tiers to archival object storage (local, S3 or MinIO) while keeping
them queryable.

Examples:
  # Measure recall and latency on synthetic data
  vectier bench --records 10000 --queries 100

  # Archive the oldest tiers to S3 and query across all tiers
  VECTIER_ARCHIVE_BACKEND=s3 VECTIER_ARCHIVE_BUCKET=my-bucket vectier migrate-demo`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = newLogger(cmd.ErrOrStderr(), cfg.Log, debug)
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./vectier.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(migrateDemoCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger returns a slog logger backed by charmbracelet/log.
func newLogger(w io.Writer, lc config.LogConfig, debug bool) *slog.Logger {
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		level = log.InfoLevel
	}
	if debug {
		level = log.DebugLevel
	}

	opts := log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	}
	if lc.Format == "json" {
		opts.Formatter = log.JSONFormatter
	}
	return slog.New(log.NewWithOptions(w, opts))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "vectier %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}
