// Package cmd implements the CLI commands for tardsplayad.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tardsplaya/tardsplayad/internal/config"
	"github.com/tardsplaya/tardsplayad/internal/logging"
	"github.com/tardsplaya/tardsplayad/internal/version"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	// cfg is the loaded configuration, populated by initConfig in
	// PersistentPreRunE before any subcommand runs.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "tardsplayad",
	Short:   "Multi-stream HLS ingestion and dispatch engine",
	Version: version.Short(),
	Long: `tardsplayad resolves HLS channels to master playlists, filters ad
segments out of the media timeline, and pipes the surviving segments into a
local player process over stdin.

It runs either as a single-channel CLI ("watch") or as a small local
control-plane server managing any number of concurrently ingested
channels ("serve").`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, ./configs, /etc/tardsplayad, $HOME/.tardsplayad)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging.format (text, json)")
}

// initConfig loads configuration via internal/config.Load, applies any
// --log-level/--log-format overrides, and installs the resulting slog
// logger as the process default. Every subsequent component (coordinator,
// stream, player, api) pulls its logger from slog.Default() unless a
// command wires one through explicitly.
func initConfig() error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	if logFormat != "" {
		loaded.Logging.Format = logFormat
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	cfg = loaded
	slog.SetDefault(logging.NewLogger(cfg.Logging))
	return nil
}
