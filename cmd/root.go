// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mediagrab/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagConfig   string
	flagDataDir  string
	flagQuality  string
	flagIdentity string
	flagAudio    bool
	flagPassword string
	flagEmail    string
	flagJSON     bool
	flagDebug    bool
)

// cfg holds the loaded configuration (merged: defaults < config file < environment < flags).
var cfg *config.Config

// logger writes human readable logs to stderr. Warnings only unless --debug.
var logger = zerolog.Nop()

var rootCmd = &cobra.Command{
	Use:   "mediagrab [url]",
	Short: "Fetch videos, audio and images from social platforms",
	Long: `Mediagrab downloads media from YouTube, TikTok, Instagram, Facebook,
Twitter/X and Fshare into a local artifact store. Repeat requests are served
from the store, every identity has a storage quota, and old files are swept.`,
	Args:              cobra.MaximumNArgs(1),
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              fetchRun,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: $XDG_CONFIG_HOME/mediagrab/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Directory holding artifacts and index files")
	rootCmd.PersistentFlags().StringVarP(&flagIdentity, "identity", "i", "", "Identity requests are accounted to")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "Print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")

	rootCmd.Flags().StringVarP(&flagQuality, "quality", "q", "", "Video quality: default | highest | 1080p | 720p | 480p ...")
	rootCmd.Flags().BoolVarP(&flagAudio, "audio", "a", false, "Extract audio only")
	rootCmd.Flags().StringVar(&flagPassword, "password", "", "Password for protected media")
	rootCmd.Flags().StringVar(&flagEmail, "email", "", "Send the result to this address through the notify webhook")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < environment < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	// A .env file in the working directory may carry credentials.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagQuality != "" {
		cfg.Quality = flagQuality
	}
	if flagIdentity != "" {
		cfg.Identity = flagIdentity
	}
	if flagDebug {
		cfg.Debug = true
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := zerolog.WarnLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Str("app", "mediagrab").Logger()

	return nil
}

// debugf logs a message if debug mode is enabled.
func debugf(format string, args ...interface{}) {
	logger.Debug().Msgf(format, args...)
}
