package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corpusindex/corpusindex/internal/config"
)

var (
	flagDataDir  string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "corpusindex",
	Short: "Search your own files: documents, images, audio, and video",
	Long: `corpusindex indexes a personal corpus of files for hybrid lexical and
semantic search, with VLM-backed image description and speech transcription.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "override the configured data directory")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
}

// Execute runs the root command. It is main's sole entry point.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig builds the configuration for the current working directory,
// applying the --data-dir/--log-level flag overrides on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if flagDataDir != "" {
		cfg.Server.DataDir = flagDataDir
	}
	if flagLogLevel != "" {
		cfg.Server.LogLevel = flagLogLevel
	}
	return cfg, nil
}

// bootstrap loads configuration and wires a fresh app. Callers must Close it.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}
