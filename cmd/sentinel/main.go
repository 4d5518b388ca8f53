// Package main provides the sentinel binary: it ingests newly created tokens,
// evaluates them against health thresholds and alerts on those that pass.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"token-sentinel/internal/config"
	"token-sentinel/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Token evaluation pipeline",
	Long: `sentinel watches token launch feeds, resolves market and holder metrics
for each new token, filters them against configured thresholds and sends one
alert per qualifying token.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (env SENTINEL_* overrides)")
	rootCmd.AddCommand(serveCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config and builds the logger shared by every command.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log.With(zap.String("env", cfg.App.Env)), nil
}
