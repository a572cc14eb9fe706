package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"RegimeML/internal/di"
	"RegimeML/pkg/config"
)

var configPath string

// rootCmd is the base command for the regime CLI
var rootCmd = &cobra.Command{
	Use:   "regime",
	Short: "Market regime detection: train, predict and export",
	Long: `regime labels historical OHLC bars as RANGING, TRENDING or VOLATILE,
trains a soft-voting tree ensemble on engineered features and exports it for
the execution side.

Example usage:
  regime train --config config/config.yaml
  regime predict --rows 5 --format json
  regime export
  regime include --settings models/regime_config.json`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
	rootCmd.Version = di.Version
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if _, err := os.Stat(path); os.IsNotExist(err) && !rootCmd.PersistentFlags().Changed("config") {
		path = ""
	}
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
