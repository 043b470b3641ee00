package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/locametry/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "locametry",
	Short: "Reverse geocoding and land area measurement",
	Long: `Measures survey points and looks up the addresses behind them.

  measure    area, perimeter, length and width of RECT3, FOUR or POLY point sets
  geocode    reverse, search and batch lookups against Nominatim, one request per interval
  serve      the same operations over HTTP
  cache      clear the reverse geocode cache
  migrate    create or upgrade the cache schema`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
