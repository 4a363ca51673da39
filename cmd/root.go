package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geolookup-cli/internal/config"
)

var (
	cfg     *config.Config
	dbPath  string
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "geolookup",
	Short: "Offline speed-limit and reverse-geocoding engine",
	Long:  "Builds compact road, place and boundary datasets from OpenStreetMap extracts and answers speed-limit and address lookups against them.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		if dbPath != "" {
			cfg.Store.Path = dbPath
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "dataset path (default from config store.path)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
