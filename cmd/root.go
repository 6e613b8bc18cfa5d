package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reliefmap/pcoder/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pcoder",
	Short: "Attach Philippine P-codes to humanitarian report tables",
	Long:  "Infers the administrative level of each row in extracted situation-report tables, matches names against a P-code gazetteer, and exports the resolved codes.",
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
