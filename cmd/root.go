package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JoshuaOlubori/truemeds-v2/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "truemeds",
	Short: "Medication authenticity verification service",
	Long:  "Accepts medication photos, classifies them as fake or original via a generative-AI oracle, and serves verification results and admin statistics.",
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
