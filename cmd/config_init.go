package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JoshuaOlubori/truemeds-v2/internal/config"
)

var configInitOut string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteExample(configInitOut); err != nil {
			return err
		}
		zap.L().Info("wrote config", zap.String("path", configInitOut))
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVarP(&configInitOut, "out", "o", "config.yaml", "output path")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
