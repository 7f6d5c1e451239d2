package main

import (
	"github.com/spf13/cobra"

	"github.com/easyfix/easyfix-go/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage easyfix configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented config skeleton to ./easyfix.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "easyfix.yaml"
		if err := config.WriteSkeleton(path); err != nil {
			return err
		}
		logger.WithField("path", path).Info("Config skeleton written")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
