package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/taskd/internal/config"
	"github.com/mschirtzinger/taskd/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Manage the taskd configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = filepath.Join(config.ConfigDir(), config.FileName)
		}
		if err := config.WriteFile(path, cfg); err != nil {
			return err
		}
		pass(cmd.OutOrStdout(), "Wrote %s", ui.RenderAccent(path))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cfg.Encode(cmd.OutOrStdout())
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
