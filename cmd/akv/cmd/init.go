/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/akv/pkg/config"
)

// newInitCmd writes a starter configuration file
func newInitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with a generated API key",
		Long: `Write a configuration file holding the default settings and a freshly
generated API key for the REST server.

The file goes to --config, or to the OS-specific default location.
An existing file is left alone unless --force is given.

Examples:
  akv init
  akv init --config ./akv.yaml --file ./data/akv.log --print-key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			dataFile, _ := cmd.Flags().GetString("file")
			force, _ := cmd.Flags().GetBool("force")
			printKey, _ := cmd.Flags().GetBool("print-key")

			if configPath == "" {
				configPath = config.GetDefaultConfigPath()
			}

			if config.ConfigExists(configPath) && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
			}

			cfg, err := config.BootstrapConfig(configPath, dataFile)
			if err != nil {
				return err
			}

			cmd.Printf("Wrote config to %s\n", configPath)
			cmd.Printf("Data file: %s\n", cfg.DataFile)
			if printKey {
				cmd.Printf("API key: %s\n", cfg.Security.APIKey)
			} else {
				cmd.Printf("API key: %s...\n", cfg.Security.APIKey[:8])
			}
			return nil
		},
	}

	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	initCmd.Flags().Bool("print-key", false, "Print the full generated API key")
	return initCmd
}
