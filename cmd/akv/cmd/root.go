/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"
	"github.com/ssargent/akv/pkg/config"
	"github.com/ssargent/akv/pkg/di"
	"github.com/ssargent/akv/pkg/store"
)

var container *di.Container

// SetContainer injects the dependency container used by commands
func SetContainer(c *di.Container) {
	container = c
}

// errKeyNotFound makes lookups of absent keys exit non-zero
var errKeyNotFound = errors.New("key not found")

// NewRootCmd builds the akv command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "akv",
		Short: "akv - append-only key-value store",
		Long: `akv stores binary key/value pairs in a single append-only log file
and keeps an in-memory index of the latest record for every key.

Every command opens the log, rebuilds the index unless --no-load is given,
runs, and closes the log again.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("file", "f", "", "Log file (overrides data_file from the config)")
	flags.String("config", "", "Path to config file (default: OS-specific location when present)")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error")
	flags.Bool("no-load", false, "Do not rebuild the index when opening the log")

	rootCmd.AddCommand(
		newInitCmd(),
		newPutCmd(),
		newUpdateCmd(),
		newGetCmd(),
		newDeleteCmd(),
		newInsertRawCmd(),
		newGetAtCmd(),
		newFindCmd(),
		newEndCmd(),
		newLoadCmd(),
		newScanCmd(),
		newKeysCmd(),
		newStatsCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newExportCmd(),
		newServeCmd(),
	)

	return rootCmd
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadSettings resolves the configuration from --config, the default config
// path and the global flag overrides
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	switch {
	case configPath != "":
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case config.ConfigExists(config.GetDefaultConfigPath()):
		loaded, err := config.LoadConfig(config.GetDefaultConfigPath())
		if err != nil {
			return nil, err
		}
		cfg = loaded
	default:
		cfg = config.DefaultConfig()
	}

	if file, _ := cmd.Flags().GetString("file"); file != "" {
		cfg.DataFile = file
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if noLoad, _ := cmd.Flags().GetBool("no-load"); noLoad {
		cfg.Storage.LoadOnOpen = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore opens the configured log and rebuilds the index when the
// configuration asks for it. The caller closes the store.
func openStore(cmd *cobra.Command) (*store.KVStore, *config.Config, *log.Logger, error) {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return nil, nil, nil, err
	}

	kv, err := store.Open(cfg.DataFile, cfg.StoreConfig(logger))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	if cfg.Storage.LoadOnOpen {
		result, err := kv.Load()
		if err != nil {
			_ = kv.Close()
			return nil, nil, nil, fmt.Errorf("failed to load index: %w", err)
		}
		if result.TailTruncated > 0 {
			cmd.Printf("Repaired torn tail: %d bytes truncated\n", result.TailTruncated)
		}
	}

	return kv, cfg, logger, nil
}

// closeStore closes a store the command wrote to. Close runs the final
// fsync, so its error means the write may not be durable.
func closeStore(kv interface{ Close() error }) error {
	if err := kv.Close(); err != nil {
		return fmt.Errorf("failed to sync store: %w", err)
	}
	return nil
}
