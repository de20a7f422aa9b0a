package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/akv/pkg/backup"
)

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <destination>",
		Short: "Write a zstd-compressed copy of the log",
		Long: `Copy the log file into a zstd-compressed backup. The destination is
written to a temporary file and renamed into place once complete.

Example:
  akv backup ./akv.log.zst`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			result, err := backup.Backup(cfg.DataFile, args[0])
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			cmd.Printf("Backed up %d bytes to %s (%d compressed) in %s\n",
				result.Bytes, args[0], result.CompressedBytes, result.Duration)
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	restoreCmd := &cobra.Command{
		Use:   "restore <backup>",
		Short: "Restore the log from a backup",
		Long: `Decompress a backup into the configured log file. Every record is
verified while writing, and the log is only replaced when the whole backup
decodes cleanly. With --skip-corrupt, records failing the checksum are
copied as they are and reported, the same way load skips them.

Example:
  akv restore ./akv.log.zst --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			skipCorrupt, _ := cmd.Flags().GetBool("skip-corrupt")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			result, err := backup.Restore(args[0], cfg.DataFile, backup.RestoreOptions{
				Force:        force,
				SkipCorrupt:  skipCorrupt,
				MaxFieldSize: cfg.Storage.MaxFieldSize,
			})
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			cmd.Printf("Restored %d records (%d bytes) to %s\n", result.Records, result.Bytes, cfg.DataFile)
			if result.RecordsSkipped > 0 {
				cmd.Printf("Skipped %d corrupt records\n", result.RecordsSkipped)
			}
			return nil
		},
	}

	restoreCmd.Flags().Bool("force", false, "Replace an existing log file")
	restoreCmd.Flags().Bool("skip-corrupt", false, "Keep records that fail the checksum instead of aborting")
	return restoreCmd
}
