package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/akv/pkg/storage"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <pebble-dir>",
		Short: "Copy live keys into a Pebble database",
		Long: `Write the latest value of every live key into a Pebble database
directory. Deleted keys are not exported.

Example:
  akv export ./snapshot.pebble`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, _, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer kv.Close()

			result, err := storage.Export(kv, args[0])
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			cmd.Printf("Exported %d keys (%d bytes) to %s\n", result.Keys, result.Bytes, args[0])
			return nil
		},
	}
}
