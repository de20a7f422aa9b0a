package cmd

import (
	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Long: `Append a tombstone for the key.

Example:
  akv delete mykey`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, _, _, err := openStore(cmd)
			if err != nil {
				return err
			}

			if err := kv.Delete([]byte(args[0])); err != nil {
				_ = kv.Close()
				return err
			}
			if err := closeStore(kv); err != nil {
				return err
			}

			cmd.Printf("Successfully deleted key '%s'\n", args[0])
			return nil
		},
	}
}
