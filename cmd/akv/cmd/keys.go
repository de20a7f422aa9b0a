package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "List keys that currently have a value",
		Long: `List indexed keys in byte order, skipping deleted ones.

Example:
  akv keys --prefix user:`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, _ := cmd.Flags().GetString("prefix")

			kv, _, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer kv.Close()

			for _, key := range kv.Keys([]byte(prefix)) {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}

	keysCmd.Flags().String("prefix", "", "Only list keys with this prefix")
	return keysCmd
}
