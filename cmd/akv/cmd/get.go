package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a value for a key",
		Long: `Print the latest value of a key. Exits non-zero when the key has no value.

Example:
  akv get mykey`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, _, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer kv.Close()

			value, found, err := kv.Get([]byte(args[0]))
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: %s", errKeyNotFound, args[0])
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", value)
			return nil
		},
	}
}
