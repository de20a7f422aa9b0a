package cmd

import (
	"github.com/spf13/cobra"
	"github.com/ssargent/akv/pkg/store"
)

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Put a key-value pair",
		Long: `Append a key-value pair to the log and index it.

Example:
  akv put mykey myvalue`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeValue(cmd, args[0], args[1], (*store.KVStore).Insert)
		},
	}
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <key> <value>",
		Short: "Replace the value of a key",
		Long: `Append a new record for the key. The previous record stays in the log.

Example:
  akv update mykey newvalue`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeValue(cmd, args[0], args[1], (*store.KVStore).Update)
		},
	}
}

func writeValue(cmd *cobra.Command, key, value string, write func(*store.KVStore, []byte, []byte) error) error {
	kv, _, _, err := openStore(cmd)
	if err != nil {
		return err
	}

	if err := write(kv, []byte(key), []byte(value)); err != nil {
		_ = kv.Close()
		return err
	}
	if err := closeStore(kv); err != nil {
		return err
	}

	cmd.Printf("Successfully stored key '%s'\n", key)
	return nil
}
