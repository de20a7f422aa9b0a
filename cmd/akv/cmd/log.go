package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newInsertRawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insert-raw <key> <value>",
		Short: "Append a record without indexing it",
		Long: `Append a key-value pair to the log and print its offset. The index is
not updated, so get does not see the value until the log is loaded again.

Example:
  akv insert-raw mykey myvalue`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, _, _, err := openStore(cmd)
			if err != nil {
				return err
			}

			offset, err := kv.InsertRaw([]byte(args[0]), []byte(args[1]))
			if err != nil {
				_ = kv.Close()
				return err
			}
			if err := closeStore(kv); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", offset)
			return nil
		},
	}
}

func newGetAtCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-at <offset>",
		Short: "Decode the record at a byte offset",
		Long: `Read and verify the record whose header starts at offset.

Example:
  akv get-at 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			offset, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid offset %q: %w", args[0], err)
			}

			kv, _, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer kv.Close()

			record, err := kv.GetAt(offset)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "offset=%d size=%d key=%q value=%q\n",
				offset, record.Size(), record.Key, record.Value)
			return nil
		},
	}
}

func newFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <key>",
		Short: "Scan the log for the latest record of a key",
		Long: `Scan the whole log without using the index and print the offset of the
key's latest record. Exits non-zero when the key has no live record.

Example:
  akv find mykey`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, _, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer kv.Close()

			offset, found, err := kv.Find([]byte(args[0]))
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: %s", errKeyNotFound, args[0])
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", offset)
			return nil
		},
	}
}

func newEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "Print the offset the next record will be written at",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, _, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer kv.Close()

			end, err := kv.SeekToEnd()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", end)
			return nil
		},
	}
}
