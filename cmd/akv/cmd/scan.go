package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/akv/pkg/store"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List every record in the log",
		Long: `Walk the log from the first byte and print one line per record:
offset, key size, value size and key. Records failing the checksum are
marked CORRUPT with the frame size their header declares. The index is not
used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			logStore, err := store.OpenLogStore(cfg.DataFile, store.LogStoreConfig{
				MaxFieldSize: cfg.Storage.MaxFieldSize,
			})
			if err != nil {
				return fmt.Errorf("failed to open log: %w", err)
			}
			defer logStore.Close()

			it, err := logStore.Iterator(0)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var records, corrupt int64
			for it.Next() {
				if cerr := it.Corrupt(); cerr != nil {
					corrupt++
					fmt.Fprintf(out, "%d\tCORRUPT\t%d\t%v\n", it.Offset(), it.NextOffset()-it.Offset(), cerr)
					continue
				}
				records++
				record := it.Record()
				fmt.Fprintf(out, "%d\t%d\t%d\t%q\n", it.Offset(), record.KeySize, record.ValueSize, record.Key)
			}

			fmt.Fprintf(out, "%d records, %d corrupt, %d bytes\n", records, corrupt, it.End())
			return it.Err()
		},
	}
}
