package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chtzvt/bundleslurp/internal/transformer"
)

func inspectCmd() *cobra.Command {
	var rows int
	cmd := &cobra.Command{
		Use:   "inspect <file.parquet>",
		Short: "Print the schema and row count of a parquet part file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			table, err := transformer.ReadParquetTable(context.Background(), f)
			if err != nil {
				return err
			}
			defer table.Release()

			fmt.Printf("rows: %d\ncolumns: %d\n", table.NumRows(), table.NumCols())
			fmt.Println(table.Schema())
			if rows <= 0 {
				return nil
			}

			if _, err := f.Seek(0, 0); err != nil {
				return err
			}
			tr, err := transformer.ForExtension("parquet")
			if err != nil {
				return err
			}
			dec, ok := tr.(transformer.Decoder)
			if !ok {
				return fmt.Errorf("parquet transformer cannot decode")
			}
			recs, err := dec.Decode(f)
			if err != nil {
				return err
			}
			if len(recs) > rows {
				recs = recs[:rows]
			}
			outResult(recs, printRecordsTable)
			return nil
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 0, "also print the first N rows")
	return cmd
}
