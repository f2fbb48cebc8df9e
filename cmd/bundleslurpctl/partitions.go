package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/chtzvt/bundleslurp/internal/record"
	"github.com/chtzvt/bundleslurp/internal/warehouse"
)

func partitionsCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "partitions",
		Short: "List the date partitions of the warehouse table within [start, end]",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := record.ParseRange(start, end)
			if err != nil {
				return err
			}
			cfg, err := loadNodeConfig()
			if err != nil {
				return err
			}
			table, err := warehouse.Open(cfg.Warehouse)
			if err != nil {
				return err
			}
			keys, err := table.Partitions(context.Background(), from, to)
			if err != nil {
				return err
			}
			outResult(keys, printPartitionsTable(table))
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first processing date, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last processing date, YYYY-MM-DD (defaults to --start)")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}
