package main

import (
	"context"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-shard progress of a running node",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := cliClient().Status(ctx)
			if err != nil {
				return err
			}
			outResult(st, printStatusTable)
			return nil
		},
	}
}
