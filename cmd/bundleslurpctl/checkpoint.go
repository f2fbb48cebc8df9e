package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/chtzvt/bundleslurp/internal/checkpoint"
)

func checkpointShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the durable checkpoint of every shard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadNodeConfig()
			if err != nil {
				return err
			}
			store, err := checkpoint.Open(cfg.Checkpoint)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			var cps []checkpoint.Checkpoint
			for id := 0; id < cfg.Source.Shards; id++ {
				cp, found, err := store.Load(ctx, id)
				if err != nil {
					return err
				}
				if !found {
					cp = checkpoint.Checkpoint{Shard: id, Offset: -1}
				}
				cps = append(cps, cp)
			}
			outResult(cps, printCheckpointsTable)
			return nil
		},
	}
}
