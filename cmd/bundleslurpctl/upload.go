package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chtzvt/bundleslurp/internal/api"
	"github.com/chtzvt/bundleslurp/internal/compression"
)

func uploadCmd() *cobra.Command {
	var shard int
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Append bundle files to a shard's log; .gz, .bz2 and .zst files are sent compressed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client := cliClient()
			var results []*api.UploadResponse
			for _, name := range args {
				f, err := os.Open(name)
				if err != nil {
					return err
				}
				res, err := client.UploadBundles(ctx, shard, f, compression.FromFilename(name))
				f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				results = append(results, res)
			}
			outResult(results, printUploadTable(args))
			return nil
		},
	}
	cmd.Flags().IntVar(&shard, "shard", 0, "target shard")
	return cmd
}
