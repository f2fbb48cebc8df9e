package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chtzvt/bundleslurp/internal/schema"
)

var discoverOut string

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Infer the bundle schema from the configured sample and print it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Schema.Glob == "" {
			return fmt.Errorf("schema.glob is not configured")
		}
		logger, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, cancel := cmdContext()
		defer cancel()
		s := schema.Discover(ctx, cfg.Schema, logger)
		if s.Unconstrained {
			return fmt.Errorf("no sample documents could be read from %s", cfg.Schema.Glob)
		}
		b, err := s.MarshalIndent()
		if err != nil {
			return err
		}
		if discoverOut == "" {
			fmt.Println(string(b))
			return nil
		}
		return os.WriteFile(discoverOut, append(b, '\n'), 0644)
	},
}

func init() {
	discoverCmd.Flags().StringVarP(&discoverOut, "output", "o", "", "write the schema to a file instead of stdout")
}
