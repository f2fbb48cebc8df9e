package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chtzvt/bundleslurp/cmd/bundleslurpd/config"
	"github.com/chtzvt/bundleslurp/internal/api"
	"github.com/chtzvt/bundleslurp/internal/checkpoint"
	"github.com/chtzvt/bundleslurp/internal/extractor"
	"github.com/chtzvt/bundleslurp/internal/schema"
	"github.com/chtzvt/bundleslurp/internal/source"
	"github.com/chtzvt/bundleslurp/internal/warehouse"
	"github.com/chtzvt/bundleslurp/internal/worker"
)

var schemaFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the shard workers and the operational API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		logger, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, cancel := cmdContext()
		defer cancel()
		return runNode(ctx, cfg, logger)
	},
}

func init() {
	runCmd.Flags().StringVar(&schemaFile, "schema", "", "use a schema saved by 'discover -o' instead of sampling at startup")
}

func loadSchema(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*schema.Schema, error) {
	if schemaFile != "" {
		s, err := schema.Load(schemaFile)
		if err != nil {
			return nil, err
		}
		logger.Info("schema loaded", zap.String("file", schemaFile), zap.Int("paths", len(s.Paths)))
		return s, nil
	}
	return schema.Discover(ctx, cfg.Schema, logger), nil
}

// runNode wires every shard of this node and serves until ctx ends or a
// shard fails for good.
func runNode(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger = logger.With(zap.String("node", cfg.Node.ID))
	logger.Info("starting node", zap.Int("shards", cfg.Source.Shards), zap.String("source", cfg.Source.Type))

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	rules, err := extractor.ForName(cfg.Extractor.Rules)
	if err != nil {
		return err
	}
	ex, err := extractor.New(rules, time.Now, loc)
	if err != nil {
		return err
	}
	sch, err := loadSchema(ctx, cfg, logger)
	if err != nil {
		return err
	}
	table, err := warehouse.Open(cfg.Warehouse)
	if err != nil {
		return fmt.Errorf("open warehouse: %w", err)
	}
	store, err := checkpoint.Open(cfg.Checkpoint)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := worker.NewMetrics(reg)
	w := worker.NewWorker(cfg.Node.ID, metrics, logger)
	srv := api.NewServer(cfg.Node.ID, cfg.Api, w, reg, logger)

	for id := 0; id < cfg.Source.Shards; id++ {
		sc := cfg.ShardSource(id)
		src, err := source.Open(sc)
		if err != nil {
			return fmt.Errorf("shard %d: open source: %w", id, err)
		}
		defer src.Close()
		if _, err := w.AddShard(worker.ShardConfig{
			ID:        id,
			Source:    src,
			Table:     table,
			Store:     store,
			Extractor: ex,
			Schema:    sch,
			Pipeline:  cfg.Batch,
			Commit:    cfg.Commit,
		}); err != nil {
			return err
		}
		if sc.Type == "" || sc.Type == "file" {
			srv.Uploads[id] = source.NewAppender(sc.Path)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	srvCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()
	g.Go(func() error {
		defer stopServer()
		return w.Run(gctx)
	})
	if cfg.Api.Enabled {
		g.Go(func() error { return srv.Start(srvCtx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("node stopped")
	return nil
}
