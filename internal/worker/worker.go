package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chtzvt/bundleslurp/internal/checkpoint"
	"github.com/chtzvt/bundleslurp/internal/commit"
	"github.com/chtzvt/bundleslurp/internal/extractor"
	"github.com/chtzvt/bundleslurp/internal/pipeline"
	"github.com/chtzvt/bundleslurp/internal/schema"
	"github.com/chtzvt/bundleslurp/internal/source"
)

// ShardConfig is everything a worker needs to run one shard.
type ShardConfig struct {
	ID        int
	Source    source.Source
	Table     commit.Table
	Store     checkpoint.Store
	Extractor *extractor.Extractor
	Schema    *schema.Schema
	Pipeline  pipeline.Config
	Commit    commit.Config
}

type unit struct {
	shard *pipeline.Shard
	store checkpoint.Store
}

// Worker supervises the shards of one node. Shards run concurrently and
// independently; a shard that fails for good stops the whole worker.
type Worker struct {
	ID      string
	Logger  *zap.Logger
	Metrics *Metrics

	mu      sync.Mutex
	units   []unit
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewWorker constructs a worker with no shards.
func NewWorker(id string, metrics *Metrics, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Worker{
		ID:      id,
		Logger:  logger.Named("worker").With(zap.String("node", id)),
		Metrics: metrics,
		stopped: make(chan struct{}),
	}
}

// AddShard builds the shard loop and its committer, wired to the worker's
// metrics.
func (w *Worker) AddShard(cfg ShardConfig) (*pipeline.Shard, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, u := range w.units {
		if u.shard.ID == cfg.ID {
			return nil, fmt.Errorf("shard %d already added", cfg.ID)
		}
	}
	if cfg.Source == nil || cfg.Table == nil || cfg.Store == nil || cfg.Extractor == nil {
		return nil, fmt.Errorf("shard %d: source, table, checkpoint store and extractor are required", cfg.ID)
	}
	sch := cfg.Schema
	if sch == nil {
		sch = schema.Unconstrained()
	}
	committer := commit.New(cfg.ID, cfg.Table, cfg.Store, cfg.Commit, w.Logger.Named("commit"),
		commit.WithObserver(w.Metrics.CommitEvent))
	sh := &pipeline.Shard{
		ID:        cfg.ID,
		Source:    cfg.Source,
		Extractor: cfg.Extractor,
		Schema:    sch,
		Committer: committer,
		Config:    cfg.Pipeline,
		Logger:    w.Logger.Named("shard"),
		Metrics:   w.Metrics,
	}
	w.units = append(w.units, unit{shard: sh, store: cfg.Store})
	w.Metrics.Track(cfg.ID)
	return sh, nil
}

// Shards returns the ids of the added shards.
func (w *Worker) Shards() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]int, len(w.units))
	for i, u := range w.units {
		ids[i] = u.shard.ID
	}
	return ids
}

// Run starts every shard and blocks until they all return. It returns nil
// after Stop or cancellation, and the first shard error otherwise.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stopped)

	w.mu.Lock()
	units := append([]unit(nil), w.units...)
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()
	defer cancel()

	if len(units) == 0 {
		return errors.New("worker has no shards")
	}

	for _, u := range units {
		cp, found, err := u.store.Load(ctx, u.shard.ID)
		if err != nil {
			return fmt.Errorf("shard %d: load checkpoint: %w", u.shard.ID, err)
		}
		if found {
			w.Metrics.Restored(cp)
		}
	}

	w.Logger.Info("worker starting", zap.Int("shards", len(units)))
	g, gctx := errgroup.WithContext(ctx)
	for _, u := range units {
		sh := u.shard
		g.Go(func() error {
			if err := sh.Run(gctx); err != nil {
				w.Logger.Error("shard failed", zap.Int("shard", sh.ID), zap.Error(err))
				return fmt.Errorf("shard %d: %w", sh.ID, err)
			}
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		return err
	}
	w.Logger.Info("worker stopped")
	return nil
}

// Stop cancels the shards and waits for Run to return. Commits in flight
// are allowed to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-w.stopped
}

// Status returns the per-shard snapshot.
func (w *Worker) Status() []ShardSnapshot {
	return w.Metrics.Snapshot()
}
