// Package pipeline runs the per-shard loop: read documents after the
// checkpoint, flatten them, gather micro-batches and hand each batch to the
// committer in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chtzvt/bundleslurp/internal/batch"
	"github.com/chtzvt/bundleslurp/internal/commit"
	"github.com/chtzvt/bundleslurp/internal/document"
	"github.com/chtzvt/bundleslurp/internal/extractor"
	"github.com/chtzvt/bundleslurp/internal/schema"
	"github.com/chtzvt/bundleslurp/internal/source"
)

const maxLoggedIssues = 5

// Config holds the batch triggers and polling behaviour of a shard.
type Config struct {
	MaxRecords   int           `mapstructure:"max_records"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// ExitWhenCaughtUp commits whatever is buffered once the source has
	// nothing more and returns, instead of polling forever.
	ExitWhenCaughtUp bool `mapstructure:"exit_when_caught_up"`
}

func DefaultConfig() Config {
	return Config{MaxRecords: 500, MaxWait: 30 * time.Second, PollInterval: time.Second}
}

// Shard owns one disjoint slice of the source and its own checkpoint.
type Shard struct {
	ID        int
	Source    source.Source
	Extractor *extractor.Extractor
	Schema    *schema.Schema
	Committer *commit.Committer
	Config    Config
	Logger    *zap.Logger
	Metrics   Metrics
	Now       func() time.Time
}

func (s *Shard) defaults() {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Metrics == nil {
		s.Metrics = NopMetrics{}
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.Config.PollInterval <= 0 {
		s.Config.PollInterval = time.Second
	}
}

// Run processes the shard until ctx is cancelled or a commit fails for good.
// Cancellation drops records that have not been handed to the committer;
// they are read again after restart. A commit already in progress finishes.
func (s *Shard) Run(ctx context.Context) error {
	s.defaults()
	log := s.Logger.With(zap.Int("shard", s.ID))

	cp, found, err := s.Committer.Recover(ctx)
	if err != nil {
		return err
	}
	after := source.Beginning
	if found {
		after = cp.Offset
	}
	if err := s.Source.Seek(ctx, after); err != nil {
		return fmt.Errorf("seek source after %d: %w", after, err)
	}

	acc := batch.NewAccumulator(s.Config.MaxRecords, s.Config.MaxWait)
	batches := make(chan *batch.Batch, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(batches)
		return s.read(gctx, log, acc, batches)
	})
	g.Go(func() error {
		for b := range batches {
			if gctx.Err() != nil {
				return nil
			}
			start := s.Now()
			cp, err := s.Committer.Commit(gctx, b)
			if err != nil {
				return err
			}
			s.Metrics.BatchCommitted(s.ID, b, cp, s.Now().Sub(start))
		}
		return nil
	})

	err = g.Wait()
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		docs, recs := acc.Pending()
		log.Info("shard stopped", zap.Int("dropped_documents", docs), zap.Int("dropped_records", recs))
		return nil
	}
	return err
}

func (s *Shard) read(ctx context.Context, log *zap.Logger, acc *batch.Accumulator, out chan<- *batch.Batch) error {
	send := func(b *batch.Batch) bool {
		if b == nil {
			return true
		}
		select {
		case out <- b:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		doc, err := s.Source.Next(ctx)
		switch {
		case errors.Is(err, source.ErrCaughtUp):
			if s.Config.ExitWhenCaughtUp {
				send(acc.Flush())
				return nil
			}
			if !send(acc.MaybeFlush(s.Now())) {
				return nil
			}
			if !s.wait(ctx, acc) {
				return nil
			}
			continue
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return fmt.Errorf("read source: %w", err)
		}

		s.accept(log, acc, doc)
		if !send(acc.MaybeFlush(s.Now())) {
			return nil
		}
	}
}

// wait sleeps for the poll interval, or until the age trigger is due if
// that comes first. It reports false when ctx ends.
func (s *Shard) wait(ctx context.Context, acc *batch.Accumulator) bool {
	d := s.Config.PollInterval
	if deadline, ok := acc.Deadline(); ok {
		if until := deadline.Sub(s.Now()); until < d {
			d = until
		}
	}
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// accept flattens one document into the accumulator. Unusable documents
// still advance the batch range so they are not read again.
func (s *Shard) accept(log *zap.Logger, acc *batch.Accumulator, doc source.Document) {
	now := s.Now()
	val, err := document.Parse(doc.Raw)
	if err == nil && !val.IsObject() {
		err = extractor.ErrNotObject
	}
	if err != nil {
		log.Warn("skipping unreadable document", zap.Int64("offset", doc.Offset), zap.Error(err))
		s.Metrics.DocumentRejected(s.ID)
		acc.Accept(now, doc.Offset)
		return
	}

	if issues := s.Schema.Validate(val); len(issues) > 0 {
		s.Metrics.SchemaIssues(s.ID, len(issues))
		shown := issues
		if len(shown) > maxLoggedIssues {
			shown = shown[:maxLoggedIssues]
		}
		fields := make([]string, len(shown))
		for i, is := range shown {
			fields[i] = is.String()
		}
		log.Debug("document differs from sample schema",
			zap.Int64("offset", doc.Offset), zap.Int("issues", len(issues)), zap.Strings("first", fields))
	}

	res := s.Extractor.ExtractValue(val)
	for _, e := range res.Skipped {
		log.Warn("skipping malformed sub-entry", zap.Int64("offset", doc.Offset), zap.String("bundle", res.BundleID), zap.Error(e))
	}
	if len(res.Skipped) > 0 {
		s.Metrics.SubEntriesSkipped(s.ID, len(res.Skipped))
	}
	s.Metrics.DocumentRead(s.ID, len(res.Records))
	acc.Accept(now, doc.Offset, res.Records...)
}
