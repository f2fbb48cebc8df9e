// Package commit writes batches to the warehouse and advances the shard
// checkpoint only once every partition of the batch is stored.
package commit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/chtzvt/bundleslurp/internal/batch"
	"github.com/chtzvt/bundleslurp/internal/checkpoint"
	"github.com/chtzvt/bundleslurp/internal/warehouse"
)

var (
	ErrRetriesExhausted = errors.New("batch commit retries exhausted")
	ErrCheckpoint       = errors.New("checkpoint save failed")
)

// State is the progress of one batch through the committer.
type State int

const (
	Pending State = iota
	Writing
	Written
	Checkpointed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Writing:
		return "writing"
	case Written:
		return "written"
	case Checkpointed:
		return "checkpointed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Event reports a state change. Index and Total are set while Writing; Err
// is set when an attempt fails and the batch returns to Pending.
type Event struct {
	Shard   int
	Token   string
	State   State
	Index   int
	Total   int
	Attempt int
	Err     error
}

// Observer receives events synchronously on the committing goroutine.
type Observer func(Event)

// Table is where partition groups are appended.
type Table interface {
	Append(ctx context.Context, token string, g batch.Group) (string, error)
}

// OrphanFinder is implemented by tables that can list leftovers of a
// crashed commit.
type OrphanFinder interface {
	Orphans(ctx context.Context, shard int, after int64) ([]warehouse.Part, error)
}

// Config bounds the whole-batch retry.
type Config struct {
	MaxRetries      uint64        `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

func DefaultConfig() Config {
	return Config{MaxRetries: 5, InitialInterval: time.Second, MaxInterval: 30 * time.Second}
}

type Committer struct {
	shard    int
	table    Table
	store    checkpoint.Store
	cfg      Config
	logger   *zap.Logger
	observer Observer
	clock    func() time.Time
}

type Option func(*Committer)

func WithObserver(o Observer) Option {
	return func(c *Committer) { c.observer = o }
}

func WithClock(clock func() time.Time) Option {
	return func(c *Committer) { c.clock = clock }
}

func New(shard int, table Table, store checkpoint.Store, cfg Config, logger *zap.Logger, opts ...Option) *Committer {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Committer{
		shard:  shard,
		table:  table,
		store:  store,
		cfg:    cfg,
		logger: logger.With(zap.Int("shard", shard)),
		clock:  time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Committer) emit(e Event) {
	if c.observer != nil {
		e.Shard = c.shard
		c.observer(e)
	}
}

// Recover loads the checkpoint and reports part files left behind by a
// commit that never reached its checkpoint. Those batches are replayed and
// rewritten under the same names.
func (c *Committer) Recover(ctx context.Context) (checkpoint.Checkpoint, bool, error) {
	cp, found, err := c.store.Load(ctx, c.shard)
	if err != nil {
		return cp, false, fmt.Errorf("load checkpoint: %w", err)
	}
	after := int64(-1)
	if found {
		after = cp.Offset
		c.logger.Info("resuming from checkpoint", zap.Int64("offset", cp.Offset), zap.String("token", cp.Token))
	} else {
		c.logger.Info("no checkpoint, starting from the beginning")
	}

	f, ok := c.table.(OrphanFinder)
	if !ok {
		return cp, found, nil
	}
	orphans, err := f.Orphans(ctx, c.shard, after)
	switch {
	case errors.Is(err, warehouse.ErrNotListable):
		c.logger.Debug("sink cannot list parts, skipping orphan scan")
	case err != nil:
		c.logger.Warn("orphan scan failed", zap.Error(err))
	default:
		for _, o := range orphans {
			c.logger.Warn("uncommitted part from an interrupted batch; it will be rewritten on replay",
				zap.String("object", o.Name), zap.String("token", o.Token), zap.String("partition", o.Key.String()))
		}
	}
	return cp, found, nil
}

// Commit routes the batch by partition, appends every group and then saves
// the checkpoint at the batch's last offset. A failed append retries the
// whole batch with exponential backoff. Appends and the checkpoint save are
// not interrupted by ctx; ctx only cuts short the waits between attempts, in
// which case the batch is abandoned with the checkpoint untouched.
func (c *Committer) Commit(ctx context.Context, b *batch.Batch) (checkpoint.Checkpoint, error) {
	if b.Empty() {
		return checkpoint.Checkpoint{}, fmt.Errorf("commit: empty batch")
	}
	token := b.Token(c.shard)
	groups := batch.Route(b)
	writeCtx := context.WithoutCancel(ctx)
	log := c.logger.With(zap.String("token", token))

	attempt := 0
	op := func() error {
		attempt++
		c.emit(Event{Token: token, State: Pending, Attempt: attempt})
		for i, g := range groups {
			c.emit(Event{Token: token, State: Writing, Index: i + 1, Total: len(groups), Attempt: attempt})
			name, err := c.table.Append(writeCtx, token, g)
			if err != nil {
				c.emit(Event{Token: token, State: Pending, Index: i + 1, Total: len(groups), Attempt: attempt, Err: err})
				return fmt.Errorf("partition %s: %w", g.Key, err)
			}
			log.Debug("partition written", zap.String("partition", g.Key.String()), zap.String("object", name), zap.Int("records", len(g.Records)))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		log.Warn("batch write failed, retrying whole batch", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctx.Err() != nil {
			log.Info("batch abandoned on shutdown", zap.Int("attempts", attempt))
			return checkpoint.Checkpoint{}, fmt.Errorf("batch %s abandoned: %w", token, ctx.Err())
		}
		return checkpoint.Checkpoint{}, fmt.Errorf("%w after %d attempts: batch %s: %w", ErrRetriesExhausted, attempt, token, err)
	}
	c.emit(Event{Token: token, State: Written, Total: len(groups), Attempt: attempt})

	cp := checkpoint.Checkpoint{Shard: c.shard, Offset: b.Last, Token: token, CommittedAt: c.clock().UTC()}
	if err := c.store.Save(writeCtx, cp); err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("%w: batch %s: %w", ErrCheckpoint, token, err)
	}
	c.emit(Event{Token: token, State: Checkpointed, Total: len(groups), Attempt: attempt})
	log.Info("batch committed",
		zap.Int64("offset", b.Last),
		zap.Int("documents", b.Documents),
		zap.Int("records", len(b.Records)),
		zap.Int("partitions", len(groups)),
		zap.Int("attempts", attempt))
	return cp, nil
}
