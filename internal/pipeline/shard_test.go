package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chtzvt/bundleslurp/internal/batch"
	"github.com/chtzvt/bundleslurp/internal/checkpoint"
	"github.com/chtzvt/bundleslurp/internal/commit"
	"github.com/chtzvt/bundleslurp/internal/extractor"
	"github.com/chtzvt/bundleslurp/internal/record"
	"github.com/chtzvt/bundleslurp/internal/schema"
	"github.com/chtzvt/bundleslurp/internal/source"
	"github.com/chtzvt/bundleslurp/internal/testutil"
)

var processingDay = time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)

// memTable keeps appended groups in memory, one entry per Append call.
type memTable struct {
	mu     sync.Mutex
	tokens []string
	rows   []record.FlatRecord
	err    error
}

func (m *memTable) Append(_ context.Context, token string, g batch.Group) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.tokens = append(m.tokens, token)
	m.rows = append(m.rows, g.Records...)
	return token, nil
}

func (m *memTable) snapshot() ([]string, []record.FlatRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tokens...), append([]record.FlatRecord(nil), m.rows...)
}

type countingMetrics struct {
	NopMetrics
	mu       sync.Mutex
	docs     int
	rejected int
	skipped  int
	issues   int
	batches  int
}

func (c *countingMetrics) DocumentRead(int, int) { c.mu.Lock(); c.docs++; c.mu.Unlock() }
func (c *countingMetrics) DocumentRejected(int)  { c.mu.Lock(); c.rejected++; c.mu.Unlock() }
func (c *countingMetrics) SubEntriesSkipped(_ int, n int) {
	c.mu.Lock()
	c.skipped += n
	c.mu.Unlock()
}
func (c *countingMetrics) SchemaIssues(_ int, n int) { c.mu.Lock(); c.issues += n; c.mu.Unlock() }
func (c *countingMetrics) BatchCommitted(int, *batch.Batch, checkpoint.Checkpoint, time.Duration) {
	c.mu.Lock()
	c.batches++
	c.mu.Unlock()
}

func newShard(t *testing.T, src source.Source, table commit.Table, store checkpoint.Store, cfg Config) *Shard {
	t.Helper()
	ex, err := extractor.New(extractor.DefaultRules(), testutil.FixedClock(processingDay), time.UTC)
	require.NoError(t, err)
	logger := testutil.NewTestLogger(t, true)
	return &Shard{
		ID:        0,
		Source:    src,
		Extractor: ex,
		Schema:    schema.Unconstrained(),
		Committer: commit.New(0, table, store, commit.Config{MaxRetries: 0}, logger),
		Config:    cfg,
		Logger:    logger,
	}
}

func TestShardThreeDocuments(t *testing.T) {
	carol := testutil.FullPatient("Carol")
	carol.Gender = ""
	carol.Diagnose = ""
	src := source.NewSlice(
		testutil.Bundle(t, "A", testutil.FullPatient("Alice"), testutil.FullPatient("Bob")),
		testutil.EmptyBundle(t, "B"),
		testutil.Bundle(t, "C", carol),
	)
	table := &memTable{}
	store := checkpoint.NewMemory()
	metrics := &countingMetrics{}
	sh := newShard(t, src, table, store, Config{MaxRecords: 100, ExitWhenCaughtUp: true})
	sh.Metrics = metrics

	require.NoError(t, sh.Run(context.Background()))

	_, rows := table.snapshot()
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"A", "A", "C"}, []string{rows[0].BundleID, rows[1].BundleID, rows[2].BundleID})
	for _, r := range rows {
		assert.Equal(t, record.PartitionFor(processingDay), r.Key())
	}
	assert.Nil(t, rows[2].Gender)
	assert.Nil(t, rows[2].DiagnoseText)

	cp, found, err := store.Load(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), cp.Offset)
	assert.Equal(t, 3, metrics.docs)
	assert.Equal(t, 1, metrics.batches)
}

func TestShardSizeTriggerBatches(t *testing.T) {
	var docs [][]byte
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		docs = append(docs, testutil.Bundle(t, name, testutil.FullPatient(name)))
	}
	table := &memTable{}
	sh := newShard(t, source.NewSlice(docs...), table, checkpoint.NewMemory(), Config{MaxRecords: 2, ExitWhenCaughtUp: true})

	require.NoError(t, sh.Run(context.Background()))

	tokens, rows := table.snapshot()
	require.Len(t, tokens, 3)
	assert.Equal(t, (&batch.Batch{First: 0, Last: 1}).Token(0), tokens[0])
	assert.Equal(t, (&batch.Batch{First: 2, Last: 3}).Token(0), tokens[1])
	assert.Equal(t, (&batch.Batch{First: 4, Last: 4}).Token(0), tokens[2])
	require.Len(t, rows, 5)
	for i, name := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, name, rows[i].BundleID)
	}
}

func TestShardResumesAfterCheckpoint(t *testing.T) {
	src := source.NewSlice(
		testutil.Bundle(t, "a", testutil.FullPatient("a")),
		testutil.Bundle(t, "b", testutil.FullPatient("b")),
	)
	table := &memTable{}
	store := checkpoint.NewMemory()
	cfg := Config{MaxRecords: 10, ExitWhenCaughtUp: true}

	require.NoError(t, newShard(t, src, table, store, cfg).Run(context.Background()))
	src.Push(testutil.Bundle(t, "c", testutil.FullPatient("c")))
	require.NoError(t, newShard(t, src, table, store, cfg).Run(context.Background()))

	_, rows := table.snapshot()
	require.Len(t, rows, 3, "no document is committed twice")
	assert.Equal(t, "c", rows[2].BundleID)

	cp, _, err := store.Load(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cp.Offset)
}

func TestShardSkipsBadDocumentsAndSubEntries(t *testing.T) {
	src := source.NewSlice(
		[]byte(`not json`),
		[]byte(`[1,2]`),
		[]byte(`{"id":"m","transactions":{"entry":[{"entry":"bad"},{"entry":[{"resource":{"gender":"male"}}]}]}}`),
	)
	table := &memTable{}
	store := checkpoint.NewMemory()
	metrics := &countingMetrics{}
	sh := newShard(t, src, table, store, Config{MaxRecords: 10, ExitWhenCaughtUp: true})
	sh.Metrics = metrics
	sh.Schema = schema.New()
	sh.Schema.Observe(mustParse(t, `{"id":"x"}`))

	require.NoError(t, sh.Run(context.Background()))

	_, rows := table.snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].SubEntryIndex)
	assert.Equal(t, 2, metrics.rejected)
	assert.Equal(t, 1, metrics.skipped)
	assert.Positive(t, metrics.issues)

	cp, _, err := store.Load(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cp.Offset, "rejected documents are not read again")
}

func TestShardCommitFailureIsFatal(t *testing.T) {
	src := source.NewSlice(testutil.Bundle(t, "a", testutil.FullPatient("a")))
	table := &memTable{err: errors.New("permission denied")}
	store := checkpoint.NewMemory()
	sh := newShard(t, src, table, store, Config{MaxRecords: 1, PollInterval: time.Millisecond})

	err := sh.Run(context.Background())
	require.ErrorIs(t, err, commit.ErrRetriesExhausted)
	_, found, _ := store.Load(context.Background(), 0)
	assert.False(t, found)
}

func TestShardTimeTriggerAndCancel(t *testing.T) {
	src := source.NewSlice(testutil.Bundle(t, "a", testutil.FullPatient("a")))
	table := &memTable{}
	store := checkpoint.NewMemory()
	sh := newShard(t, src, table, store, Config{MaxRecords: 100, MaxWait: 20 * time.Millisecond, PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sh.Run(ctx) }()

	testutil.WaitFor(t, func() bool {
		_, found, _ := store.Load(context.Background(), 0)
		return found
	}, 2*time.Second, 5*time.Millisecond, "age trigger never committed")

	// A document that arrives after the last flush is dropped on shutdown.
	src.Push(testutil.Bundle(t, "b", testutil.FullPatient("b")))
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shard did not stop")
	}

	cp, _, err := store.Load(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cp.Offset)
}
