package warehouse

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chtzvt/bundleslurp/internal/batch"
	"github.com/chtzvt/bundleslurp/internal/compression"
	"github.com/chtzvt/bundleslurp/internal/record"
	"github.com/chtzvt/bundleslurp/internal/sink"
	"github.com/chtzvt/bundleslurp/internal/transformer"
)

func group(key record.PartitionKey, ids ...string) batch.Group {
	g := batch.Group{Key: key}
	for i, id := range ids {
		r := record.FlatRecord{BundleID: id, SubEntryIndex: i, IdentifierCodes: []string{}, ServiceNames: []string{}}
		r.SetPartition(key)
		g.Records = append(g.Records, r)
	}
	return g
}

func openDiskTable(t *testing.T, format, comp string) (*Table, string) {
	t.Helper()
	dir := t.TempDir()
	tbl, err := Open(Config{
		Table:       "reports",
		Format:      format,
		Compression: comp,
		Sink:        "disk",
		SinkOptions: map[string]interface{}{"path": dir},
	})
	require.NoError(t, err)
	return tbl, dir
}

var (
	mar7 = record.PartitionKey{Year: 2024, Month: 3, Day: 7}
	mar8 = record.PartitionKey{Year: 2024, Month: 3, Day: 8}
	mar9 = record.PartitionKey{Year: 2024, Month: 3, Day: 9}
)

func TestObjectName(t *testing.T) {
	tbl, _ := openDiskTable(t, "parquet", "")
	assert.Equal(t, "reports/year=2024/month=03/day=07/part-s001-00000000000000000000-00000000000000000009.parquet",
		tbl.ObjectName(mar7, (&batch.Batch{First: 0, Last: 9}).Token(1)))

	gz, _ := openDiskTable(t, "jsonl", "gzip")
	assert.Equal(t, "reports/year=2024/month=03/day=08/part-tok.jsonl.gz", gz.ObjectName(mar8, "tok"))
}

func TestAppendWritesReadablePart(t *testing.T) {
	tbl, dir := openDiskTable(t, "jsonl", "gzip")
	ctx := context.Background()

	name, err := tbl.Append(ctx, "s000-a", group(mar7, "a", "b"))
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(name)))
	require.NoError(t, err)
	defer f.Close()
	r, err := compression.NewReader(f, compression.FromFilename(name))
	require.NoError(t, err)
	defer r.Close()

	tr, err := transformer.ForName("jsonl", nil)
	require.NoError(t, err)
	recs, err := tr.(transformer.Decoder).Decode(r)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].BundleID)
	assert.Equal(t, mar7, recs[1].Key())
}

func TestAppendSameTokenReplaces(t *testing.T) {
	tbl, _ := openDiskTable(t, "parquet", "")
	ctx := context.Background()

	_, err := tbl.Append(ctx, "s000-x", group(mar7, "a"))
	require.NoError(t, err)
	_, err = tbl.Append(ctx, "s000-x", group(mar7, "a"))
	require.NoError(t, err)

	parts, err := tbl.Parts(ctx)
	require.NoError(t, err)
	assert.Len(t, parts, 1)
}

func TestAppendRejectsEmptyGroup(t *testing.T) {
	tbl, _ := openDiskTable(t, "parquet", "")
	_, err := tbl.Append(context.Background(), "t", batch.Group{Key: mar7})
	assert.Error(t, err)
}

func TestPartitionsInclusiveRange(t *testing.T) {
	tbl, _ := openDiskTable(t, "csv", "")
	ctx := context.Background()
	for i, k := range []record.PartitionKey{mar9, mar7, mar8, mar8} {
		tok := (&batch.Batch{First: int64(i), Last: int64(i)}).Token(0)
		_, err := tbl.Append(ctx, tok, group(k, "x"))
		require.NoError(t, err)
	}

	keys, err := tbl.Partitions(ctx, mar7, mar8)
	require.NoError(t, err)
	assert.Equal(t, []record.PartitionKey{mar7, mar8}, keys)

	keys, err = tbl.Partitions(ctx, mar9, mar9)
	require.NoError(t, err)
	assert.Equal(t, []record.PartitionKey{mar9}, keys)

	keys, err = tbl.Partitions(ctx, record.PartitionKey{Year: 2023, Month: 1, Day: 1}, record.PartitionKey{Year: 2023, Month: 12, Day: 31})
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestOrphans(t *testing.T) {
	tbl, _ := openDiskTable(t, "jsonl", "")
	ctx := context.Background()

	committed := &batch.Batch{First: 0, Last: 10}
	crashed := &batch.Batch{First: 11, Last: 20}
	otherShard := &batch.Batch{First: 50, Last: 60}
	_, err := tbl.Append(ctx, committed.Token(1), group(mar7, "a"))
	require.NoError(t, err)
	_, err = tbl.Append(ctx, crashed.Token(1), group(mar7, "b"))
	require.NoError(t, err)
	_, err = tbl.Append(ctx, otherShard.Token(2), group(mar7, "c"))
	require.NoError(t, err)

	orphans, err := tbl.Orphans(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, crashed.Token(1), orphans[0].Token)
	assert.Equal(t, mar7, orphans[0].Key)
}

func TestNotListable(t *testing.T) {
	tr, err := transformer.ForName("jsonl", nil)
	require.NoError(t, err)
	tbl, err := New("reports", &sink.NullSink{}, tr, "none")
	require.NoError(t, err)

	_, err = tbl.Partitions(context.Background(), mar7, mar8)
	assert.ErrorIs(t, err, ErrNotListable)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(Config{Table: "t", Sink: "tape"})
	assert.Error(t, err)
	_, err = Open(Config{Table: "t", Sink: "null", Format: "xml"})
	assert.Error(t, err)
	_, err = Open(Config{Table: "t", Sink: "null", Compression: "lzma"})
	assert.Error(t, err)
	_, err = Open(Config{Sink: "null"})
	assert.Error(t, err)
}
