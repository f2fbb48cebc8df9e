package sink

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskSinkWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewDiskSink(map[string]interface{}{"path": dir})
	require.NoError(t, err)

	writer, err := sink.Open(context.Background(), "reports/year=2024/month=03/day=07/part-a.jsonl")
	require.NoError(t, err)
	data := []byte("{\"bundleId\":\"a\"}\n")
	n, err := writer.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	final := filepath.Join(dir, "reports", "year=2024", "month=03", "day=07", "part-a.jsonl")
	_, err = os.Stat(final)
	require.True(t, os.IsNotExist(err), "object must not be visible before Close")

	require.NoError(t, writer.Close())
	b, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, b))
}

func TestDiskSinkSyncsParentDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, syncDir(dir))
	assert.Error(t, syncDir(filepath.Join(dir, "missing")))

	sink, err := NewDiskSink(map[string]interface{}{"path": dir, "fsync": true})
	require.NoError(t, err)
	writer, err := sink.Open(context.Background(), "t/part-c.jsonl")
	require.NoError(t, err)
	_, err = writer.Write([]byte("{}\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	entries, err := os.ReadDir(filepath.Join(dir, "t"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "part-c.jsonl", entries[0].Name())
}

func TestDiskSinkAbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewDiskSink(map[string]interface{}{"path": dir, "fsync": false})
	require.NoError(t, err)

	writer, err := sink.Open(context.Background(), "t/part-b.csv")
	require.NoError(t, err)
	_, err = writer.Write([]byte("half a row"))
	require.NoError(t, err)
	writer.Abort(errors.New("encode failed"))

	entries, err := os.ReadDir(filepath.Join(dir, "t"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiskSinkList(t *testing.T) {
	dir := t.TempDir()
	sinkIface, err := NewDiskSink(map[string]interface{}{"path": dir})
	require.NoError(t, err)
	sink := sinkIface.(*DiskSink)
	ctx := context.Background()

	for _, name := range []string{"t/year=2024/month=03/day=07/part-1.parquet", "t/year=2024/month=03/day=08/part-2.parquet"} {
		w, err := sink.Open(ctx, name)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}
	pending, err := sink.Open(ctx, "t/year=2024/month=03/day=08/part-3.parquet")
	require.NoError(t, err)
	defer pending.Abort(nil)

	names, err := sink.List(ctx, "t")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"t/year=2024/month=03/day=07/part-1.parquet",
		"t/year=2024/month=03/day=08/part-2.parquet",
	}, names)

	names, err = sink.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDiskSinkRequiresPath(t *testing.T) {
	_, err := NewDiskSink(map[string]interface{}{})
	assert.Error(t, err)
}

func TestRegisterAndForName(t *testing.T) {
	for _, name := range []string{"disk", "s3", "azureblob", "null"} {
		_, ok := ForName(name)
		assert.True(t, ok, name)
	}

	Register("dummy", func(map[string]interface{}) (Sink, error) { return &NullSink{}, nil })
	f, ok := ForName("dummy")
	require.True(t, ok)
	s, err := f(nil)
	require.NoError(t, err)
	w, err := s.Open(context.Background(), "x")
	require.NoError(t, err)
	n, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, w.Close())

	_, ok = ForName("not-exist")
	assert.False(t, ok)
}

func TestAzureBlobSinkOptions(t *testing.T) {
	_, err := NewAzureBlobSink(map[string]interface{}{"account": "acct"})
	assert.Error(t, err)

	s, err := NewAzureBlobSink(map[string]interface{}{"account": "acct", "container": "c", "prefix": "p/", "key": "a2V5"})
	require.NoError(t, err)
	az := s.(*AzureBlobSink)
	assert.Equal(t, "p/", az.prefix)
	assert.Equal(t, "a2V5", az.key)
}
