package pipeline

import (
	"time"

	"github.com/chtzvt/bundleslurp/internal/batch"
	"github.com/chtzvt/bundleslurp/internal/checkpoint"
	"github.com/chtzvt/bundleslurp/internal/commit"
)

// Metrics receives per-shard progress. Implementations must be safe for
// concurrent use: the read loop and the commit loop report independently.
type Metrics interface {
	DocumentRead(shard int, records int)
	DocumentRejected(shard int)
	SubEntriesSkipped(shard int, n int)
	SchemaIssues(shard int, n int)
	CommitEvent(e commit.Event)
	BatchCommitted(shard int, b *batch.Batch, cp checkpoint.Checkpoint, took time.Duration)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) DocumentRead(int, int)                                                  {}
func (NopMetrics) DocumentRejected(int)                                                   {}
func (NopMetrics) SubEntriesSkipped(int, int)                                             {}
func (NopMetrics) SchemaIssues(int, int)                                                  {}
func (NopMetrics) CommitEvent(commit.Event)                                               {}
func (NopMetrics) BatchCommitted(int, *batch.Batch, checkpoint.Checkpoint, time.Duration) {}
