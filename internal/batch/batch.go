// Package batch groups flattened records into micro-batches and splits
// batches by partition.
package batch

import (
	"fmt"
	"sync"
	"time"

	"github.com/chtzvt/bundleslurp/internal/record"
)

// NoOffset marks an empty batch range.
const NoOffset int64 = -1

// Batch is the unit of commit. First and Last are the source offsets of the
// first and last documents covered, including documents that produced no
// records.
type Batch struct {
	First     int64
	Last      int64
	Documents int
	Records   []record.FlatRecord
}

// Empty reports whether the batch covers no documents.
func (b *Batch) Empty() bool {
	return b == nil || b.Documents == 0
}

// Token names the batch deterministically from its shard and source range,
// so a replay after a crash produces the same token.
func (b *Batch) Token(shard int) string {
	return fmt.Sprintf("s%03d-%020d-%020d", shard, b.First, b.Last)
}

// ParseToken recovers the shard and offsets from a token.
func ParseToken(token string) (shard int, first, last int64, err error) {
	_, err = fmt.Sscanf(token, "s%03d-%020d-%020d", &shard, &first, &last)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bad batch token %q: %w", token, err)
	}
	return shard, first, last, nil
}

// Accumulator buffers records in arrival order until a size or age trigger
// fires. Records of one document are never split across batches, so a batch
// may exceed MaxRecords by the records of its last document.
type Accumulator struct {
	MaxRecords int
	MaxWait    time.Duration

	mu      sync.Mutex
	cur     *Batch
	started time.Time
}

// NewAccumulator returns an accumulator with the given triggers. A zero
// trigger is disabled.
func NewAccumulator(maxRecords int, maxWait time.Duration) *Accumulator {
	return &Accumulator{MaxRecords: maxRecords, MaxWait: maxWait}
}

// Accept buffers the records extracted from the document at offset. now is
// the arrival time used by the age trigger.
func (a *Accumulator) Accept(now time.Time, offset int64, recs ...record.FlatRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cur == nil {
		a.cur = &Batch{First: offset, Last: offset}
		a.started = now
	}
	a.cur.Last = offset
	a.cur.Documents++
	a.cur.Records = append(a.cur.Records, recs...)
}

// MaybeFlush returns the buffered batch when a trigger has fired, or nil.
func (a *Accumulator) MaybeFlush(now time.Time) *Batch {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cur == nil {
		return nil
	}
	full := a.MaxRecords > 0 && len(a.cur.Records) >= a.MaxRecords
	stale := a.MaxWait > 0 && now.Sub(a.started) >= a.MaxWait
	if !full && !stale {
		return nil
	}
	return a.swap()
}

// Flush returns whatever is buffered, or nil when nothing is.
func (a *Accumulator) Flush() *Batch {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.swap()
}

// Deadline reports when the age trigger fires for the current buffer.
func (a *Accumulator) Deadline() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cur == nil || a.MaxWait <= 0 {
		return time.Time{}, false
	}
	return a.started.Add(a.MaxWait), true
}

// Pending returns the number of buffered documents and records.
func (a *Accumulator) Pending() (docs, recs int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cur == nil {
		return 0, 0
	}
	return a.cur.Documents, len(a.cur.Records)
}

func (a *Accumulator) swap() *Batch {
	b := a.cur
	a.cur = nil
	a.started = time.Time{}
	return b
}
