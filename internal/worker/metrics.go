package worker

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chtzvt/bundleslurp/internal/batch"
	"github.com/chtzvt/bundleslurp/internal/checkpoint"
	"github.com/chtzvt/bundleslurp/internal/commit"
)

const namespace = "bundleslurp"

// Metrics exports shard progress to prometheus and keeps a per-shard
// snapshot for the status endpoint.
type Metrics struct {
	documents        *prometheus.CounterVec
	records          *prometheus.CounterVec
	rejected         *prometheus.CounterVec
	skipped          *prometheus.CounterVec
	schemaIssues     *prometheus.CounterVec
	batches          *prometheus.CounterVec
	retries          *prometheus.CounterVec
	checkpointOffset *prometheus.GaugeVec
	commitLatency    *prometheus.HistogramVec

	mu     sync.Mutex
	shards map[int]*shardStats
}

type shardStats struct {
	documents    atomic.Int64
	records      atomic.Int64
	rejected     atomic.Int64
	skipped      atomic.Int64
	schemaIssues atomic.Int64
	batches      atomic.Int64
	retries      atomic.Int64

	mu          sync.Mutex
	offset      int64
	token       string
	committedAt time.Time
	state       commit.State
}

// ShardSnapshot is a point-in-time copy of one shard's counters.
type ShardSnapshot struct {
	Shard             int       `json:"shard"`
	Documents         int64     `json:"documents"`
	Records           int64     `json:"records"`
	Rejected          int64     `json:"rejected"`
	SkippedSubEntries int64     `json:"skipped_sub_entries"`
	SchemaIssues      int64     `json:"schema_issues"`
	Batches           int64     `json:"batches"`
	Retries           int64     `json:"retries"`
	CheckpointOffset  int64     `json:"checkpoint_offset"`
	CheckpointToken   string    `json:"checkpoint_token,omitempty"`
	CommittedAt       time.Time `json:"committed_at,omitempty"`
	CommitState       string    `json:"commit_state"`
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	shardLabel := []string{"shard"}
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, shardLabel)
	}
	m := &Metrics{
		documents:    counter("documents_read_total", "Documents read from the source."),
		records:      counter("records_extracted_total", "Flat records extracted from documents."),
		rejected:     counter("documents_rejected_total", "Documents that could not be parsed as an object."),
		skipped:      counter("sub_entries_skipped_total", "Malformed sub-entries skipped during extraction."),
		schemaIssues: counter("schema_issues_total", "Paths or kinds not seen in the sample schema."),
		batches:      counter("batches_committed_total", "Batches written and checkpointed."),
		retries:      counter("batch_retries_total", "Failed batch write attempts."),
		checkpointOffset: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_offset",
			Help:      "Source offset of the last committed document.",
		}, shardLabel),
		commitLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Time from handing a batch to the committer to its checkpoint.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, shardLabel),
		shards: make(map[int]*shardStats),
	}
	if reg != nil {
		reg.MustRegister(m.documents, m.records, m.rejected, m.skipped, m.schemaIssues,
			m.batches, m.retries, m.checkpointOffset, m.commitLatency)
	}
	return m
}

func label(shard int) string { return strconv.Itoa(shard) }

func (m *Metrics) stats(shard int) *shardStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shards[shard]
	if !ok {
		s = &shardStats{offset: -1}
		m.shards[shard] = s
	}
	return s
}

// Track makes a shard visible in snapshots before it has done any work.
func (m *Metrics) Track(shard int) { m.stats(shard) }

func (m *Metrics) DocumentRead(shard int, records int) {
	m.documents.WithLabelValues(label(shard)).Inc()
	m.records.WithLabelValues(label(shard)).Add(float64(records))
	s := m.stats(shard)
	s.documents.Add(1)
	s.records.Add(int64(records))
}

func (m *Metrics) DocumentRejected(shard int) {
	m.rejected.WithLabelValues(label(shard)).Inc()
	m.stats(shard).rejected.Add(1)
}

func (m *Metrics) SubEntriesSkipped(shard int, n int) {
	m.skipped.WithLabelValues(label(shard)).Add(float64(n))
	m.stats(shard).skipped.Add(int64(n))
}

func (m *Metrics) SchemaIssues(shard int, n int) {
	m.schemaIssues.WithLabelValues(label(shard)).Add(float64(n))
	m.stats(shard).schemaIssues.Add(int64(n))
}

// CommitEvent is installed as the committer's observer.
func (m *Metrics) CommitEvent(e commit.Event) {
	s := m.stats(e.Shard)
	if e.Err != nil {
		m.retries.WithLabelValues(label(e.Shard)).Inc()
		s.retries.Add(1)
	}
	s.mu.Lock()
	s.state = e.State
	s.mu.Unlock()
}

func (m *Metrics) BatchCommitted(shard int, _ *batch.Batch, cp checkpoint.Checkpoint, took time.Duration) {
	m.batches.WithLabelValues(label(shard)).Inc()
	m.checkpointOffset.WithLabelValues(label(shard)).Set(float64(cp.Offset))
	m.commitLatency.WithLabelValues(label(shard)).Observe(took.Seconds())
	s := m.stats(shard)
	s.batches.Add(1)
	s.mu.Lock()
	s.offset = cp.Offset
	s.token = cp.Token
	s.committedAt = cp.CommittedAt
	s.mu.Unlock()
}

// Restored records a checkpoint loaded at startup.
func (m *Metrics) Restored(cp checkpoint.Checkpoint) {
	m.checkpointOffset.WithLabelValues(label(cp.Shard)).Set(float64(cp.Offset))
	s := m.stats(cp.Shard)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cp.Offset > s.offset {
		s.offset = cp.Offset
		s.token = cp.Token
		s.committedAt = cp.CommittedAt
	}
}

// Snapshot returns every tracked shard ordered by id.
func (m *Metrics) Snapshot() []ShardSnapshot {
	m.mu.Lock()
	ids := make([]int, 0, len(m.shards))
	for id := range m.shards {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Ints(ids)

	out := make([]ShardSnapshot, 0, len(ids))
	for _, id := range ids {
		s := m.stats(id)
		snap := ShardSnapshot{
			Shard:             id,
			Documents:         s.documents.Load(),
			Records:           s.records.Load(),
			Rejected:          s.rejected.Load(),
			SkippedSubEntries: s.skipped.Load(),
			SchemaIssues:      s.schemaIssues.Load(),
			Batches:           s.batches.Load(),
			Retries:           s.retries.Load(),
		}
		s.mu.Lock()
		snap.CheckpointOffset = s.offset
		snap.CheckpointToken = s.token
		snap.CommittedAt = s.committedAt
		snap.CommitState = s.state.String()
		s.mu.Unlock()
		out = append(out, snap)
	}
	return out
}
