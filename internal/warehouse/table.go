// Package warehouse appends record groups to a date partitioned table laid
// out as <table>/year=YYYY/month=MM/day=DD/part-<token>.<ext>.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/chtzvt/bundleslurp/internal/batch"
	"github.com/chtzvt/bundleslurp/internal/compression"
	"github.com/chtzvt/bundleslurp/internal/record"
	"github.com/chtzvt/bundleslurp/internal/sink"
	"github.com/chtzvt/bundleslurp/internal/transformer"
)

const partPrefix = "part-"

var ErrNotListable = errors.New("sink cannot list objects")

// Config describes the table and where it lives.
type Config struct {
	Table         string                 `mapstructure:"table"`
	Format        string                 `mapstructure:"format"`
	FormatOptions map[string]interface{} `mapstructure:"format_options"`
	Compression   string                 `mapstructure:"compression"`
	Sink          string                 `mapstructure:"sink"`
	SinkOptions   map[string]interface{} `mapstructure:"sink_options"`
}

// Table writes part files through a sink. Append never modifies an existing
// object other than the one named by its own token.
type Table struct {
	name        string
	sink        sink.Sink
	tr          transformer.Transformer
	compression string
}

// Open builds a table from configuration, resolving the sink and the format
// through their registries.
func Open(cfg Config) (*Table, error) {
	if cfg.Sink == "" {
		cfg.Sink = "disk"
	}
	if cfg.Format == "" {
		cfg.Format = "parquet"
	}
	factory, ok := sink.ForName(cfg.Sink)
	if !ok {
		return nil, fmt.Errorf("unknown sink: %s", cfg.Sink)
	}
	s, err := factory(cfg.SinkOptions)
	if err != nil {
		return nil, err
	}
	tr, err := transformer.ForName(cfg.Format, cfg.FormatOptions)
	if err != nil {
		return nil, err
	}
	return New(cfg.Table, s, tr, cfg.Compression)
}

func New(name string, s sink.Sink, tr transformer.Transformer, comp string) (*Table, error) {
	name = strings.Trim(name, "/")
	if name == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if comp == "none" {
		comp = ""
	}
	if err := compression.Validate(comp); err != nil {
		return nil, err
	}
	return &Table{name: name, sink: s, tr: tr, compression: comp}, nil
}

func (t *Table) Name() string { return t.name }

// Sink exposes the underlying sink.
func (t *Table) Sink() sink.Sink { return t.sink }

// ObjectName is the object a group with this key and token is written to.
func (t *Table) ObjectName(key record.PartitionKey, token string) string {
	name := path.Join(t.name, key.String(), partPrefix+token+"."+t.tr.Extension())
	if ext := compression.Extension(t.compression); ext != "" {
		name += "." + ext
	}
	return name
}

// Append encodes one partition group into its own part file and returns the
// object name. Writing the same token again replaces the same object.
func (t *Table) Append(ctx context.Context, token string, g batch.Group) (string, error) {
	if len(g.Records) == 0 {
		return "", fmt.Errorf("append: empty group for %s", g.Key)
	}
	name := t.ObjectName(g.Key, token)
	sw, err := t.sink.Open(ctx, name)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", name, err)
	}
	cw, err := compression.NewWriter(sw, t.compression)
	if err != nil {
		sw.Abort(err)
		return "", err
	}
	if err := t.tr.Encode(cw, g.Records); err != nil {
		sw.Abort(err)
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	if err := cw.Close(); err != nil {
		sw.Abort(err)
		return "", fmt.Errorf("compress %s: %w", name, err)
	}
	if err := sw.Close(); err != nil {
		return "", fmt.Errorf("store %s: %w", name, err)
	}
	return name, nil
}

// Part is one stored part file.
type Part struct {
	Name  string
	Key   record.PartitionKey
	Token string
}

// Parts lists every part file of the table.
func (t *Table) Parts(ctx context.Context) ([]Part, error) {
	l, ok := t.sink.(sink.Lister)
	if !ok {
		return nil, ErrNotListable
	}
	names, err := l.List(ctx, t.name+"/")
	if err != nil {
		return nil, err
	}
	var parts []Part
	for _, n := range names {
		if p, ok := t.parsePart(n); ok {
			parts = append(parts, p)
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Name < parts[j].Name })
	return parts, nil
}

func (t *Table) parsePart(name string) (Part, bool) {
	rel := strings.TrimPrefix(name, t.name+"/")
	dir, file := path.Split(rel)
	key, ok := record.ParsePartitionPath(strings.TrimSuffix(dir, "/"))
	if !ok || !strings.HasPrefix(file, partPrefix) {
		return Part{}, false
	}
	token := strings.TrimPrefix(file, partPrefix)
	if i := strings.Index(token, "."); i >= 0 {
		token = token[:i]
	}
	return Part{Name: name, Key: key, Token: token}, true
}

// Partitions returns the distinct partitions holding data between start and
// end, both inclusive, in date order.
func (t *Table) Partitions(ctx context.Context, start, end record.PartitionKey) ([]record.PartitionKey, error) {
	parts, err := t.Parts(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[record.PartitionKey]bool)
	var keys []record.PartitionKey
	for _, p := range parts {
		if !p.Key.Within(start, end) || seen[p.Key] {
			continue
		}
		seen[p.Key] = true
		keys = append(keys, p.Key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
	return keys, nil
}

// Orphans returns the part files this shard wrote for batches that start
// after the checkpointed offset: leftovers of a commit that crashed between
// its writes and its checkpoint.
func (t *Table) Orphans(ctx context.Context, shard int, after int64) ([]Part, error) {
	parts, err := t.Parts(ctx)
	if err != nil {
		return nil, err
	}
	var out []Part
	for _, p := range parts {
		s, first, _, err := batch.ParseToken(p.Token)
		if err != nil || s != shard {
			continue
		}
		if first > after {
			out = append(out, p)
		}
	}
	return out, nil
}
