// Package source reads raw bundle documents by offset from the places they
// arrive: an append-only NDJSON log, a Kafka partition, or memory.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Beginning is the "after" position that starts a source at its first document.
const Beginning int64 = -1

// ErrCaughtUp is returned by Next when no further document is available yet.
var ErrCaughtUp = errors.New("source caught up")

// Document is one raw bundle and its position in the source.
type Document struct {
	Offset int64
	Raw    []byte
}

// Source yields documents in offset order.
type Source interface {
	// Seek positions the source strictly after the given offset.
	Seek(ctx context.Context, after int64) error
	Next(ctx context.Context) (Document, error)
	Close() error
}

// Config selects a source for one shard.
type Config struct {
	Type string `mapstructure:"type"`

	// file
	Path string `mapstructure:"path"`

	// kafka
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	Partition    int           `mapstructure:"partition"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// Open builds the source described by cfg.
func Open(cfg Config) (Source, error) {
	switch cfg.Type {
	case "", "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("file source requires a path")
		}
		return OpenFile(cfg.Path)
	case "kafka":
		return NewKafka(cfg)
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}
