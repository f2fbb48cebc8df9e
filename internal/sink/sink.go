// Package sink writes named objects to the storage backing the warehouse
// table: a local directory, S3, Azure Blob Storage, or nowhere.
package sink

import (
	"context"
	"io"
	"sync"
)

// Sink opens named objects for writing.
type Sink interface {
	Open(ctx context.Context, name string) (SinkWriter, error)
}

// SinkWriter receives the bytes of one object. Close makes the object
// visible and returns only once it is stored; Abort discards it.
type SinkWriter interface {
	io.WriteCloser
	Abort(err error)
}

// Lister is implemented by sinks that can enumerate stored objects.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// Factory builds a sink from its options.
type Factory func(opts map[string]interface{}) (Sink, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

func ForName(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}
