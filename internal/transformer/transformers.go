// Package transformer encodes flattened records into the file formats the
// warehouse table can hold.
package transformer

import (
	"fmt"
	"io"
	"sync"

	"github.com/chtzvt/bundleslurp/internal/record"
)

// Transformer writes one part file worth of records.
type Transformer interface {
	Encode(w io.Writer, recs []record.FlatRecord) error
	// Extension is the file suffix for the format, without the dot.
	Extension() string
}

// Decoder is implemented by formats that can be read back.
type Decoder interface {
	Decode(r io.Reader) ([]record.FlatRecord, error)
}

// Factory builds a transformer from format options.
type Factory func(opts map[string]interface{}) (Transformer, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

func ForName(name string, opts map[string]interface{}) (Transformer, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("transformer not found: %s", name)
	}
	return f(opts)
}

// ForExtension finds the registered format that writes files with ext.
func ForExtension(ext string) (Transformer, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, f := range registry {
		tr, err := f(nil)
		if err == nil && tr.Extension() == ext {
			return tr, nil
		}
	}
	return nil, fmt.Errorf("no transformer for extension: %s", ext)
}
