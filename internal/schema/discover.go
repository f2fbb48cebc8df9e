package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/chtzvt/bundleslurp/internal/compression"
	"github.com/chtzvt/bundleslurp/internal/document"
)

// SampleSpec selects the historical documents used for discovery.
type SampleSpec struct {
	Glob  string `mapstructure:"glob"`
	Limit int    `mapstructure:"limit"`
}

// Discover builds a schema from every file matching sample.Glob. Each file
// holds one JSON document or newline-delimited documents, optionally gzip,
// bzip2 or zstd compressed. Unreadable input is logged and skipped; when
// nothing could be read the result is Unconstrained.
func Discover(ctx context.Context, sample SampleSpec, logger *zap.Logger) *Schema {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sample.Glob == "" {
		logger.Info("no schema sample configured, schema unconstrained")
		return Unconstrained()
	}
	files, err := filepath.Glob(sample.Glob)
	if err != nil {
		logger.Warn("bad schema sample glob", zap.String("glob", sample.Glob), zap.Error(err))
		return Unconstrained()
	}
	sort.Strings(files)

	s := New()
	for _, f := range files {
		if ctx.Err() != nil || (sample.Limit > 0 && s.Documents >= sample.Limit) {
			break
		}
		if err := s.observeFile(f, sample.Limit); err != nil {
			logger.Warn("schema sample file skipped", zap.String("file", f), zap.Error(err))
		}
	}
	if s.Documents == 0 {
		logger.Warn("schema sample empty, schema unconstrained", zap.String("glob", sample.Glob))
		return Unconstrained()
	}
	logger.Info("schema discovered",
		zap.Int("documents", s.Documents),
		zap.Int("paths", len(s.Paths)),
		zap.Int("files", len(files)))
	return s
}

func (s *Schema) observeFile(name string, limit int) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := compression.NewReader(f, compression.FromFilename(name))
	if err != nil {
		return err
	}
	defer r.Close()
	return s.ObserveStream(r, limit)
}

// ObserveStream reads consecutive JSON values from r until EOF or until the
// schema has seen limit documents.
func (s *Schema) ObserveStream(r io.Reader, limit int) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	for limit <= 0 || s.Documents < limit {
		var v interface{}
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode sample after %d documents: %w", s.Documents, err)
		}
		s.Observe(document.Of(v))
	}
	return nil
}

// Load reads a schema previously written by MarshalIndent.
func Load(name string) (*Schema, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	s := New()
	if err := json.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	if s.Paths == nil {
		s.Paths = map[string]*PathInfo{}
	}
	return s, nil
}
