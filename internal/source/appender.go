package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ErrBadDocument is returned when an appended document is not valid JSON.
var ErrBadDocument = errors.New("invalid document")

// Appender adds documents to a file source log. Each document is compacted
// onto a single line and a batch of documents is written with one write.
type Appender struct {
	mu   sync.Mutex
	path string
}

func NewAppender(path string) *Appender {
	return &Appender{path: path}
}

func (a *Appender) Path() string { return a.path }

// AppendStream reads consecutive JSON documents from r and appends them.
// Nothing is written unless every document parses. It returns the offset of
// each appended document.
func (a *Appender) AppendStream(r io.Reader) ([]int64, error) {
	dec := json.NewDecoder(r)
	var docs [][]byte
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var syn *json.SyntaxError
			if errors.As(err, &syn) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w %d: %w", ErrBadDocument, len(docs)+1, err)
			}
			return nil, fmt.Errorf("read document %d: %w", len(docs)+1, err)
		}
		docs = append(docs, raw)
	}
	return a.Append(docs...)
}

// Append writes docs to the end of the log and syncs it.
func (a *Appender) Append(docs ...[]byte) ([]int64, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	lens := make([]int, len(docs))
	for i, d := range docs {
		start := buf.Len()
		if err := json.Compact(&buf, d); err != nil {
			return nil, fmt.Errorf("%w %d: %w", ErrBadDocument, i+1, err)
		}
		buf.WriteByte('\n')
		lens[i] = buf.Len() - start
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(a.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return nil, err
	}
	if err := f.Sync(); err != nil {
		return nil, err
	}
	// O_APPEND writes land atomically at the end, so the start of this batch
	// is the end position less what was just written, even with other writers.
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}

	offsets := make([]int64, len(docs))
	pos := end - int64(buf.Len())
	for i, n := range lens {
		offsets[i] = pos
		pos += int64(n)
	}
	return offsets, nil
}
