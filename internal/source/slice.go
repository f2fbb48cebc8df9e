package source

import (
	"context"
	"sync"
)

// Slice serves documents from memory; a document's offset is its index.
type Slice struct {
	mu   sync.Mutex
	docs [][]byte
	next int
}

func NewSlice(docs ...[]byte) *Slice {
	return &Slice{docs: docs}
}

// Push adds a document, as if it had just arrived.
func (s *Slice) Push(doc []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
}

func (s *Slice) Seek(_ context.Context, after int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = int(after + 1)
	return nil
}

func (s *Slice) Next(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.docs) {
		return Document{}, ErrCaughtUp
	}
	d := Document{Offset: int64(s.next), Raw: s.docs[s.next]}
	s.next++
	return d, nil
}

func (s *Slice) Close() error { return nil }
