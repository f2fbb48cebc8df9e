package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File reads an append-only log holding one JSON document per line. A
// document's offset is the byte offset of its line. A trailing line without
// its newline is still being written and is left for a later call.
type File struct {
	f   *os.File
	r   *bufio.Reader
	pos int64
}

func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return &File{f: f, r: bufio.NewReaderSize(f, 1<<20)}, nil
}

func (s *File) rewind(pos int64) error {
	if _, err := s.f.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	s.r.Reset(s.f)
	s.pos = pos
	return nil
}

func (s *File) Seek(_ context.Context, after int64) error {
	if after < 0 {
		return s.rewind(0)
	}
	if err := s.rewind(after); err != nil {
		return err
	}
	line, err := s.r.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("seek past offset %d: no complete document there: %w", after, err)
	}
	s.pos = after + int64(len(line))
	return nil
}

func (s *File) Next(ctx context.Context) (Document, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Document{}, err
		}
		line, err := s.r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if rerr := s.rewind(s.pos); rerr != nil {
				return Document{}, rerr
			}
			return Document{}, ErrCaughtUp
		}
		if err != nil {
			return Document{}, err
		}
		offset := s.pos
		s.pos += int64(len(line))
		raw := bytes.TrimSpace(line)
		if len(raw) == 0 {
			continue
		}
		return Document{Offset: offset, Raw: raw}, nil
	}
}

func (s *File) Close() error {
	return s.f.Close()
}
