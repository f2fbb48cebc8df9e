package sink

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const tempMarker = ".tmp-"

// DiskSink stores objects as files below a base directory. Objects are
// written under a temporary name and renamed on Close, so a reader sees
// either the whole file or nothing.
type DiskSink struct {
	baseDir string
	fsync   bool
}

func NewDiskSink(opts map[string]interface{}) (Sink, error) {
	baseDir := optString(opts, "path")
	if baseDir == "" {
		return nil, fmt.Errorf("disk sink requires 'path' option")
	}
	fsync := true
	if v, ok := opts["fsync"]; ok {
		fsync = toBool(v)
	}
	return &DiskSink{baseDir: baseDir, fsync: fsync}, nil
}

func (d *DiskSink) Open(ctx context.Context, name string) (SinkWriter, error) {
	fullPath := filepath.Join(d.baseDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, err
	}
	tmp := filepath.Join(filepath.Dir(fullPath), "."+filepath.Base(fullPath)+tempMarker+uuid.NewString())
	f, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	return &diskSinkWriter{f: f, tmp: tmp, final: fullPath, fsync: d.fsync}, nil
}

// List returns the slash separated names of every complete object under
// prefix.
func (d *DiskSink) List(ctx context.Context, prefix string) ([]string, error) {
	root := filepath.Join(d.baseDir, filepath.FromSlash(prefix))
	var out []string
	err := filepath.WalkDir(root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.IsDir() || strings.Contains(e.Name(), tempMarker) {
			return nil
		}
		rel, err := filepath.Rel(d.baseDir, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, err
}

type diskSinkWriter struct {
	f     *os.File
	tmp   string
	final string
	fsync bool
}

func (d *diskSinkWriter) Write(p []byte) (int, error) {
	return d.f.Write(p)
}

func (d *diskSinkWriter) Close() error {
	if d.fsync {
		if err := d.f.Sync(); err != nil {
			d.Abort(err)
			return err
		}
	}
	if err := d.f.Close(); err != nil {
		_ = os.Remove(d.tmp)
		return err
	}
	if err := os.Rename(d.tmp, d.final); err != nil {
		_ = os.Remove(d.tmp)
		return err
	}
	if d.fsync {
		return syncDir(filepath.Dir(d.final))
	}
	return nil
}

// syncDir flushes a directory so a rename inside it survives a crash.
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", dir, err)
	}
	return nil
}

func (d *diskSinkWriter) Abort(_ error) {
	_ = d.f.Close()
	_ = os.Remove(d.tmp)
}

func init() {
	Register("disk", NewDiskSink)
}
