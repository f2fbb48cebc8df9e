package compression

import (
	"compress/gzip"
	"fmt"
	"io"
	"path"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
)

// NewWriter returns an io.WriteCloser that wraps w with the requested compression.
// Supported: "gzip", "bzip2", "zstd", or "" (no compression).
func NewWriter(w io.Writer, compression string) (io.WriteCloser, error) {
	switch compression {
	case "gzip":
		return gzip.NewWriter(w), nil
	case "bzip2":
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	case "zstd":
		return zstd.NewWriter(w)
	case "", "none":
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", compression)
	}
}

// NewReader returns an io.ReadCloser that decompresses r.
func NewReader(r io.Reader, compression string) (io.ReadCloser, error) {
	switch compression {
	case "gzip":
		return gzip.NewReader(r)
	case "bzip2":
		return bzip2.NewReader(r, nil)
	case "zstd":
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case "", "none":
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", compression)
	}
}

// Validate reports whether compression names a supported codec.
func Validate(compression string) error {
	switch compression {
	case "", "none", "gzip", "bzip2", "zstd":
		return nil
	}
	return fmt.Errorf("unsupported compression: %s", compression)
}

// Extension is the file suffix for a compression, without the dot.
func Extension(compression string) string {
	switch compression {
	case "gzip":
		return "gz"
	case "bzip2":
		return "bz2"
	case "zstd":
		return "zst"
	}
	return ""
}

// FromFilename guesses the compression of a file from its suffix.
func FromFilename(name string) string {
	switch path.Ext(name) {
	case ".gz":
		return "gzip"
	case ".bz2":
		return "bzip2"
	case ".zst":
		return "zstd"
	}
	return ""
}

// FromContentEncoding maps an HTTP Content-Encoding header value.
func FromContentEncoding(enc string) (string, error) {
	switch enc {
	case "", "identity":
		return "", nil
	case "gzip", "x-gzip":
		return "gzip", nil
	case "bzip2", "x-bzip2":
		return "bzip2", nil
	case "zstd":
		return "zstd", nil
	}
	return "", fmt.Errorf("unsupported content encoding: %s", enc)
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Write(p []byte) (int, error) { return n.Writer.Write(p) }
func (n nopWriteCloser) Close() error                { return nil }
