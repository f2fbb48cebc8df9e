package sink

import "context"

// NullSink accepts and discards everything. Useful for dry runs.
type NullSink struct{}

func NewNullSink(_ map[string]interface{}) (Sink, error) {
	return &NullSink{}, nil
}

func (s *NullSink) Open(ctx context.Context, name string) (SinkWriter, error) {
	return &nullWriter{}, nil
}

type nullWriter struct{}

func (w *nullWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (w *nullWriter) Close() error  { return nil }
func (w *nullWriter) Abort(_ error) {}

var _ SinkWriter = (*nullWriter)(nil)

func init() {
	Register("null", NewNullSink)
}
