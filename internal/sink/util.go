package sink

import (
	"fmt"
	"io"
)

// uploadWriter feeds a background upload through a pipe. Close waits for
// the upload to report its result.
type uploadWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func startUpload(upload func(r io.Reader) error) *uploadWriter {
	pr, pw := io.Pipe()
	u := &uploadWriter{pw: pw, done: make(chan error, 1)}
	go func() {
		err := upload(pr)
		if err != nil {
			_ = pr.CloseWithError(err)
		} else {
			_ = pr.Close()
		}
		u.done <- err
	}()
	return u
}

func (u *uploadWriter) Write(p []byte) (int, error) {
	return u.pw.Write(p)
}

func (u *uploadWriter) Close() error {
	if err := u.pw.Close(); err != nil {
		return err
	}
	return <-u.done
}

func (u *uploadWriter) Abort(err error) {
	if err == nil {
		err = fmt.Errorf("upload aborted")
	}
	_ = u.pw.CloseWithError(err)
	<-u.done
}

// Helper to support bool/int/bool-string conversion
func toBool(val interface{}) bool {
	switch v := val.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case string:
		return v == "1" || v == "true" || v == "on"
	default:
		return false
	}
}

func optString(opts map[string]interface{}, key string) string {
	s, _ := opts[key].(string)
	return s
}
