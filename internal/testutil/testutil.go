package testutil

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Random string for unique prefixes
func RandString(n int) string {
	letters := []rune("abcdefghijklmnopqrstuvwxyz0123456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

// Utility: Wait for a condition or timeout
func WaitFor(t *testing.T, cond func() bool, timeout time.Duration, tick time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(tick)
	}
	t.Fatalf("WaitFor timeout: %s", msg)
}

// NewTestLogger returns a logger bound to the test, or a no-op logger.
func NewTestLogger(t *testing.T, discard bool) *zap.Logger {
	if discard {
		return zap.NewNop()
	}
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

// WriteCloserBuffer is a bytes.Buffer that satisfies io.WriteCloser.
type WriteCloserBuffer struct {
	bytes.Buffer
	Closed bool
}

func (w *WriteCloserBuffer) Close() error {
	w.Closed = true
	return nil
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
