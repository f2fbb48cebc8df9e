package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chtzvt/bundleslurp/internal/document"
)

func mustParse(t *testing.T, raw string) document.Value {
	t.Helper()
	v, err := document.Parse([]byte(raw))
	require.NoError(t, err)
	return v
}
