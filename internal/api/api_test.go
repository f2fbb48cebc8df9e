package api

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chtzvt/bundleslurp/internal/source"
	"github.com/chtzvt/bundleslurp/internal/testutil"
	"github.com/chtzvt/bundleslurp/internal/worker"
)

type stubStatus []worker.ShardSnapshot

func (s stubStatus) Status() []worker.ShardSnapshot { return s }

func setupServer(t *testing.T) (*Server, *source.Appender) {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "bundleslurp_probe_total", Help: "probe"}))
	status := stubStatus{{Shard: 0, Documents: 3, Records: 3, CheckpointOffset: 2, CommitState: "checkpointed"}}
	s := NewServer("node-1", Config{AuthTokens: []string{"testtoken"}, MaxUploadBytes: 4096}, status, reg, testutil.NewTestLogger(t, true))
	app := source.NewAppender(filepath.Join(t.TempDir(), "shard-0.jsonl"))
	s.Uploads[0] = app
	return s, app
}

func requireUnauthorized(t *testing.T, method, path string, h http.Handler) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", method, path)
}

func TestAuthRequired_AllEndpoints(t *testing.T) {
	s, _ := setupServer(t)
	h := s.Handler()
	requireUnauthorized(t, "GET", "/api/status", h)
	requireUnauthorized(t, "POST", "/api/shards/0/bundles", h)
}

func TestAuthRequired_InvalidToken(t *testing.T) {
	s, _ := setupServer(t)
	req := httptest.NewRequest("GET", "/api/status", nil)
	req.Header.Set("Authorization", "Bearer WRONGTOKEN")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	s, _ := setupServer(t)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bundleslurp_probe_total")
}

func TestStatus(t *testing.T) {
	s, _ := setupServer(t)
	req := httptest.NewRequest("GET", "/api/status", nil)
	req.Header.Set("Authorization", "Bearer testtoken")
	req.Header.Set(requestIDHeader, "abc")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", rec.Header().Get(requestIDHeader))
	var out StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "node-1", out.Node)
	require.Len(t, out.Shards, 1)
	assert.Equal(t, int64(2), out.Shards[0].CheckpointOffset)
}

func postBundles(t *testing.T, h http.Handler, path string, body []byte, encoding string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer testtoken")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUploadBundlesAppendsToShardLog(t *testing.T) {
	s, app := setupServer(t)
	h := s.Handler()
	body := append(testutil.Bundle(t, "A", testutil.FullPatient("Alice")), '\n')
	body = append(body, testutil.EmptyBundle(t, "B")...)

	rec := postBundles(t, h, "/api/shards/0/bundles", body, "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var out UploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, 0, out.Shard)
	require.Len(t, out.Offsets, 2)
	assert.Equal(t, int64(0), out.Offsets[0])
	assert.Equal(t, rec.Header().Get(requestIDHeader), out.RequestID)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, _ = zw.Write(testutil.EmptyBundle(t, "C"))
	require.NoError(t, zw.Close())
	rec = postBundles(t, h, "/api/shards/0/bundles", gz.Bytes(), "gzip")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	src, err := source.OpenFile(app.Path())
	require.NoError(t, err)
	defer src.Close()
	var ids []string
	for {
		doc, err := src.Next(t.Context())
		if err != nil {
			require.ErrorIs(t, err, source.ErrCaughtUp)
			break
		}
		var v struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(doc.Raw, &v))
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []string{"A", "B", "C"}, ids)
}

func TestUploadBundlesRejects(t *testing.T) {
	s, app := setupServer(t)
	h := s.Handler()

	cases := []struct {
		name     string
		path     string
		body     []byte
		encoding string
		status   int
	}{
		{"unknown shard", "/api/shards/7/bundles", []byte(`{}`), "", http.StatusNotFound},
		{"bad shard id", "/api/shards/x/bundles", []byte(`{}`), "", http.StatusBadRequest},
		{"bad json", "/api/shards/0/bundles", []byte(`{"id":"a"} {"id":`), "", http.StatusBadRequest},
		{"empty body", "/api/shards/0/bundles", nil, "", http.StatusBadRequest},
		{"unsupported encoding", "/api/shards/0/bundles", []byte(`{}`), "br", http.StatusUnsupportedMediaType},
		{"bad gzip", "/api/shards/0/bundles", []byte(`not gzip`), "gzip", http.StatusBadRequest},
		{"too large", "/api/shards/0/bundles", []byte(`{"pad":"` + strings.Repeat("x", 5000) + `"}`), "", http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postBundles(t, h, tc.path, tc.body, tc.encoding)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}

	// Nothing from a rejected body reaches the log.
	src, err := source.OpenFile(app.Path())
	require.NoError(t, err)
	defer src.Close()
	_, err = src.Next(t.Context())
	assert.ErrorIs(t, err, source.ErrCaughtUp)
}
