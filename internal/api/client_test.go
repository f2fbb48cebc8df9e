package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer testtoken", r.Header.Get("Authorization"))
		require.Equal(t, "/api/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"node":"n1","shards":[{"shard":2,"checkpoint_offset":17,"commit_state":"checkpointed"}]}`)
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL+"/", "testtoken").Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, "n1", st.Node)
	require.Len(t, st.Shards, 1)
	require.Equal(t, 2, st.Shards[0].Shard)
	require.Equal(t, int64(17), st.Shards[0].CheckpointOffset)
}

func TestClient_UploadBundles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/shards/3/bundles", r.URL.Path)
		require.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(UploadResponse{RequestID: "r1", Shard: 3, Offsets: []int64{0, 40}})
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL, "testtoken").UploadBundles(context.Background(), 3, strings.NewReader("x"), "gzip")
	require.NoError(t, err)
	require.Equal(t, []int64{0, 40}, out.Offsets)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, http.StatusNotFound, "shard does not accept uploads")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "testtoken").UploadBundles(context.Background(), 9, strings.NewReader("{}"), "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "shard does not accept uploads", apiErr.Msg)
}
