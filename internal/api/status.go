package api

import (
	"net/http"

	"github.com/chtzvt/bundleslurp/internal/worker"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Node   string                 `json:"node"`
	Shards []worker.ShardSnapshot `json:"shards"`
}

// RegisterStatusHandlers wires the status endpoint into the given mux.
func RegisterStatusHandlers(mux *http.ServeMux, nodeID string, sp StatusProvider) {
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		resp := StatusResponse{Node: nodeID, Shards: []worker.ShardSnapshot{}}
		if sp != nil {
			resp.Shards = sp.Status()
		}
		writeJSON(w, http.StatusOK, resp)
	})
}
