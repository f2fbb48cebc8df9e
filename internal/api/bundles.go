package api

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/chtzvt/bundleslurp/internal/compression"
	"github.com/chtzvt/bundleslurp/internal/source"
)

// UploadResponse is the body returned for accepted bundles.
type UploadResponse struct {
	RequestID string  `json:"request_id"`
	Shard     int     `json:"shard"`
	Offsets   []int64 `json:"offsets"`
}

// RegisterBundleHandlers wires the bundle upload endpoint. The body holds
// one or more JSON documents, optionally compressed as named by
// Content-Encoding. Either every document is appended or none is.
func RegisterBundleHandlers(mux *http.ServeMux, uploads map[int]*source.Appender, maxBytes int64, logger *zap.Logger) {
	mux.HandleFunc("POST /api/shards/{id}/bundles", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid shard id")
			return
		}
		app, ok := uploads[id]
		if !ok {
			jsonError(w, http.StatusNotFound, "shard does not accept uploads")
			return
		}
		comp, err := compression.FromContentEncoding(r.Header.Get("Content-Encoding"))
		if err != nil {
			jsonError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}

		body := http.MaxBytesReader(w, r.Body, maxBytes)
		rd, err := compression.NewReader(body, comp)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "cannot decode body: "+err.Error())
			return
		}
		defer rd.Close()

		offsets, err := app.AppendStream(rd)
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			jsonError(w, http.StatusRequestEntityTooLarge, "body exceeds upload limit")
			return
		case errors.Is(err, source.ErrBadDocument):
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			logger.Error("append failed", zap.Int("shard", id), zap.Error(err))
			jsonError(w, http.StatusInternalServerError, "append failed")
			return
		}
		if len(offsets) == 0 {
			jsonError(w, http.StatusBadRequest, "no documents in body")
			return
		}

		reqID := w.Header().Get(requestIDHeader)
		logger.Info("bundles appended", zap.String("request_id", reqID), zap.Int("shard", id), zap.Int("documents", len(offsets)))
		writeJSON(w, http.StatusAccepted, UploadResponse{RequestID: reqID, Shard: id, Offsets: offsets})
	})
}
