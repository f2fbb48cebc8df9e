package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chtzvt/bundleslurp/internal/source"
	"github.com/chtzvt/bundleslurp/internal/worker"
)

const defaultMaxUploadBytes = 64 << 20

// StatusProvider reports per-shard progress.
type StatusProvider interface {
	Status() []worker.ShardSnapshot
}

// Server wraps the HTTP API and its config/state
type Server struct {
	NodeID   string
	Addr     string
	Logger   *zap.Logger
	Config   *Config
	Status   StatusProvider
	Gatherer prometheus.Gatherer
	// Uploads maps a shard id to the log its uploaded bundles are appended
	// to. Shards fed by other sources are absent.
	Uploads map[int]*source.Appender

	server *http.Server
}

type Config struct {
	Enabled        bool     `mapstructure:"enabled"`
	ListenAddr     string   `mapstructure:"listen_addr"`
	AuthTokens     []string `mapstructure:"auth_tokens"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`
}

func NewServer(nodeID string, config Config, status StatusProvider, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = defaultMaxUploadBytes
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		NodeID:   nodeID,
		Addr:     config.ListenAddr,
		Config:   &config,
		Status:   status,
		Gatherer: gatherer,
		Logger:   logger.Named("api"),
		Uploads:  make(map[int]*source.Appender),
	}
}

// Handler builds the routing tree. Everything under /api/ needs a bearer
// token.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))

	protected := http.NewServeMux()
	RegisterStatusHandlers(protected, s.NodeID, s.Status)
	RegisterBundleHandlers(protected, s.Uploads, s.Config.MaxUploadBytes, s.Logger)

	mux.Handle("/api/", TokenAuthMiddleware(s.Config.AuthTokens, protected))
	return RequestIDMiddleware(s.Logger, mux)
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.Logger.Info("API server listening", zap.String("addr", s.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
