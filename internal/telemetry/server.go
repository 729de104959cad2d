package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"framelens/internal/logging"
)

// Server serves the Prometheus scrape endpoint and a liveness probe.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds a metrics server bound to addr. An empty addr disables
// telemetry; Start and Shutdown become no-ops.
func NewServer(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	if addr == "" {
		return &Server{logger: logger}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	if s.srv == nil {
		return
	}
	go func() {
		s.logger.Info("metrics server listening", logging.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", logging.Error(err))
		}
	}()
}

// Shutdown stops the listener, waiting for in-flight scrapes.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
