package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the operations listener. Scrapes and health probes land on their
// own port so they never pass through the API's rate limiter or request
// timeout.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer serves gatherer on /metrics and each probe handler on its path.
func NewServer(port int, gatherer prometheus.Gatherer, probes map[string]http.Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
	for path, h := range probes {
		mux.Handle("GET "+path, h)
	}
	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: slog.Default().With("component", "ops-server"),
	}
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run listens in the background until ctx ends, then shuts down within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) {
	go func() {
		s.logger.Info("ops server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("ops server shutdown", "error", err)
		}
	}()
}
