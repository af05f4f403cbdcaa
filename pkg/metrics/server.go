package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// Server exposes /metrics for a background worker.
type Server struct {
	http *http.Server
	logg *logger.Logger
}

// Handler serves gatherer in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Serve starts listening on addr in the background. An empty addr disables
// the endpoint and returns nil, which Shutdown accepts.
func Serve(ctx context.Context, logg *logger.Logger, addr string, gatherer prometheus.Gatherer) *Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	s := &Server{
		http: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		logg: logg,
	}
	go func() {
		logg.Info(logg.WithField(ctx, "addr", addr), "metrics server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server failed", err)
		}
	}()
	return s
}

func (s *Server) Shutdown() {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logg.Error(ctx, "metrics server shutdown failed", err)
	}
}
