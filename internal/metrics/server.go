package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	mcommon "github.com/veltran/marketsync/internal/common"
	"github.com/veltran/marketsync/internal/logger"
	"github.com/veltran/marketsync/pkg/config"
)

// Server is the operations HTTP server: Prometheus metrics, the health
// probe and the status document.
type Server struct {
	config *config.MetricsConfig
	status http.Handler
	log    *logger.Logger
	server *http.Server
	stopCh chan struct{}
}

// NewServer creates the operations server. status may be nil; the /status
// route is then not mounted.
func NewServer(cfg *config.MetricsConfig, status http.Handler, log *logger.Logger) *Server {
	return &Server{
		config: cfg,
		status: status,
		log:    log.WithComponent(mcommon.ComponentMetrics),
		stopCh: make(chan struct{}),
	}
}

// Start starts the HTTP server and the system metrics updater.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Infow("metrics server disabled")
		return nil
	}

	s.server = &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.buildMux(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go s.updateSystemMetrics(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorw("metrics server failed", "address", s.config.ListenAddress, "error", err)
		}
	}()

	s.log.Infow("metrics server started",
		"address", s.config.ListenAddress, "path", s.config.Path)
	return nil
}

// buildMux assembles the route table.
func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle(s.config.Path, promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if s.status != nil {
		mux.Handle("/status", s.status)
	}

	return mux
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	close(s.stopCh)

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}

	return nil
}

// updateSystemMetrics periodically refreshes runtime metrics.
func (s *Server) updateSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			UpdateSystemMetrics()
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}
