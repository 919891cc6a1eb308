package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "tickflow/config"
	"tickflow/logger"
)

// Server exposes /metrics and /health over HTTP.
type Server struct {
	config  *appconfig.Config
	metrics *Metrics
	srv     *http.Server
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewServer(cfg *appconfig.Config, m *Metrics) *Server {
	return &Server{
		config:  cfg,
		metrics: m,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("metrics server already running")
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.handleHealth)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log := s.log.WithComponent("metrics_server")
	log.WithFields(logger.Fields{"port": s.config.Metrics.Port}).Info("starting metrics server")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	return nil
}

func (s *Server) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	if s.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}
	s.wg.Wait()
	s.log.WithComponent("metrics_server").Info("metrics server stopped")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.metrics.Health()

	w.Header().Set("Content-Type", "application/json")
	if !s.metrics.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.log.WithComponent("metrics_server").WithError(err).Warn("failed to encode health response")
	}
}
