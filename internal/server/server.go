// Package server exposes the pipeline's health, status, and Prometheus
// metrics over HTTP while an analysis run is active.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/climatrend/climatrend/internal/pipeline"
)

// StatusReporter provides the pipeline's progress snapshot.
type StatusReporter interface {
	Status() pipeline.Status
}

// Server is the optional status/metrics HTTP surface.
type Server struct {
	srv      *http.Server
	reporter StatusReporter
	logger   *zap.SugaredLogger
}

// New builds the server with its router.
func New(listen string, reporter StatusReporter, logger *zap.SugaredLogger) *Server {
	s := &Server{
		reporter: reporter,
		logger:   logger,
	}
	s.srv = &http.Server{
		Addr:         listen,
		Handler:      s.setupRouter(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth)
	router.HandleFunc("/status", s.handleStatus)
	router.Handle("/metrics", promhttp.Handler())
	return router
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Infof("status server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("status server: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.reporter.Status()); err != nil {
		s.logger.Errorf("encoding status: %v", err)
	}
}
