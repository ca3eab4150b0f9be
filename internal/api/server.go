// Package api exposes the read-only projection over HTTP. Writes only
// ever come from the reconciliation pipeline; clients query here.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/splits-indexer/internal/config"
	"github.com/splits-indexer/internal/logging"
	"github.com/splits-indexer/internal/storage"
)

// Server serves the projection API
type Server struct {
	db         *storage.PostgresDB
	projects   *storage.ProjectRepository
	dripLists  *storage.DripListRepository
	ecosystems *storage.EcosystemRepository
	subLists   *storage.SubListRepository
	identities *storage.LinkedIdentityRepository
	deadlines  *storage.DeadlineRepository
	receivers  *storage.SplitReceiverRepository
	resolver   *storage.AccountResolver
	logger     *logging.Logger
	httpServer *http.Server
}

// NewServer creates the API server
func NewServer(db *storage.PostgresDB, cfg *config.APIConfig, logger *logging.Logger) *Server {
	s := &Server{
		db:         db,
		projects:   storage.NewProjectRepository(),
		dripLists:  storage.NewDripListRepository(),
		ecosystems: storage.NewEcosystemRepository(),
		subLists:   storage.NewSubListRepository(),
		identities: storage.NewLinkedIdentityRepository(),
		deadlines:  storage.NewDeadlineRepository(),
		receivers:  storage.NewSplitReceiverRepository(),
		resolver:   storage.NewAccountResolver(),
		logger:     logger,
	}

	router := mux.NewRouter()
	router.Use(s.requestLogging)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/accounts/{id}", s.handleGetAccount).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}/receivers", s.handleGetReceivers).Methods(http.MethodGet)
	v1.HandleFunc("/projects/{id}", s.handleGetProject).Methods(http.MethodGet)
	v1.HandleFunc("/drip-lists/{id}", s.handleGetDripList).Methods(http.MethodGet)
	v1.HandleFunc("/deadlines/{id}", s.handleGetDeadline).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		logger := s.logger.WithRequestID(requestID)
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(logging.WithLogger(r.Context(), logger)))
		logger.WithFields(map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"durationMs": time.Since(start).Milliseconds(),
		}).Debug("Request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
