// Package server provides the HTTP API for Hinto.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/hinto/internal/config"
	"github.com/hyperjump/hinto/internal/keyword"
	"github.com/hyperjump/hinto/internal/storage"
	"github.com/hyperjump/hinto/internal/vectorstore"
)

// Server is the HTTP server for the Hinto API.
type Server struct {
	store   *vectorstore.VectorStore
	keyword *keyword.BleveIndex
	storage storage.Store
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies. The keyword index
// is rebuilt from the metadata store so both backends answer over the same
// corpus.
func NewServer(
	store *vectorstore.VectorStore,
	kw *keyword.BleveIndex,
	st storage.Store,
	cfg *config.Config,
	logger *zap.Logger,
) (*Server, error) {
	docs, err := st.AllDocuments(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load documents for keyword index: %w", err)
	}
	if err := kw.Rebuild(docs); err != nil {
		return nil, fmt.Errorf("rebuild keyword index: %w", err)
	}
	return &Server{
		store:   store,
		keyword: kw,
		storage: st,
		config:  cfg,
		logger:  logger,
	}, nil
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/documents", s.handleAddDocuments)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
