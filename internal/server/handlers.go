package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/hinto/internal/models"
	"github.com/hyperjump/hinto/internal/storage"
)

const (
	modeSemantic = "semantic"
	modeKeyword  = "keyword"
)

type addDocumentsRequest struct {
	Documents []*models.DocumentInput `json:"documents"`
}

type addDocumentsResponse struct {
	IDs   []int64 `json:"ids"`
	Count int     `json:"count"`
}

func (s *Server) handleAddDocuments(w http.ResponseWriter, r *http.Request) {
	var req addDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Documents) == 0 {
		s.respondError(w, http.StatusBadRequest, "documents is required")
		return
	}
	texts := make([]string, len(req.Documents))
	metadatas := make([]map[string]interface{}, len(req.Documents))
	for i, doc := range req.Documents {
		texts[i] = doc.Content
		metadatas[i] = doc.Metadata
	}
	s.logger.Debug("add documents request", zap.Int("count", len(texts)))
	ids, err := s.store.AddTexts(r.Context(), texts, metadatas)
	if err != nil {
		s.logger.Error("add documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	indexed := make([]*models.Document, len(ids))
	for i, id := range ids {
		indexed[i] = &models.Document{ID: id, Content: texts[i]}
	}
	if err := s.keyword.IndexBatch(indexed); err != nil {
		// The batch is durable; only keyword search lags until restart.
		s.logger.Warn("keyword indexing failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusCreated, addDocumentsResponse{IDs: ids, Count: len(ids)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if query.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	if query.Limit <= 0 {
		query.Limit = s.config.Search.DefaultLimit
	}
	if query.Limit > s.config.Search.MaxLimit {
		query.Limit = s.config.Search.MaxLimit
	}
	if query.Mode == "" {
		query.Mode = modeSemantic
	}
	s.logger.Debug("search request",
		zap.String("query", query.Query),
		zap.String("mode", query.Mode),
		zap.Int("limit", query.Limit))

	start := time.Now()
	var (
		results []*models.SearchResult
		err     error
	)
	switch query.Mode {
	case modeSemantic:
		results, err = s.store.Search(r.Context(), query.Query, query.Limit)
	case modeKeyword:
		results, err = s.keywordSearch(r, query.Query, query.Limit)
	default:
		s.respondError(w, http.StatusBadRequest, "unknown search mode")
		return
	}
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, &models.SearchResponse{
		Query:       query.Query,
		Mode:        query.Mode,
		Results:     results,
		QueryTimeMs: time.Since(start).Milliseconds(),
	})
}

func (s *Server) keywordSearch(r *http.Request, query string, limit int) ([]*models.SearchResult, error) {
	hits, err := s.keyword.Search(r.Context(), query, limit)
	if err != nil {
		return nil, err
	}
	results := make([]*models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		doc, err := s.storage.GetDocument(r.Context(), hit.ID)
		if err != nil {
			return nil, err
		}
		results = append(results, &models.SearchResult{Document: doc, Similarity: hit.Score})
	}
	return results, nil
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("get document failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	docCount, err := s.storage.CountDocuments(r.Context())
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"documents":         docCount,
		"vector_index_size": s.store.Size(),
		"dimensions":        s.store.Dimensions(),
		"fitted":            s.store.Fitted(),
		"config": map[string]interface{}{
			"embedding_strategy": s.config.Embedding.Strategy,
			"namespace":          s.config.Storage.Namespace,
			"database_path":      s.config.Storage.DatabasePath,
		},
	}
	if keywordCount, err := s.keyword.Count(); err == nil {
		resp["keyword_index_size"] = keywordCount
	}
	if diskBytes, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
