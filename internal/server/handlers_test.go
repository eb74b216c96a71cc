package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/hinto/internal/config"
	"github.com/hyperjump/hinto/internal/embedding"
	"github.com/hyperjump/hinto/internal/keyword"
	"github.com/hyperjump/hinto/internal/models"
	"github.com/hyperjump/hinto/internal/storage"
	"github.com/hyperjump/hinto/internal/vector"
	"github.com/hyperjump/hinto/internal/vectorstore"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := storage.NewSQLiteStore(dbPath, "hints")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	idx, err := vector.NewFlatIndex(64)
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	vs, err := vectorstore.New(context.Background(), st, embedding.NewMockEmbedder(64), idx)
	if err != nil {
		t.Fatalf("failed to create vector store: %v", err)
	}
	kw, err := keyword.NewBleveIndex()
	if err != nil {
		t.Fatalf("failed to create keyword index: %v", err)
	}
	t.Cleanup(func() { kw.Close() })

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = dbPath
	cfg.Embedding.Dimensions = 64

	srv, err := NewServer(vs, kw, st, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func addTestDocuments(t *testing.T, handler http.Handler, contents ...string) []int64 {
	t.Helper()
	docs := make([]*models.DocumentInput, len(contents))
	for i, c := range contents {
		docs[i] = &models.DocumentInput{Content: c, Metadata: map[string]interface{}{"ord": float64(i)}}
	}
	rec := postJSON(t, handler, "/api/v1/documents", addDocumentsRequest{Documents: docs})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add documents returned status %d: %s", rec.Code, rec.Body.String())
	}
	var resp addDocumentsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode add response: %v", err)
	}
	return resp.IDs
}

func TestHandleAddDocuments(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Router()

	ids := addTestDocuments(t, handler, "bayes theorem", "markov chains")
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
	if ids[0] != 1 || ids[1] != 2 {
		t.Errorf("expected ids [1 2], got %v", ids)
	}
}

func TestHandleAddDocuments_Empty(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Router()

	rec := postJSON(t, handler, "/api/v1/documents", addDocumentsRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty batch, got %d", rec.Code)
	}
}

func TestHandleSearch_Semantic(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Router()
	addTestDocuments(t, handler, "bayes theorem", "markov chains", "gradient descent")

	rec := postJSON(t, handler, "/api/v1/search", models.SearchQuery{Query: "markov chains", Limit: 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("search returned status %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode search response: %v", err)
	}
	if resp.Mode != modeSemantic {
		t.Errorf("expected default mode semantic, got %q", resp.Mode)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	// Hash embeddings are deterministic, so the exact text matches itself.
	if resp.Results[0].Document.Content != "markov chains" {
		t.Errorf("expected top result to be the query text, got %q", resp.Results[0].Document.Content)
	}
	if resp.Results[0].Similarity < 0.999 {
		t.Errorf("expected self-similarity ~1.0, got %f", resp.Results[0].Similarity)
	}
}

func TestHandleSearch_EmptyStore(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Router()

	rec := postJSON(t, handler, "/api/v1/search", models.SearchQuery{Query: "anything"})
	if rec.Code != http.StatusOK {
		t.Fatalf("search returned status %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode search response: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected no results from empty store, got %d", len(resp.Results))
	}
}

func TestHandleSearch_Keyword(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Router()
	addTestDocuments(t, handler,
		"bayesian inference updates beliefs",
		"stochastic gradient descent",
		"bayesian networks encode dependencies")

	rec := postJSON(t, handler, "/api/v1/search", models.SearchQuery{Query: "bayesian", Mode: "keyword"})
	if rec.Code != http.StatusOK {
		t.Fatalf("search returned status %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode search response: %v", err)
	}
	if resp.Mode != modeKeyword {
		t.Errorf("expected mode keyword, got %q", resp.Mode)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 keyword hits, got %d", len(resp.Results))
	}
	for _, res := range resp.Results {
		if res.Document == nil || res.Document.ID == 0 {
			t.Error("keyword result missing resolved document")
		}
	}
}

func TestHandleSearch_UnknownMode(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Router()

	rec := postJSON(t, handler, "/api/v1/search", models.SearchQuery{Query: "x", Mode: "hybrid"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown mode, got %d", rec.Code)
	}
}

func TestHandleSearch_MissingQuery(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Router()

	rec := postJSON(t, handler, "/api/v1/search", models.SearchQuery{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing query, got %d", rec.Code)
	}
}

func TestHandleGetDocument(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Router()
	ids := addTestDocuments(t, handler, "central limit theorem")

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/documents/%d", ids[0]), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get document returned status %d: %s", rec.Code, rec.Body.String())
	}
	var doc models.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}
	if doc.Content != "central limit theorem" {
		t.Errorf("unexpected content %q", doc.Content)
	}
}

func TestHandleGetDocument_NotFound(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/42", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Router()
	addTestDocuments(t, handler, "one", "two")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if resp["documents"].(float64) != 2 {
		t.Errorf("expected 2 documents, got %v", resp["documents"])
	}
	if resp["vector_index_size"].(float64) != 2 {
		t.Errorf("expected vector index size 2, got %v", resp["vector_index_size"])
	}
	if resp["fitted"] != true {
		t.Errorf("expected fitted true, got %v", resp["fitted"])
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestKeywordIndexRebuiltOnStartup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := storage.NewSQLiteStore(dbPath, "hints")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	idx, _ := vector.NewFlatIndex(64)
	vs, err := vectorstore.New(context.Background(), st, embedding.NewMockEmbedder(64), idx)
	if err != nil {
		t.Fatalf("failed to create vector store: %v", err)
	}
	if _, err := vs.AddTexts(context.Background(), []string{"persisted before server start"}, nil); err != nil {
		t.Fatalf("failed to add text: %v", err)
	}

	kw, err := keyword.NewBleveIndex()
	if err != nil {
		t.Fatalf("failed to create keyword index: %v", err)
	}
	defer kw.Close()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	srv, err := NewServer(vs, kw, st, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := postJSON(t, srv.Router(), "/api/v1/search", models.SearchQuery{Query: "persisted", Mode: "keyword"})
	if rec.Code != http.StatusOK {
		t.Fatalf("search returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode search response: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 keyword hit after rebuild, got %d", len(resp.Results))
	}
}
