// Package vectorstore orchestrates the metadata store, the embedding
// provider, and the in-memory vector index, keeping the three consistent.
//
// The index is never persisted: construction replays every stored vector
// into a fresh index, so a restarted store answers exactly what the previous
// session committed.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/hinto/internal/embedding"
	"github.com/hyperjump/hinto/internal/models"
	"github.com/hyperjump/hinto/internal/storage"
	"github.com/hyperjump/hinto/internal/vector"
)

// VectorStore owns one metadata store, one embedder, and one vector index.
// All mutating operations are serialized against each other and against
// searches, so a search observes either the entire pre-mutation index or the
// entire post-mutation index, never a partial rebuild.
type VectorStore struct {
	storage  storage.Store
	embedder embedding.Embedder
	index    vector.Index
	logger   *zap.Logger // optional; when set, logs debug events

	mu sync.RWMutex
	// ids maps index position (insertion rank) to document ID, in the same
	// ascending-ID order the index was loaded in.
	ids []int64
}

// Option configures a VectorStore.
type Option func(*VectorStore)

// WithLogger sets a logger for debug output (index rebuilds, re-fits, etc.).
func WithLogger(l *zap.Logger) Option {
	return func(s *VectorStore) { s.logger = l }
}

// New builds a ready VectorStore: it restores any persisted embedder state
// and rebuilds the vector index from the metadata store. A failure in either
// phase surfaces here rather than on first use.
func New(ctx context.Context, st storage.Store, emb embedding.Embedder, idx vector.Index, opts ...Option) (*VectorStore, error) {
	s := &VectorStore{storage: st, embedder: emb, index: idx}
	for _, opt := range opts {
		opt(s)
	}
	if fittable, ok := emb.(embedding.Fittable); ok {
		state, fitted, err := st.LoadEmbedderState(ctx)
		if err != nil {
			return nil, fmt.Errorf("load embedder state: %w", err)
		}
		if fitted {
			if err := fittable.UnmarshalState(state); err != nil {
				return nil, fmt.Errorf("restore embedder state: %w", err)
			}
		}
	}
	if err := s.reload(ctx); err != nil {
		return nil, fmt.Errorf("rebuild vector index: %w", err)
	}
	return s, nil
}

// reload replays all persisted vectors into the index, ascending ID order.
// Callers must hold the write lock (or be the constructor).
func (s *VectorStore) reload(ctx context.Context) error {
	ids, vecs, err := s.storage.AllVectors(ctx)
	if err != nil {
		return err
	}
	s.index.Reset()
	if err := s.index.Add(vecs); err != nil {
		return err
	}
	s.ids = ids
	if s.logger != nil {
		s.logger.Debug("vector index rebuilt", zap.Int("vectors", len(ids)))
	}
	return nil
}

// AddTexts embeds and persists a batch of (text, metadata) pairs, then
// appends the vectors to the index. The batch is atomic: on any failure the
// metadata store is rolled back and the index is left untouched.
//
// If the embedder is locally fitted and has no parameters yet, it is first
// fitted on the existing corpus plus the new texts; every pre-existing
// vector is then regenerated and the index fully reloaded before the new
// batch is added, preserving the position-to-ID mapping.
func (s *VectorStore) AddTexts(ctx context.Context, texts []string, metadatas []map[string]interface{}) ([]int64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if metadatas == nil {
		metadatas = make([]map[string]interface{}, len(texts))
	}
	if len(metadatas) != len(texts) {
		return nil, fmt.Errorf("texts and metadatas length mismatch: %d vs %d", len(texts), len(metadatas))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if fittable, ok := s.embedder.(embedding.Fittable); ok && !fittable.IsFitted() {
		if err := s.fitAndRegenerate(ctx, fittable, texts); err != nil {
			return nil, err
		}
	}

	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	docs := make([]*models.DocumentInput, len(texts))
	for i, text := range texts {
		docs[i] = &models.DocumentInput{Content: text, Metadata: metadatas[i]}
	}
	// Storage first, index second: a batch that did not commit durably must
	// never reach the index.
	ids, err := s.storage.InsertBatch(ctx, docs, vecs)
	if err != nil {
		return nil, fmt.Errorf("persist batch: %w", err)
	}
	if err := s.index.Add(vecs); err != nil {
		return nil, err
	}
	s.ids = append(s.ids, ids...)
	if s.logger != nil {
		s.logger.Debug("documents added", zap.Int("count", len(ids)), zap.Int("total", s.index.Size()))
	}
	return ids, nil
}

// fitAndRegenerate fits the embedder on the full corpus (existing documents
// plus the incoming texts), persists the new state, and regenerates every
// pre-existing vector so old and new documents live in the same embedding
// space. Must run to completion before the new batch is embedded, or the
// position-to-ID mapping breaks.
func (s *VectorStore) fitAndRegenerate(ctx context.Context, fittable embedding.Fittable, texts []string) error {
	existing, err := s.storage.AllDocuments(ctx)
	if err != nil {
		return fmt.Errorf("load existing documents: %w", err)
	}
	corpus := make([]string, 0, len(existing)+len(texts))
	for _, doc := range existing {
		corpus = append(corpus, doc.Content)
	}
	corpus = append(corpus, texts...)

	if s.logger != nil {
		s.logger.Info("fitting embedder", zap.Int("corpus_size", len(corpus)))
	}
	if err := fittable.Fit(ctx, corpus); err != nil {
		return fmt.Errorf("fit embedder: %w", err)
	}
	state, err := fittable.MarshalState()
	if err != nil {
		return fmt.Errorf("serialize embedder state: %w", err)
	}
	if err := s.storage.SaveEmbedderState(ctx, state, true); err != nil {
		return fmt.Errorf("persist embedder state: %w", err)
	}

	if len(existing) == 0 {
		return nil
	}
	contents := make([]string, len(existing))
	ids := make([]int64, len(existing))
	for i, doc := range existing {
		contents[i] = doc.Content
		ids[i] = doc.ID
	}
	regenerated, err := fittable.EmbedBatch(ctx, contents)
	if err != nil {
		return fmt.Errorf("regenerate vectors: %w", err)
	}
	if err := s.storage.UpdateVectors(ctx, ids, regenerated); err != nil {
		return fmt.Errorf("persist regenerated vectors: %w", err)
	}
	s.index.Reset()
	if err := s.index.Add(regenerated); err != nil {
		return err
	}
	s.ids = ids
	if s.logger != nil {
		s.logger.Info("regenerated vectors after fit", zap.Int("count", len(ids)))
	}
	return nil
}

// Search embeds the query and returns up to k documents ordered by
// descending similarity. An empty store yields an empty result set, not an
// error.
func (s *VectorStore) Search(ctx context.Context, query string, k int) ([]*models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.index.Size() == 0 {
		return []*models.SearchResult{}, nil
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.index.Search(queryVec, k)
	if err != nil {
		if errors.Is(err, vector.ErrEmptyIndex) {
			return []*models.SearchResult{}, nil
		}
		return nil, err
	}
	results := make([]*models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Position >= len(s.ids) {
			return nil, fmt.Errorf("index position %d has no document id", hit.Position)
		}
		doc, err := s.storage.GetDocument(ctx, s.ids[hit.Position])
		if err != nil {
			return nil, fmt.Errorf("resolve result: %w", err)
		}
		results = append(results, &models.SearchResult{Document: doc, Similarity: hit.Score})
	}
	return results, nil
}

// Size returns the number of indexed documents.
func (s *VectorStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Size()
}

// Dimensions returns the embedding dimension.
func (s *VectorStore) Dimensions() int {
	return s.embedder.Dimensions()
}

// Fitted reports whether the embedder is usable: always true for stateless
// embedders, the fit flag for locally-fitted ones.
func (s *VectorStore) Fitted() bool {
	if fittable, ok := s.embedder.(embedding.Fittable); ok {
		return fittable.IsFitted()
	}
	return true
}

// Close releases the storage handle.
func (s *VectorStore) Close() error {
	return s.storage.Close()
}
