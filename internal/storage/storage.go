// Package storage defines the durable metadata store for documents, their
// vectors, and the embedder state.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/hinto/internal/models"
)

// ErrNotFound is returned when a requested row does not exist. Every other
// storage error is fatal to the calling operation.
var ErrNotFound = errors.New("not found")

// Store is the persistence layer behind the vector store. Document IDs are
// assigned by the store, start at 1, and increase monotonically; deletion is
// unsupported, so IDs stay consecutive.
type Store interface {
	// InsertBatch persists documents with their vectors atomically: either
	// every pair is committed or none are. Returns the assigned IDs in
	// insertion order. len(docs) must equal len(vectors).
	InsertBatch(ctx context.Context, docs []*models.DocumentInput, vectors [][]float32) ([]int64, error)

	// GetDocument returns the document with the given ID, or ErrNotFound.
	GetDocument(ctx context.Context, id int64) (*models.Document, error)

	// AllDocuments returns every document ordered by ascending ID.
	AllDocuments(ctx context.Context) ([]*models.Document, error)

	// AllVectors returns every (id, vector) pair ordered by ascending ID,
	// used to rebuild the in-memory index at startup.
	AllVectors(ctx context.Context) ([]int64, [][]float32, error)

	// UpdateVectors overwrites the vectors for the given IDs in one
	// transaction. Used only when a re-fit regenerates the corpus.
	UpdateVectors(ctx context.Context, ids []int64, vectors [][]float32) error

	// LoadEmbedderState returns the persisted embedder state and fitted
	// flag. A store with no saved state returns (nil, false, nil).
	LoadEmbedderState(ctx context.Context) (state []byte, fitted bool, err error)

	// SaveEmbedderState overwrites the single embedder state slot.
	SaveEmbedderState(ctx context.Context, state []byte, fitted bool) error

	// CountDocuments returns the total number of documents.
	CountDocuments(ctx context.Context) (int64, error)

	Close() error
}
