// Package vector provides the in-memory vector index used for similarity search.
//
// The index is transient: it is never persisted and is always rebuilt from the
// metadata store at startup. Positions are stable insertion ranks (0-based),
// which the orchestrator maps back to document IDs.
package vector

import "errors"

// ErrEmptyIndex is returned by Search when the index holds no vectors.
// The vector store translates it into an empty result set.
var ErrEmptyIndex = errors.New("vector index is empty")

// ErrDimensionMismatch is returned when a vector of the wrong length reaches
// the index. This is a programming error; the index never truncates or pads.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Result is a single index hit: the insertion rank of the matched vector and
// its inner-product score against the query (cosine similarity for unit-norm
// vectors, in [-1, 1]).
type Result struct {
	Position int
	Score    float64
}

// Index is an in-memory k-nearest-neighbor index over fixed-dimension vectors.
type Index interface {
	// Add appends vectors to the index in the given order.
	Add(vectors [][]float32) error
	// Search returns up to k results ordered by descending score, ties broken
	// by lower position. Returns ErrEmptyIndex when the index is empty.
	Search(query []float32, k int) ([]Result, error)
	// Reset drops all vectors, returning the index to empty.
	Reset()
	// Size returns the number of indexed vectors.
	Size() int
	// Dimensions returns the fixed vector dimension.
	Dimensions() int
}
