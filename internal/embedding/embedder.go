// Package embedding provides text embedding strategies for the vector store:
// a locally-fitted TF-IDF embedder whose parameters are learned from the
// corpus itself, and a remote client for OpenAI-compatible embedding services.
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations must return
// unit-norm vectors of exactly Dimensions() components; normalization happens
// here, once, never in the callers.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Fittable is an Embedder whose parameters are learned from the indexed
// corpus and persisted alongside it. Embed fails with ErrNotFitted until
// Fit has run or a serialized state has been restored.
type Fittable interface {
	Embedder

	// Fit learns the embedding parameters from corpus. Deterministic for a
	// fixed corpus.
	Fit(ctx context.Context, corpus []string) error
	// IsFitted reports whether the embedder has usable parameters.
	IsFitted() bool
	// MarshalState serializes the fitted parameters for persistence.
	MarshalState() ([]byte, error)
	// UnmarshalState restores parameters previously produced by MarshalState
	// and marks the embedder fitted.
	UnmarshalState(state []byte) error
}

// ensureDimensions reconciles a vector whose natural length differs from the
// configured dimension: longer vectors are truncated, shorter ones
// zero-padded. Callers normalize afterwards.
func ensureDimensions(vec []float32, dimensions int) []float32 {
	if len(vec) == dimensions {
		return vec
	}
	if len(vec) > dimensions {
		return vec[:dimensions]
	}
	padded := make([]float32, dimensions)
	copy(padded, vec)
	return padded
}
