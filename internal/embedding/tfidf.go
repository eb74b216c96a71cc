package embedding

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/hyperjump/hinto/pkg/utils"
)

const (
	// Vocabulary cap. The natural dimensionality of a fitted embedder is
	// min(distinct terms, tfidfMaxFeatures); it is reconciled to the
	// configured dimension by truncation or zero-padding.
	tfidfMaxFeatures = 5000
	// Word n-grams from unigrams up to this length are counted as terms.
	tfidfNgramMax = 3
	// Terms appearing in more than this fraction of documents are dropped.
	tfidfMaxDocFreq = 0.95
)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// TFIDF is a locally-fitted embedder: a deterministic TF-IDF vectorizer with
// sublinear term frequency and smoothed inverse document frequency.
// Vocabulary indices are assigned by descending document frequency (ties
// alphabetical), so truncating to the configured dimension keeps the most
// widely attested terms.
type TFIDF struct {
	dimensions int

	mu         sync.RWMutex
	terms      []string // vocabulary in index order
	vocabulary map[string]int
	idf        []float64
	fitted     bool
}

// tfidfState is the gob-serialized form of a fitted TFIDF embedder.
type tfidfState struct {
	Terms      []string
	IDF        []float64
	Dimensions int
}

// NewTFIDF creates an unfitted TF-IDF embedder producing vectors of the
// given dimension.
func NewTFIDF(dimensions int) (*TFIDF, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &TFIDF{dimensions: dimensions}, nil
}

// Fit builds the vocabulary and IDF table from corpus. Fitting twice
// replaces the previous parameters wholesale.
func (e *TFIDF) Fit(ctx context.Context, corpus []string) error {
	if len(corpus) == 0 {
		return fmt.Errorf("cannot fit on empty corpus")
	}
	df := make(map[string]int)
	for _, text := range corpus {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen := make(map[string]struct{})
		for _, term := range terms(text) {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}
	n := len(corpus)
	kept := make([]string, 0, len(df))
	maxDF := int(tfidfMaxDocFreq * float64(n))
	for term, count := range df {
		if count <= maxDF {
			kept = append(kept, term)
		}
	}
	// A tiny corpus can push every term over the document-frequency cutoff;
	// fall back to the unfiltered vocabulary rather than fit nothing.
	if len(kept) == 0 {
		for term := range df {
			kept = append(kept, term)
		}
	}
	if len(kept) == 0 {
		return fmt.Errorf("no terms found in corpus")
	}
	sort.Slice(kept, func(i, j int) bool {
		if df[kept[i]] != df[kept[j]] {
			return df[kept[i]] > df[kept[j]]
		}
		return kept[i] < kept[j]
	})
	if len(kept) > tfidfMaxFeatures {
		kept = kept[:tfidfMaxFeatures]
	}

	vocabulary := make(map[string]int, len(kept))
	idf := make([]float64, len(kept))
	for i, term := range kept {
		vocabulary[term] = i
		idf[i] = math.Log((1+float64(n))/(1+float64(df[term]))) + 1
	}

	e.mu.Lock()
	e.terms = kept
	e.vocabulary = vocabulary
	e.idf = idf
	e.fitted = true
	e.mu.Unlock()
	return nil
}

// IsFitted reports whether Fit has run or a state has been restored.
func (e *TFIDF) IsFitted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fitted
}

// Embed computes the TF-IDF vector for text, reconciles it to the configured
// dimension, and L2-normalizes it. Fails with ErrNotFitted before fitting.
func (e *TFIDF) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.fitted {
		return nil, ErrNotFitted
	}
	counts := make(map[int]int)
	for _, term := range terms(text) {
		if idx, ok := e.vocabulary[term]; ok {
			counts[idx]++
		}
	}
	natural := make([]float32, len(e.terms))
	for idx, count := range counts {
		// Sublinear term frequency.
		natural[idx] = float32((1 + math.Log(float64(count))) * e.idf[idx])
	}
	vec := ensureDimensions(natural, e.dimensions)
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *TFIDF) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the configured output dimension.
func (e *TFIDF) Dimensions() int {
	return e.dimensions
}

// MarshalState serializes the fitted vocabulary and IDF table.
func (e *TFIDF) MarshalState() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.fitted {
		return nil, ErrNotFitted
	}
	var buf bytes.Buffer
	state := tfidfState{Terms: e.terms, IDF: e.idf, Dimensions: e.dimensions}
	if err := gob.NewEncoder(&buf).Encode(&state); err != nil {
		return nil, fmt.Errorf("encode embedder state: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalState restores a state produced by MarshalState. The stored
// dimension must match the configured one.
func (e *TFIDF) UnmarshalState(data []byte) error {
	var state tfidfState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return fmt.Errorf("decode embedder state: %w", err)
	}
	if state.Dimensions != e.dimensions {
		return fmt.Errorf("embedder state has dimension %d, configured %d", state.Dimensions, e.dimensions)
	}
	if len(state.Terms) != len(state.IDF) {
		return fmt.Errorf("embedder state is corrupt: %d terms, %d idf values", len(state.Terms), len(state.IDF))
	}
	vocabulary := make(map[string]int, len(state.Terms))
	for i, term := range state.Terms {
		vocabulary[term] = i
	}
	e.mu.Lock()
	e.terms = state.Terms
	e.idf = state.IDF
	e.vocabulary = vocabulary
	e.fitted = true
	e.mu.Unlock()
	return nil
}

// terms tokenizes text and expands word n-grams up to tfidfNgramMax.
func terms(text string) []string {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, 0, len(tokens)*tfidfNgramMax)
	out = append(out, tokens...)
	for n := 2; n <= tfidfNgramMax; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}
