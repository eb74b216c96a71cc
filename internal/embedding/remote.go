package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyperjump/hinto/pkg/utils"
)

const defaultRemoteTimeout = 30 * time.Second

// RemoteConfig configures a Remote embedder.
type RemoteConfig struct {
	// BaseURL of an OpenAI-compatible embeddings API (without /embeddings).
	BaseURL string
	// Model name passed through to the service.
	Model string
	// APIKey sent as a bearer token when non-empty. Local services such as
	// Ollama accept requests without one.
	APIKey string
	// Dimensions the store expects; service output is truncated or
	// zero-padded to match.
	Dimensions int
	Timeout    time.Duration
	// CacheSize bounds the embedding LRU cache. 0 disables caching.
	CacheSize int
}

// Remote embeds text by calling an OpenAI-compatible embeddings endpoint.
// It is stateless: there is no fit step and nothing is persisted. Calls are
// not retried; a failed request surfaces as ErrProviderUnavailable.
type Remote struct {
	baseURL    string
	model      string
	apiKey     string
	dimensions int
	client     *http.Client
	cache      *EmbeddingCache
}

// NewRemote creates a remote embedder from cfg.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote embedder requires a base URL")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("remote embedder requires a model name")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultRemoteTimeout
	}
	r := &Remote{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
	}
	if cfg.CacheSize > 0 {
		r.cache = NewEmbeddingCache(cfg.CacheSize)
	}
	return r, nil
}

// Embed returns the embedding for a single text.
func (r *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	if r.cache != nil {
		if vec, ok := r.cache.Get(text); ok {
			return vec, nil
		}
	}
	vecs, err := r.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in a single request, preserving order.
func (r *Remote) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return r.request(ctx, texts)
}

// Dimensions returns the configured output dimension.
func (r *Remote) Dimensions() int {
	return r.dimensions
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (r *Remote) request(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: r.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embeddings request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, resp.Status)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}
	var out embedResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrProviderUnavailable, len(out.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, item := range out.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrProviderUnavailable, item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		for i, x := range item.Embedding {
			vec[i] = float32(x)
		}
		vec = ensureDimensions(vec, r.dimensions)
		utils.NormalizeL2(vec)
		vecs[item.Index] = vec
	}
	for i, vec := range vecs {
		if vec == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", ErrProviderUnavailable, i)
		}
	}
	if r.cache != nil {
		for i, text := range texts {
			r.cache.Set(text, vecs[i])
		}
	}
	return vecs, nil
}
