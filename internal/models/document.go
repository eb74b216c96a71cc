// Package models defines core data structures for documents and search results.
package models

// Document is a stored text fragment with metadata. The ID is assigned by the
// metadata store, starts at 1, and increases monotonically. Documents are
// immutable once written; only their vectors are regenerated on a re-fit.
type Document struct {
	ID       int64                  `json:"id" db:"id"`
	Content  string                 `json:"content" db:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
}

// DocumentInput is a single (text, metadata) pair to be added to the store.
type DocumentInput struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SearchResult is one search hit: the resolved document and its cosine
// similarity to the query, in [-1, 1].
type SearchResult struct {
	Document   *Document `json:"document"`
	Similarity float64   `json:"similarity"`
}

// SearchQuery is a search request.
type SearchQuery struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	// Mode selects the search backend: "semantic" (default) or "keyword".
	Mode string `json:"mode,omitempty"`
}

// SearchResponse is the result of a search request.
type SearchResponse struct {
	Query       string          `json:"query"`
	Mode        string          `json:"mode"`
	Results     []*SearchResult `json:"results"`
	QueryTimeMs int64           `json:"query_time_ms"`
}
