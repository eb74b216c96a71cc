// Package keyword provides a Bleve keyword index over stored documents.
//
// The index is memory-only and rebuilt from the metadata store at startup,
// the same rebuilt-not-persisted pattern the vector index follows. It backs
// the supplemental "keyword" search mode; the grading-hint path is purely
// semantic.
package keyword

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/hyperjump/hinto/internal/models"
)

// Result is a keyword search hit.
type Result struct {
	ID    int64
	Score float64
}

// BleveIndex is a memory-only keyword index over document content.
type BleveIndex struct {
	index bleve.Index
}

type indexedDocument struct {
	Content string `json:"content"`
}

// NewBleveIndex creates an empty in-memory index. Use Rebuild to load it
// from storage.
func NewBleveIndex() (*BleveIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so exact course
	// terminology matches without stem collisions.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create keyword index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces one document.
func (b *BleveIndex) Index(id int64, content string) error {
	return b.index.Index(strconv.FormatInt(id, 10), indexedDocument{Content: content})
}

// IndexBatch indexes documents in one Bleve batch.
func (b *BleveIndex) IndexBatch(docs []*models.Document) error {
	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(strconv.FormatInt(doc.ID, 10), indexedDocument{Content: doc.Content}); err != nil {
			return err
		}
	}
	return b.index.Batch(batch)
}

// Rebuild loads the given documents into the index. Call once at startup
// with every row from the metadata store.
func (b *BleveIndex) Rebuild(docs []*models.Document) error {
	return b.IndexBatch(docs)
}

// Search runs a match query over content and returns up to limit hits, best
// first.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	mq := bleve.NewMatchQuery(query)
	mq.SetField("content")
	req := bleve.NewSearchRequestOptions(mq, limit, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	results := make([]*Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("keyword index holds non-numeric id %q", hit.ID)
		}
		results = append(results, &Result{ID: id, Score: hit.Score})
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (b *BleveIndex) Count() (uint64, error) {
	return b.index.DocCount()
}

// Close releases the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
