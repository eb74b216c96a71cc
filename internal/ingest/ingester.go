package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/hinto/internal/vectorstore"
)

// Batch size used when pushing slides into the vector store.
const defaultBatchSize = 50

const (
	metaKeySource     = "source"
	metaKeyLinesStart = "lines_start"
	metaKeyLinesEnd   = "lines_end"
	metaKeySlideIndex = "slide_index"
	metaKeyIngestRun  = "ingest_run"
)

// Ingester segments slide files and adds them to the vector store. The
// corpus is append-only: re-ingesting a file adds its slides again rather
// than replacing them.
type Ingester struct {
	store     *vectorstore.VectorStore
	batchSize int
	logger    *zap.Logger // optional; when set, logs debug events
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(g *Ingester) { g.logger = l }
}

// WithBatchSize overrides the store batch size.
func WithBatchSize(n int) Option {
	return func(g *Ingester) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// NewIngester creates an ingester feeding store.
func NewIngester(store *vectorstore.VectorStore, opts ...Option) *Ingester {
	g := &Ingester{store: store, batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IngestFile splits one slide file and stores its slides. Returns the
// number of slides added.
func (g *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	return g.ingestFile(ctx, path, filepath.Base(path), uuid.New().String())
}

// IngestDirectory walks dir recursively and ingests every regular file
// whose extension is in extensions (empty = all). All files share one
// ingest run id in their metadata. Returns the number of slides added.
func (g *Ingester) IngestDirectory(ctx context.Context, dir string, extensions []string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	run := uuid.New().String()
	total := 0
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !extensionAllowed(filepath.Ext(path), extensions) {
			return nil
		}
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		source, relErr := filepath.Rel(absDir, path)
		if relErr != nil {
			source = filepath.Base(path)
		}
		n, ingestErr := g.ingestFile(ctx, path, source, run)
		if ingestErr != nil {
			return ingestErr
		}
		total += n
		return nil
	})
	return total, err
}

func (g *Ingester) ingestFile(ctx context.Context, path, source, run string) (int, error) {
	slides, err := SplitFile(path, source)
	if err != nil {
		return 0, err
	}
	added := 0
	for start := 0; start < len(slides); start += g.batchSize {
		end := start + g.batchSize
		if end > len(slides) {
			end = len(slides)
		}
		batch := slides[start:end]
		texts := make([]string, len(batch))
		metadatas := make([]map[string]interface{}, len(batch))
		for i, slide := range batch {
			texts[i] = slide.Content
			metadatas[i] = map[string]interface{}{
				metaKeySource:     slide.Source,
				metaKeyLinesStart: slide.LineStart,
				metaKeyLinesEnd:   slide.LineEnd,
				metaKeySlideIndex: slide.Index,
				metaKeyIngestRun:  run,
			}
		}
		if _, err := g.store.AddTexts(ctx, texts, metadatas); err != nil {
			return added, fmt.Errorf("add slides from %s: %w", source, err)
		}
		added += len(batch)
	}
	if g.logger != nil {
		g.logger.Debug("file ingested", zap.String("path", path), zap.Int("slides", added))
	}
	return added, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
