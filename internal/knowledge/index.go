// Package knowledge implements the retrieval index queried by researchers
// and the ingestion path that fills it.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/embeddings"
	"github.com/Kocoro-lab/deepresearch/internal/tools"
	"github.com/Kocoro-lab/deepresearch/internal/vectordb"
)

// Embedder produces vectors for texts.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text, model string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// VectorStore persists and searches vectors.
type VectorStore interface {
	Search(ctx context.Context, vec []float32, limit int, withVectors bool) ([]vectordb.Point, error)
	Upsert(ctx context.Context, points []vectordb.UpsertItem) (*vectordb.UpsertResponse, error)
	EnsureCollection(ctx context.Context, dim int) error
}

// Options tune retrieval.
type Options struct {
	MMREnabled        bool
	MMRLambda         float64
	MMRPoolMultiplier int
	Chunking          embeddings.ChunkingConfig
	// BatchSize bounds texts per embedding call during ingestion
	BatchSize int
}

// OptionsFrom derives retrieval options from client configs.
func OptionsFrom(vc vectordb.Config, ec embeddings.Config) Options {
	return Options{
		MMREnabled:        vc.MMREnabled,
		MMRLambda:         vc.MMRLambda,
		MMRPoolMultiplier: vc.MMRPoolMultiplier,
		Chunking:          ec.Chunking,
	}
}

// Index answers query_index calls.
type Index struct {
	embedder Embedder
	store    VectorStore
	chunker  *embeddings.Chunker
	opts     Options
	logger   *zap.Logger
}

// New creates an index.
func New(embedder Embedder, store VectorStore, opts Options, logger *zap.Logger) *Index {
	if opts.MMRPoolMultiplier <= 0 {
		opts.MMRPoolMultiplier = 3
	}
	if opts.MMRLambda <= 0 {
		opts.MMRLambda = 0.7
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		embedder: embedder,
		store:    store,
		chunker:  embeddings.NewChunker(opts.Chunking),
		opts:     opts,
		logger:   logger,
	}
}

var _ tools.KnowledgeIndex = (*Index)(nil)

// Query returns up to limit passages relevant to query.
func (ix *Index) Query(ctx context.Context, query string, limit int) ([]tools.Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if limit <= 0 {
		limit = 5
	}
	vec, err := ix.embedder.GenerateEmbedding(ctx, query, "")
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	pool := limit
	if ix.opts.MMREnabled {
		pool = limit * ix.opts.MMRPoolMultiplier
	}
	points, err := ix.store.Search(ctx, vec, pool, ix.opts.MMREnabled)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	if ix.opts.MMREnabled {
		points = vectordb.MMRReorder(vec, points, ix.opts.MMRLambda)
	}
	if len(points) > limit {
		points = points[:limit]
	}

	out := make([]tools.Passage, 0, len(points))
	for _, p := range points {
		text, _ := p.Payload["text"].(string)
		if text == "" {
			continue
		}
		source, _ := p.Payload["source"].(string)
		out = append(out, tools.Passage{Source: source, Text: text, Score: p.Score})
	}
	return out, nil
}

// Ingest chunks a document, embeds the chunks and upserts them. It returns
// the number of chunks written.
func (ix *Index) Ingest(ctx context.Context, source, text string) (int, error) {
	chunks := ix.chunker.ChunkDocument(source, text)
	if len(chunks) == 0 {
		return 0, nil
	}
	written := 0
	for start := 0; start < len(chunks); start += ix.opts.BatchSize {
		batch := chunks[start:min(start+ix.opts.BatchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vecs, err := ix.embedder.GenerateBatchEmbeddings(ctx, texts, "")
		if err != nil {
			return written, fmt.Errorf("embed %s: %w", source, err)
		}
		if written == 0 {
			if err := ix.store.EnsureCollection(ctx, len(vecs[0])); err != nil {
				return 0, fmt.Errorf("ensure collection: %w", err)
			}
		}
		points := make([]vectordb.UpsertItem, len(batch))
		for i, c := range batch {
			points[i] = vectordb.UpsertItem{
				ID:     uuid.NewString(),
				Vector: vecs[i],
				Payload: map[string]any{
					"text":         c.Text,
					"source":       c.Source,
					"doc_id":       c.DocID,
					"chunk_index":  c.Index,
					"total_chunks": c.TotalCount,
				},
			}
		}
		if _, err := ix.store.Upsert(ctx, points); err != nil {
			return written, fmt.Errorf("upsert %s: %w", source, err)
		}
		written += len(batch)
	}
	ix.logger.Info("Ingested document", zap.String("source", source), zap.Int("chunks", written))
	return written, nil
}
