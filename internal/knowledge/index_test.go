package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/deepresearch/internal/embeddings"
	"github.com/Kocoro-lab/deepresearch/internal/vectordb"
)

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) GenerateEmbedding(_ context.Context, text, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f fakeEmbedder) GenerateBatchEmbeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.GenerateEmbedding(ctx, t, model)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type fakeStore struct {
	points     []vectordb.Point
	lastLimit  int
	upserts    [][]vectordb.UpsertItem
	ensuredDim int
}

func (s *fakeStore) Search(_ context.Context, _ []float32, limit int, _ bool) ([]vectordb.Point, error) {
	s.lastLimit = limit
	if len(s.points) > limit {
		return s.points[:limit], nil
	}
	return s.points, nil
}

func (s *fakeStore) Upsert(_ context.Context, pts []vectordb.UpsertItem) (*vectordb.UpsertResponse, error) {
	s.upserts = append(s.upserts, pts)
	return &vectordb.UpsertResponse{Status: "completed"}, nil
}

func (s *fakeStore) EnsureCollection(_ context.Context, dim int) error {
	s.ensuredDim = dim
	return nil
}

func TestQueryMapsPayloads(t *testing.T) {
	store := &fakeStore{points: []vectordb.Point{
		{ID: "1", Score: 0.9, Payload: map[string]any{"text": "alpha", "source": "a.md"}},
		{ID: "2", Score: 0.8, Payload: map[string]any{"source": "empty.md"}},
		{ID: "3", Score: 0.7, Payload: map[string]any{"text": "gamma", "source": "c.md"}},
	}}
	ix := New(fakeEmbedder{}, store, Options{}, zaptest.NewLogger(t))

	got, err := ix.Query(context.Background(), "what is alpha", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.md", got[0].Source)
	assert.Equal(t, "gamma", got[1].Text)
	assert.Equal(t, 5, store.lastLimit)
}

func TestQueryWithMMRWidensPool(t *testing.T) {
	store := &fakeStore{points: []vectordb.Point{
		{ID: "1", Payload: map[string]any{"text": "a"}, Vector: []float32{1, 0}},
		{ID: "2", Payload: map[string]any{"text": "b"}, Vector: []float32{1, 0}},
		{ID: "3", Payload: map[string]any{"text": "c"}, Vector: []float32{0, 1}},
	}}
	ix := New(fakeEmbedder{}, store, Options{MMREnabled: true, MMRPoolMultiplier: 3}, zaptest.NewLogger(t))

	got, err := ix.Query(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Equal(t, 6, store.lastLimit)
	assert.Len(t, got, 2)
}

func TestQueryErrors(t *testing.T) {
	ix := New(fakeEmbedder{err: errors.New("down")}, &fakeStore{}, Options{}, zaptest.NewLogger(t))
	_, err := ix.Query(context.Background(), "q", 3)
	assert.ErrorContains(t, err, "embed query")

	_, err = ix.Query(context.Background(), "  ", 3)
	assert.Error(t, err)
}

func TestIngestBatchesChunks(t *testing.T) {
	store := &fakeStore{}
	ix := New(fakeEmbedder{}, store, Options{
		Chunking:  embeddings.ChunkingConfig{MaxTokens: 3, OverlapTokens: 0},
		BatchSize: 2,
	}, zaptest.NewLogger(t))

	n, err := ix.Ingest(context.Background(), "notes.md", strings.Repeat("word ", 9))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, store.upserts, 2)
	assert.Len(t, store.upserts[0], 2)
	assert.Equal(t, 2, store.ensuredDim)
	assert.Equal(t, "notes.md", store.upserts[1][0].Payload["source"])

	n, err = ix.Ingest(context.Background(), "empty.md", "")
	require.NoError(t, err)
	assert.Zero(t, n)
}
