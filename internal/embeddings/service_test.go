package embeddings

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/deepresearch/internal/circuitbreaker"
)

type countingProvider struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (p *countingProvider) Embed(_ context.Context, texts []string, _ string) ([][]float32, error) {
	p.mu.Lock()
	p.calls = append(p.calls, append([]string(nil), texts...))
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func TestUninitializedService(t *testing.T) {
	var s *Service
	_, err := s.GenerateEmbedding(context.Background(), "hello", "")
	assert.Error(t, err)
}

func TestBatchUsesCacheTiers(t *testing.T) {
	p := &countingProvider{}
	s := NewService(Config{}, p, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	first, err := s.GenerateBatchEmbeddings(ctx, []string{"a", "bb"}, "")
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 1}, first[1])

	second, err := s.GenerateBatchEmbeddings(ctx, []string{"bb", "ccc", "a"}, "")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 1}, second[1])
	assert.Equal(t, []float32{1, 1}, second[2])

	require.Len(t, p.calls, 2)
	assert.Equal(t, []string{"ccc"}, p.calls[1])
}

func TestProviderErrorsPropagate(t *testing.T) {
	p := &countingProvider{err: errors.New("rate limited")}
	s := NewService(Config{}, p, nil, zaptest.NewLogger(t))
	_, err := s.GenerateEmbedding(context.Background(), "x", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	cache, err := NewRedisCache(ctx, circuitbreaker.NewRedisWrapper(client, "emb-cache", zaptest.NewLogger(t)))
	require.NoError(t, err)

	p := &countingProvider{}
	first := NewService(Config{}, p, cache, zaptest.NewLogger(t))
	_, err = first.GenerateEmbedding(ctx, "shared", "")
	require.NoError(t, err)

	// A second process with a cold LRU should be served from redis.
	second := NewService(Config{}, p, cache, zaptest.NewLogger(t))
	v, err := second.GenerateEmbedding(ctx, "shared", "")
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 1}, v)
	assert.Len(t, p.calls, 1)

	key := MakeKey("text-embedding-3-small", "shared")
	assert.True(t, mr.Exists(key))
	assert.Greater(t, mr.TTL(key), time.Duration(0))
}

func TestLocalLRUEvictsOldest(t *testing.T) {
	l := NewLocalLRU(2)
	ctx := context.Background()
	l.Set(ctx, "a", []float32{1}, time.Minute)
	l.Set(ctx, "b", []float32{2}, time.Minute)
	_, _ = l.Get(ctx, "a")
	l.Set(ctx, "c", []float32{3}, time.Minute)

	_, okA := l.Get(ctx, "a")
	_, okB := l.Get(ctx, "b")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.Equal(t, 2, l.Len())
}

func TestLocalLRUExpires(t *testing.T) {
	l := NewLocalLRU(4)
	l.Set(context.Background(), "k", []float32{1}, -time.Second)
	_, ok := l.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestChunkDocument(t *testing.T) {
	c := NewChunker(ChunkingConfig{MaxTokens: 4, OverlapTokens: 1})
	chunks := c.ChunkDocument("doc.md", "one two three four five six seven")
	require.Len(t, chunks, 2)
	assert.Equal(t, "one two three four", chunks[0].Text)
	assert.Equal(t, "four five six seven", chunks[1].Text)
	assert.Equal(t, chunks[0].DocID, chunks[1].DocID)
	assert.Equal(t, 2, chunks[1].TotalCount)
	assert.Equal(t, "doc.md", chunks[1].Source)

	assert.Nil(t, c.ChunkDocument("x", "   "))
	assert.Len(t, c.ChunkDocument("x", strings.Repeat("w ", 3)), 1)
}
