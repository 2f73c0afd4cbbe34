package embeddings

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/circuitbreaker"
	ometrics "github.com/Kocoro-lab/deepresearch/internal/metrics"
	"github.com/Kocoro-lab/deepresearch/internal/tracing"
)

const lruTTL = 30 * time.Minute

// Service provides embedding generation with two cache tiers: an
// in-process LRU and an optional shared cache.
type Service struct {
	cfg      Config
	provider Provider
	cache    EmbeddingCache
	lru      *LocalLRU
	cb       *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewService wires a provider with caches. cache may be nil.
func NewService(cfg Config, provider Provider, cache EmbeddingCache, logger *zap.Logger) *Service {
	c := cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      c,
		provider: provider,
		cache:    cache,
		lru:      NewLocalLRU(c.MaxLRU),
		cb:       circuitbreaker.NewForService("embeddings", circuitbreaker.ServiceEmbeddings, circuitbreaker.Settings{}, logger),
		logger:   logger,
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	if s == nil {
		return Config{}.withDefaults()
	}
	return s.cfg
}

// GenerateEmbedding returns the vector for a single text.
func (s *Service) GenerateEmbedding(ctx context.Context, text string, model string) ([]float32, error) {
	out, err := s.GenerateBatchEmbeddings(ctx, []string{text}, model)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// GenerateBatchEmbeddings embeds texts, serving what it can from cache and
// sending the rest in one provider call.
func (s *Service) GenerateBatchEmbeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if s == nil || s.provider == nil {
		return nil, fmt.Errorf("embedding service not initialized")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	m := model
	if m == "" {
		m = s.cfg.DefaultModel
	}

	results := make([][]float32, len(texts))
	var uncachedTexts []string
	var uncachedIndices []int
	for i, text := range texts {
		key := MakeKey(m, text)
		if v, ok := s.lru.Get(ctx, key); ok {
			results[i] = v
			ometrics.RecordEmbeddingMetrics(m, "lru_hit", 0)
			continue
		}
		if s.cache != nil {
			if v, ok := s.cache.Get(ctx, key); ok {
				results[i] = v
				s.lru.Set(ctx, key, v, lruTTL)
				ometrics.RecordEmbeddingMetrics(m, "cache_hit", 0)
				continue
			}
		}
		uncachedTexts = append(uncachedTexts, text)
		uncachedIndices = append(uncachedIndices, i)
	}
	if len(uncachedTexts) == 0 {
		return results, nil
	}

	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "embeddings.generate")
	defer span.End()

	vectors, err := circuitbreaker.Do(ctx, s.cb, func(ctx context.Context) ([][]float32, error) {
		return s.provider.Embed(ctx, uncachedTexts, m)
	})
	if err != nil {
		ometrics.RecordEmbeddingMetrics(m, "error", time.Since(start).Seconds())
		return nil, err
	}
	if len(vectors) != len(uncachedTexts) {
		ometrics.RecordEmbeddingMetrics(m, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("embedding provider returned %d embeddings for %d texts", len(vectors), len(uncachedTexts))
	}
	for i, vec := range vectors {
		results[uncachedIndices[i]] = vec
		key := MakeKey(m, uncachedTexts[i])
		s.lru.Set(ctx, key, vec, lruTTL)
		if s.cache != nil {
			s.cache.Set(ctx, key, vec, s.cfg.CacheTTL)
		}
	}
	ometrics.RecordEmbeddingMetrics(m, "ok", time.Since(start).Seconds())
	s.logger.Debug("Generated embeddings",
		zap.String("model", m),
		zap.Int("requested", len(texts)),
		zap.Int("generated", len(uncachedTexts)))
	return results, nil
}
