package embeddings

import "time"

// Config controls the embedding service behavior
type Config struct {
	// APIKey authenticates against the embeddings provider
	APIKey string `mapstructure:"api_key" json:"-"`
	// BaseURL overrides the provider endpoint (OpenAI-compatible)
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	// DefaultModel is the default embedding model (e.g., text-embedding-3-small)
	DefaultModel string `mapstructure:"model" json:"model"`
	// Dimensions requests shortened vectors when the model supports it
	Dimensions int `mapstructure:"dimensions" json:"dimensions"`
	// Timeout for outbound calls
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
	// CacheTTL sets TTL for shared cache entries
	CacheTTL time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`
	// MaxLRU controls in-process LRU size
	MaxLRU int `mapstructure:"max_lru" json:"max_lru"`
	// Chunking configuration for ingested documents
	Chunking ChunkingConfig `mapstructure:"chunking" json:"chunking"`
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "text-embedding-3-small"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.MaxLRU == 0 {
		c.MaxLRU = 2048
	}
	if c.Chunking.MaxTokens == 0 {
		c.Chunking = DefaultChunkingConfig()
	}
	return c
}
