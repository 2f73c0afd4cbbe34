package vectordb

import "time"

// Config controls Qdrant client behavior
type Config struct {
	Enabled    bool          `mapstructure:"enabled" json:"enabled"`
	URL        string        `mapstructure:"url" json:"url"`
	APIKey     string        `mapstructure:"api_key" json:"-"`
	Collection string        `mapstructure:"collection" json:"collection"`
	TopK       int           `mapstructure:"top_k" json:"top_k"`
	Threshold  float64       `mapstructure:"threshold" json:"threshold"`
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout"`
	// ExpectedEmbeddingDim is checked against the collection at startup
	ExpectedEmbeddingDim int `mapstructure:"expected_embedding_dim" json:"expected_embedding_dim"`
	// MMR (diversity) re-ranking
	MMREnabled        bool    `mapstructure:"mmr_enabled" json:"mmr_enabled"`
	MMRLambda         float64 `mapstructure:"mmr_lambda" json:"mmr_lambda"`
	MMRPoolMultiplier int     `mapstructure:"mmr_pool_multiplier" json:"mmr_pool_multiplier"`
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = "http://localhost:6333"
	}
	if c.Collection == "" {
		c.Collection = "research_documents"
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MMRLambda == 0 {
		c.MMRLambda = 0.7
	}
	if c.MMRPoolMultiplier == 0 {
		c.MMRPoolMultiplier = 3
	}
	return c
}

// Point is one search hit.
type Point struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
	// Vector is populated only when MMR needs it
	Vector []float32 `json:"-"`
}

// UpsertItem represents a single point to insert into Qdrant
type UpsertItem struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// UpsertResponse captures basic Qdrant upsert response
type UpsertResponse struct {
	Status string  `json:"status"`
	Time   float64 `json:"time"`
}
