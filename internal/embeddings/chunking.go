package embeddings

import (
	"strings"

	"github.com/google/uuid"
)

// ChunkingConfig controls text chunking behavior. Tokens are approximated
// by whitespace-separated words.
type ChunkingConfig struct {
	MaxTokens     int `mapstructure:"max_tokens" json:"max_tokens"`
	OverlapTokens int `mapstructure:"overlap_tokens" json:"overlap_tokens"`
}

// DefaultChunkingConfig returns sensible defaults
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		MaxTokens:     400,
		OverlapTokens: 50,
	}
}

// Chunk is one slice of an ingested document.
type Chunk struct {
	DocID      string // UUID shared by every chunk of a document
	Source     string // Where the document came from
	Text       string
	Index      int // 0-based chunk position
	TotalCount int
}

// Chunker handles text chunking with overlap
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// NewChunker creates a new chunker with the given configuration
func NewChunker(config ChunkingConfig) *Chunker {
	d := DefaultChunkingConfig()
	if config.MaxTokens <= 0 {
		config.MaxTokens = d.MaxTokens
	}
	if config.OverlapTokens < 0 || config.OverlapTokens >= config.MaxTokens {
		config.OverlapTokens = config.MaxTokens / 4
	}
	return &Chunker{maxTokens: config.MaxTokens, overlapTokens: config.OverlapTokens}
}

// ChunkDocument splits text into overlapping windows. Blank text yields no
// chunks; short text yields exactly one.
func (c *Chunker) ChunkDocument(source, text string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	docID := uuid.New().String()
	step := c.maxTokens - c.overlapTokens
	if step <= 0 {
		step = 1
	}

	var chunks []Chunk
	for i := 0; i < len(words); i += step {
		end := min(i+c.maxTokens, len(words))
		chunks = append(chunks, Chunk{
			DocID:  docID,
			Source: source,
			Text:   strings.Join(words[i:end], " "),
			Index:  len(chunks),
		})
		if end == len(words) {
			break
		}
	}
	for i := range chunks {
		chunks[i].TotalCount = len(chunks)
	}
	return chunks
}

// CountTokens estimates the token count for a given text
func (c *Chunker) CountTokens(text string) int {
	return len(strings.Fields(text))
}
