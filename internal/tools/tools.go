// Package tools defines the external capabilities research workers consume.
package tools

import (
	"context"
	"errors"
)

// SearchResult is one ranked web search hit.
type SearchResult struct {
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// Sandbox executes code. It never returns an error: failures are captured
// in the returned text.
type Sandbox interface {
	Execute(ctx context.Context, code string) string
}

var (
	// ErrFileNotFound is returned when a path does not exist.
	ErrFileNotFound = errors.New("file does not exist")
	// ErrNotAFile is returned when a path is a directory or special file.
	ErrNotAFile = errors.New("not a file")
	// ErrOutsideRoot is returned when a path escapes the readable root.
	ErrOutsideRoot = errors.New("path outside readable root")
)

// FileReader reads local documents.
type FileReader interface {
	ReadFile(ctx context.Context, path string) (string, error)
}

// Passage is a chunk returned by the knowledge index.
type Passage struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// KnowledgeIndex looks up relevant passages.
type KnowledgeIndex interface {
	Query(ctx context.Context, query string, limit int) ([]Passage, error)
}
