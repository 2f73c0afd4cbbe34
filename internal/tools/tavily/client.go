// Package tavily implements tools.Searcher against the Tavily search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/circuitbreaker"
	"github.com/Kocoro-lab/deepresearch/internal/tools"
)

// DefaultBaseURL is the public Tavily endpoint.
const DefaultBaseURL = "https://api.tavily.com"

// Config configures the client.
type Config struct {
	APIKey            string        `mapstructure:"api_key" json:"-"`
	BaseURL           string        `mapstructure:"base_url" json:"base_url"`
	Topic             string        `mapstructure:"topic" json:"topic"`
	IncludeRawContent bool          `mapstructure:"include_raw_content" json:"include_raw_content"`
	Timeout           time.Duration `mapstructure:"timeout" json:"timeout"`
}

// Client searches the web through Tavily.
type Client struct {
	cfg    Config
	http   *circuitbreaker.HTTPWrapper
	logger *zap.Logger
}

// New creates a client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("tavily: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Topic == "" {
		cfg.Topic = "general"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   circuitbreaker.NewHTTPWrapper(httpClient, "tavily", circuitbreaker.ServiceSearch, circuitbreaker.Settings{}, logger),
		logger: logger,
	}, nil
}

type searchRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	Topic             string `json:"topic"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type searchResponse struct {
	Query   string `json:"query"`
	Results []struct {
		Title      string  `json:"title"`
		URL        string  `json:"url"`
		Content    string  `json:"content"`
		RawContent *string `json:"raw_content"`
		Score      float64 `json:"score"`
	} `json:"results"`
}

// Search runs one query and returns results in rank order.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]tools.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 3
	}
	body, err := json.Marshal(searchRequest{
		Query:             query,
		MaxResults:        maxResults,
		Topic:             c.cfg.Topic,
		IncludeRawContent: c.cfg.IncludeRawContent,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily search: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tavily search: decode: %w", err)
	}

	results := make([]tools.SearchResult, 0, len(out.Results))
	for _, r := range out.Results {
		res := tools.SearchResult{URL: r.URL, Title: r.Title, Content: r.Content, Score: r.Score}
		if r.RawContent != nil {
			res.RawContent = *r.RawContent
		}
		results = append(results, res)
	}
	c.logger.Debug("Tavily search completed",
		zap.String("query", query),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)))
	return results, nil
}
