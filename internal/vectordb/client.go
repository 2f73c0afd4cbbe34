// Package vectordb is a small Qdrant HTTP client for the knowledge index.
package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/circuitbreaker"
	ometrics "github.com/Kocoro-lab/deepresearch/internal/metrics"
	"github.com/Kocoro-lab/deepresearch/internal/tracing"
)

// ErrDisabled is returned by every call on a disabled client.
var ErrDisabled = errors.New("vectordb: disabled")

// Client is a minimal Qdrant HTTP client
type Client struct {
	cfg   Config
	base  string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

// NewClient creates a client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	c := cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: c.Timeout}
	}
	return &Client{
		cfg:   c,
		base:  strings.TrimRight(c.URL, "/"),
		httpw: circuitbreaker.NewHTTPWrapper(httpClient, "qdrant", circuitbreaker.ServiceVectorDB, circuitbreaker.Settings{}, logger),
		log:   logger,
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// qdrant search request/response (simplified)
type qdrantQueryRequest struct {
	Query          []float32 `json:"query"`
	Limit          int       `json:"limit"`
	ScoreThreshold *float64  `json:"score_threshold,omitempty"`
	WithPayload    bool      `json:"with_payload"`
	WithVector     bool      `json:"with_vector,omitempty"`
}

type qdrantPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
	Vector  []float64      `json:"vector,omitempty"`
}

type qdrantSearchResponse struct {
	Result []qdrantPoint `json:"result"`
	Status string        `json:"status"`
}

// qdrantQueryResponse for the /points/query endpoint which has nested structure
type qdrantQueryResponse struct {
	Result struct {
		Points []qdrantPoint `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

func (c *Client) do(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}
	tracing.InjectTraceparent(ctx, req)
	return c.httpw.Do(req)
}

// Search returns up to limit points closest to vec. The modern
// /points/query endpoint is tried first with /points/search as fallback.
func (c *Client) Search(ctx context.Context, vec []float32, limit int, withVectors bool) ([]Point, error) {
	if !c.cfg.Enabled {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = c.cfg.TopK
	}
	collection := c.cfg.Collection
	start := time.Now()
	urlQuery := fmt.Sprintf("%s/collections/%s/points/query", c.base, collection)
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, urlQuery)
	defer span.End()

	var thr *float64
	if c.cfg.Threshold > 0 {
		thr = &c.cfg.Threshold
	}
	fail := func(err error) ([]Point, error) {
		ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, urlQuery, qdrantQueryRequest{
		Query: vec, Limit: limit, ScoreThreshold: thr, WithPayload: true, WithVector: withVectors,
	})
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	var raw []qdrantPoint
	if resp.StatusCode == http.StatusOK {
		var qr qdrantQueryResponse
		if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
			return fail(err)
		}
		raw = qr.Result.Points
	} else {
		legacy := map[string]any{"vector": vec, "limit": limit, "with_payload": true, "with_vector": withVectors}
		if thr != nil {
			legacy["score_threshold"] = *thr
		}
		resp2, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", c.base, collection), legacy)
		if err != nil {
			return fail(fmt.Errorf("qdrant query/search failed: %w", err))
		}
		defer resp2.Body.Close()
		if resp2.StatusCode != http.StatusOK {
			return fail(fmt.Errorf("qdrant status %d", resp2.StatusCode))
		}
		var sr qdrantSearchResponse
		if err := json.NewDecoder(resp2.Body).Decode(&sr); err != nil {
			return fail(err)
		}
		raw = sr.Result
	}
	ometrics.RecordVectorSearchMetrics(collection, "ok", time.Since(start).Seconds())

	out := make([]Point, 0, len(raw))
	for _, p := range raw {
		pt := Point{ID: fmt.Sprintf("%v", p.ID), Score: p.Score, Payload: p.Payload}
		if len(p.Vector) > 0 {
			pt.Vector = make([]float32, len(p.Vector))
			for i, f := range p.Vector {
				pt.Vector[i] = float32(f)
			}
		}
		out = append(out, pt)
	}
	return out, nil
}

// Upsert inserts or updates points in the collection.
func (c *Client) Upsert(ctx context.Context, points []UpsertItem) (*UpsertResponse, error) {
	if !c.cfg.Enabled {
		return nil, ErrDisabled
	}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.base, c.cfg.Collection)
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPut, url)
	defer span.End()

	resp, err := c.do(ctx, http.MethodPut, url, map[string]any{"points": points})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant upsert status %d", resp.StatusCode)
	}
	var r struct {
		Result UpsertResponse `json:"result"`
		Status string         `json:"status"`
		Time   float64        `json:"time"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, err
	}
	return &UpsertResponse{Status: r.Result.Status, Time: r.Time}, nil
}

// EnsureCollection creates the collection with cosine distance when it
// does not exist yet.
func (c *Client) EnsureCollection(ctx context.Context, dim int) error {
	if !c.cfg.Enabled {
		return ErrDisabled
	}
	if _, err := c.getCollectionInfo(ctx, c.cfg.Collection); err == nil {
		return nil
	} else if !errors.Is(err, errCollectionMissing) {
		return err
	}
	url := fmt.Sprintf("%s/collections/%s", c.base, c.cfg.Collection)
	resp, err := c.do(ctx, http.MethodPut, url, map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Cosine"},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant create collection status %d", resp.StatusCode)
	}
	c.log.Info("Created Qdrant collection", zap.String("collection", c.cfg.Collection), zap.Int("dimension", dim))
	return nil
}
