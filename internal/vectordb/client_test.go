package vectordb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, h http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg.Enabled = true
	cfg.URL = srv.URL
	cfg.Collection = "docs"
	return NewClient(cfg, srv.Client(), zaptest.NewLogger(t))
}

func TestClientDisabled(t *testing.T) {
	c := NewClient(Config{}, nil, zaptest.NewLogger(t))
	_, err := c.Search(context.Background(), []float32{0.1}, 3, false)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestSearchUsesQueryEndpoint(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/docs/points/query", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"status":"ok","result":{"points":[
			{"id":"p1","score":0.92,"payload":{"text":"alpha","source":"a.md"}},
			{"id":7,"score":0.81,"payload":{"text":"beta","source":"b.md"}}]}}`))
	}, Config{APIKey: "secret", Threshold: 0.3})

	pts, err := c.Search(context.Background(), []float32{1, 0}, 2, false)
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, "p1", pts[0].ID)
	assert.Equal(t, "7", pts[1].ID)
	assert.Equal(t, "beta", pts[1].Payload["text"])
	assert.Equal(t, 0.3, body["score_threshold"])
	assert.EqualValues(t, 2, body["limit"])
}

func TestSearchFallsBackToLegacyEndpoint(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/docs/points/query" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "/collections/docs/points/search", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok","result":[{"id":"x","score":0.5,"payload":{"text":"legacy"},"vector":[0.5,0.5]}]}`))
	}, Config{})

	pts, err := c.Search(context.Background(), []float32{1, 0}, 1, true)
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.Equal(t, []float32{0.5, 0.5}, pts[0].Vector)
}

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	var created map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			_, _ = w.Write([]byte(`{"status":"ok","result":true}`))
		}
	}, Config{})

	require.NoError(t, c.EnsureCollection(context.Background(), 1536))
	vectors := created["vectors"].(map[string]any)
	assert.EqualValues(t, 1536, vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestValidateEmbeddingDimensions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"points_count":3,"config":{"params":{"vectors":{"size":768}}}}}`))
	}, Config{ExpectedEmbeddingDim: 1536})

	err := c.ValidateEmbeddingDimensions(context.Background())
	var mismatch DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 768, mismatch.ReceivedDimension)
}

func TestUpsert(t *testing.T) {
	var got struct {
		Points []UpsertItem `json:"points"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"ok","time":0.01,"result":{"status":"completed"}}`))
	}, Config{})

	resp, err := c.Upsert(context.Background(), []UpsertItem{{ID: "a", Vector: []float32{1}, Payload: map[string]any{"text": "t"}}})
	require.NoError(t, err)
	assert.Equal(t, "completed", resp.Status)
	require.Len(t, got.Points, 1)
	assert.Equal(t, "a", got.Points[0].ID)
}

func TestMMRReorderPrefersDiversity(t *testing.T) {
	query := []float32{1, 0}
	items := []Point{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "a2", Vector: []float32{0.99, 0.01}},
		{ID: "b", Vector: []float32{0.7, 0.7}},
	}
	out := MMRReorder(query, items, 0.3)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
}
