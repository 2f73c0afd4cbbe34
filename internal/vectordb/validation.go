package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

var errCollectionMissing = errors.New("collection does not exist")

// DimensionMismatchError is returned when embedding dimensions don't match collection dimensions
type DimensionMismatchError struct {
	Collection        string
	ExpectedDimension int
	ReceivedDimension int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch for collection %s: expected %d, got %d. Check the embedding model or recreate the collection",
		e.Collection, e.ExpectedDimension, e.ReceivedDimension)
}

// ValidateEmbeddingDimensions checks the collection against the configured
// embedding dimension. A missing collection is not an error.
func (c *Client) ValidateEmbeddingDimensions(ctx context.Context) error {
	if !c.cfg.Enabled || c.cfg.ExpectedEmbeddingDim <= 0 {
		return nil
	}
	info, err := c.getCollectionInfo(ctx, c.cfg.Collection)
	if errors.Is(err, errCollectionMissing) {
		return nil
	}
	if err != nil {
		c.log.Warn("Failed to get collection info during validation",
			zap.String("collection", c.cfg.Collection),
			zap.Error(err))
		return nil
	}
	if info.VectorSize != c.cfg.ExpectedEmbeddingDim {
		return DimensionMismatchError{
			Collection:        c.cfg.Collection,
			ExpectedDimension: c.cfg.ExpectedEmbeddingDim,
			ReceivedDimension: info.VectorSize,
		}
	}
	c.log.Info("Collection dimension validated",
		zap.String("collection", c.cfg.Collection),
		zap.Int("dimension", info.VectorSize))
	return nil
}

// Ping checks that the collection endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	if !c.cfg.Enabled {
		return ErrDisabled
	}
	_, err := c.getCollectionInfo(ctx, c.cfg.Collection)
	if errors.Is(err, errCollectionMissing) {
		return nil
	}
	return err
}

// CollectionInfo holds basic information about a Qdrant collection
type CollectionInfo struct {
	Name        string
	VectorSize  int
	PointsCount int64
}

func (c *Client) getCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", c.base, collection), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errCollectionMissing
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get collection info: status %d", resp.StatusCode)
	}

	var result struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &CollectionInfo{
		Name:        collection,
		VectorSize:  result.Result.Config.Params.Vectors.Size,
		PointsCount: result.Result.PointsCount,
	}, nil
}
