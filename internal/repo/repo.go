// Package repo declares the materialization catalog.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

// Materialization records that a run wrote one partition of an asset.
// PartitionKey is empty for unpartitioned assets.
type Materialization struct {
	ID             string
	RunID          string
	AssetKey       string
	PartitionKey   string
	MaterializedAt time.Time
	Metadata       map[string]any
}

func (m Materialization) Validate() error {
	if strings.TrimSpace(m.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(m.AssetKey) == "" {
		return errors.New("asset key is required")
	}
	return nil
}

type MaterializationFilter struct {
	AssetKey string
	RunID    string
	// PartitionKeys restricts the result to these keys when non-empty.
	PartitionKeys []string
	Limit         int
}

// MaterializationRepository manages the catalog. Record is idempotent per
// (run, asset, partition) and returns the stored row.
type MaterializationRepository interface {
	Record(ctx context.Context, m Materialization) (Materialization, error)
	Get(ctx context.Context, id string) (Materialization, error)
	List(ctx context.Context, filter MaterializationFilter) ([]Materialization, error)
	MaterializedKeys(ctx context.Context, assetKey string) ([]string, error)
}
