package postgres

import (
	"context"
	"fmt"
)

const schema = `CREATE TABLE IF NOT EXISTS asset_materializations (
	materialization_id UUID PRIMARY KEY,
	run_id TEXT NOT NULL,
	asset_key TEXT NOT NULL,
	partition_key TEXT NOT NULL DEFAULT '',
	materialized_at TIMESTAMPTZ NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	UNIQUE (run_id, asset_key, partition_key)
);
CREATE INDEX IF NOT EXISTS asset_materializations_asset_partition_idx
	ON asset_materializations (asset_key, partition_key);`

// EnsureSchema creates the catalog table when it is missing.
func EnsureSchema(ctx context.Context, db DB) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
