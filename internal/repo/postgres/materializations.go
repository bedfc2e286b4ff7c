package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/animus-labs/animus-assets/internal/repo"
)

const (
	materializationColumns = `materialization_id, run_id, asset_key, partition_key, materialized_at, metadata`

	selectMaterializationQuery = `SELECT ` + materializationColumns + ` FROM asset_materializations WHERE materialization_id = $1`
	materializedKeysQuery      = `SELECT DISTINCT partition_key FROM asset_materializations WHERE asset_key = $1 ORDER BY partition_key`
)

type MaterializationStore struct {
	db DB
}

func NewMaterializationStore(db DB) *MaterializationStore {
	if db == nil {
		return nil
	}
	return &MaterializationStore{db: db}
}

func (s *MaterializationStore) Record(ctx context.Context, m repo.Materialization) (repo.Materialization, error) {
	if s == nil || s.db == nil {
		return repo.Materialization{}, fmt.Errorf("materialization store not initialized")
	}
	if err := m.Validate(); err != nil {
		return repo.Materialization{}, err
	}
	if strings.TrimSpace(m.ID) == "" {
		m.ID = uuid.NewString()
	}
	if _, err := uuid.Parse(strings.TrimSpace(m.ID)); err != nil {
		return repo.Materialization{}, fmt.Errorf("materialization id: %w", err)
	}
	metadataJSON, err := encodeMetadata(m.Metadata)
	if err != nil {
		return repo.Materialization{}, fmt.Errorf("encode metadata: %w", err)
	}

	// A repeated record keeps the first row; the no-op update makes RETURNING
	// yield it.
	row := s.db.QueryRowContext(
		ctx,
		`INSERT INTO asset_materializations (`+materializationColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (run_id, asset_key, partition_key)
		 DO UPDATE SET run_id = EXCLUDED.run_id
		 RETURNING `+materializationColumns,
		strings.TrimSpace(m.ID),
		strings.TrimSpace(m.RunID),
		strings.TrimSpace(m.AssetKey),
		strings.TrimSpace(m.PartitionKey),
		normalizeTime(m.MaterializedAt),
		metadataJSON,
	)
	stored, err := scanMaterialization(row.Scan)
	if err != nil {
		return repo.Materialization{}, fmt.Errorf("insert materialization: %w", err)
	}
	return stored, nil
}

func (s *MaterializationStore) Get(ctx context.Context, id string) (repo.Materialization, error) {
	if s == nil || s.db == nil {
		return repo.Materialization{}, fmt.Errorf("materialization store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return repo.Materialization{}, fmt.Errorf("materialization id is required")
	}
	row := s.db.QueryRowContext(ctx, selectMaterializationQuery, id)
	m, err := scanMaterialization(row.Scan)
	if err != nil {
		return repo.Materialization{}, handleNotFound(err)
	}
	return m, nil
}

func (s *MaterializationStore) List(ctx context.Context, filter repo.MaterializationFilter) ([]repo.Materialization, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("materialization store not initialized")
	}
	query, args, err := buildMaterializationListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list materializations: %w", err)
	}
	defer rows.Close()

	out := make([]repo.Materialization, 0)
	for rows.Next() {
		m, err := scanMaterialization(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan materialization: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list materializations: %w", err)
	}
	return out, nil
}

// MaterializedKeys returns the distinct partition keys ever recorded for an
// asset, sorted. Unpartitioned assets report a single empty key.
func (s *MaterializationStore) MaterializedKeys(ctx context.Context, assetKey string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("materialization store not initialized")
	}
	assetKey = strings.TrimSpace(assetKey)
	if assetKey == "" {
		return nil, fmt.Errorf("asset key is required")
	}
	rows, err := s.db.QueryContext(ctx, materializedKeysQuery, assetKey)
	if err != nil {
		return nil, fmt.Errorf("materialized keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan partition key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("materialized keys: %w", err)
	}
	return keys, nil
}

func buildMaterializationListQuery(filter repo.MaterializationFilter) (string, []any, error) {
	assetKey := strings.TrimSpace(filter.AssetKey)
	runID := strings.TrimSpace(filter.RunID)
	if assetKey == "" && runID == "" {
		return "", nil, fmt.Errorf("asset key or run id is required")
	}
	if filter.Limit < 0 {
		return "", nil, fmt.Errorf("limit must be >= 0")
	}

	clauses := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if assetKey != "" {
		args = append(args, assetKey)
		clauses = append(clauses, fmt.Sprintf("asset_key = $%d", len(args)))
	}
	if runID != "" {
		args = append(args, runID)
		clauses = append(clauses, fmt.Sprintf("run_id = $%d", len(args)))
	}
	if len(filter.PartitionKeys) > 0 {
		args = append(args, filter.PartitionKeys)
		clauses = append(clauses, fmt.Sprintf("partition_key = ANY($%d)", len(args)))
	}

	query := `SELECT ` + materializationColumns + ` FROM asset_materializations WHERE ` + strings.Join(clauses, " AND ")
	query += " ORDER BY materialized_at DESC, partition_key"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}

func scanMaterialization(scan func(dest ...any) error) (repo.Materialization, error) {
	var (
		m            repo.Materialization
		metadataJSON []byte
		at           time.Time
	)
	if err := scan(&m.ID, &m.RunID, &m.AssetKey, &m.PartitionKey, &at, &metadataJSON); err != nil {
		return repo.Materialization{}, err
	}
	m.MaterializedAt = at.UTC()
	meta, err := decodeMetadata(metadataJSON)
	if err != nil {
		return repo.Materialization{}, fmt.Errorf("decode metadata: %w", err)
	}
	m.Metadata = meta
	return m, nil
}
