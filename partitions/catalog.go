package main

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/animus-labs/animus-assets/internal/assets"
	"github.com/animus-labs/animus-assets/internal/iomanager"
	"github.com/animus-labs/animus-assets/internal/mapping"
	"github.com/animus-labs/animus-assets/internal/partitions"
	"github.com/animus-labs/animus-assets/internal/repo"
)

const maxPartitionBody = 64 << 20

type recordMaterializationRequest struct {
	RunID        string         `json:"run_id"`
	PartitionKey string         `json:"partition_key,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type materializationRecord struct {
	ID             string         `json:"materialization_id"`
	RunID          string         `json:"run_id"`
	AssetKey       string         `json:"asset_key"`
	PartitionKey   string         `json:"partition_key,omitempty"`
	MaterializedAt time.Time      `json:"materialized_at"`
	Metadata       map[string]any `json:"metadata"`
}

func recordFrom(m repo.Materialization) materializationRecord {
	return materializationRecord{
		ID:             m.ID,
		RunID:          m.RunID,
		AssetKey:       m.AssetKey,
		PartitionKey:   m.PartitionKey,
		MaterializedAt: m.MaterializedAt,
		Metadata:       m.Metadata,
	}
}

func (api *partitionsAPI) handleListMaterializations(w http.ResponseWriter, r *http.Request) {
	if api.catalog == nil {
		api.writeError(w, r, http.StatusServiceUnavailable, "catalog_unavailable")
		return
	}
	key, node, ok := api.node(w, r)
	if !ok {
		return
	}
	filter := repo.MaterializationFilter{
		AssetKey: key.String(),
		RunID:    strings.TrimSpace(r.URL.Query().Get("run_id")),
		Limit:    clampInt(parseIntQuery(r, "limit", 100), 1, 1000),
	}
	start := strings.TrimSpace(r.URL.Query().Get("start"))
	end := strings.TrimSpace(r.URL.Query().Get("end"))
	if start != "" || end != "" {
		def := node.PartitionsDef()
		if def == nil {
			api.writeError(w, r, http.StatusUnprocessableEntity, "range_on_unpartitioned_asset")
			return
		}
		keyRange, err := partitions.NewKeyRange(def, start, end)
		if err != nil {
			api.writeDomainError(w, r, err)
			return
		}
		n, err := keyRange.Len(def)
		if err != nil {
			api.writeDomainError(w, r, err)
			return
		}
		if n > maxListedKeys {
			api.writeError(w, r, http.StatusUnprocessableEntity, "range_too_large")
			return
		}
		if filter.PartitionKeys, err = keyRange.KeySlice(def); err != nil {
			api.writeDomainError(w, r, err)
			return
		}
	}

	records, err := api.catalog.List(r.Context(), filter)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	out := make([]materializationRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, recordFrom(rec))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"materializations": out})
}

func (api *partitionsAPI) handleRecordMaterialization(w http.ResponseWriter, r *http.Request) {
	if api.catalog == nil {
		api.writeError(w, r, http.StatusServiceUnavailable, "catalog_unavailable")
		return
	}
	key, node, ok := api.node(w, r)
	if !ok {
		return
	}
	var req recordMaterializationRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.RunID) == "" {
		api.writeError(w, r, http.StatusBadRequest, "run_id_required")
		return
	}
	partitionKey, err := memberKey(node, req.PartitionKey)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}

	stored, err := api.catalog.Record(r.Context(), repo.Materialization{
		RunID:          req.RunID,
		AssetKey:       key.String(),
		PartitionKey:   partitionKey,
		MaterializedAt: api.now().UTC(),
		Metadata:       req.Metadata,
	})
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusCreated, recordFrom(stored))
}

func (api *partitionsAPI) handleGetMaterialization(w http.ResponseWriter, r *http.Request) {
	if api.catalog == nil {
		api.writeError(w, r, http.StatusServiceUnavailable, "catalog_unavailable")
		return
	}
	id, err := uuid.Parse(strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_materialization_id")
		return
	}
	m, err := api.catalog.Get(r.Context(), id.String())
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, recordFrom(m))
}

// handleMaterializedPartitions reports which partitions of an asset have ever
// been recorded, in definition order. Recorded keys the definition no longer
// contains are listed separately.
func (api *partitionsAPI) handleMaterializedPartitions(w http.ResponseWriter, r *http.Request) {
	if api.catalog == nil {
		api.writeError(w, r, http.StatusServiceUnavailable, "catalog_unavailable")
		return
	}
	key, node, ok := api.node(w, r)
	if !ok {
		return
	}
	recorded, err := api.catalog.MaterializedKeys(r.Context(), key.String())
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	def := node.PartitionsDef()
	if def == nil {
		api.writeJSON(w, http.StatusOK, map[string]any{
			"asset_key":    key.String(),
			"partitioned":  false,
			"materialized": slices.Contains(recorded, ""),
		})
		return
	}

	type indexed struct {
		key string
		idx int
	}
	members := make([]indexed, 0, len(recorded))
	unknown := []string{}
	for _, partitionKey := range recorded {
		idx, err := def.IndexOf(partitionKey)
		if err != nil {
			unknown = append(unknown, partitionKey)
			continue
		}
		members = append(members, indexed{key: partitionKey, idx: idx})
	}
	slices.SortFunc(members, func(a, b indexed) int { return a.idx - b.idx })
	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, m.key)
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"asset_key":       key.String(),
		"partitioned":     true,
		"partition_count": def.CountAsOf(api.now()),
		"keys":            keys,
		"unknown_keys":    unknown,
	})
}

// handlePutPartition stores the request body as one partition of the asset.
func (api *partitionsAPI) handlePutPartition(w http.ResponseWriter, r *http.Request) {
	if api.io == nil {
		api.writeError(w, r, http.StatusServiceUnavailable, "storage_unavailable")
		return
	}
	key, node, ok := api.node(w, r)
	if !ok {
		return
	}
	partitionKey, err := memberKey(node, r.URL.Query().Get("partition"))
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPartitionBody+1))
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_body")
		return
	}
	if len(body) > maxPartitionBody {
		api.writeError(w, r, http.StatusRequestEntityTooLarge, "body_too_large")
		return
	}
	if err := api.io.HandleOutput(r.Context(), key, partitionKey, body); err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusCreated, map[string]any{
		"asset_key":     key.String(),
		"partition_key": partitionKey,
		"object_key":    api.io.ObjectKey(key, partitionKey),
		"size_bytes":    len(body),
	})
}

// handleGetPartitions returns stored partitions of an asset: one partition,
// a start..end range, or every partition closed as of as_of. Unpartitioned
// assets return their single object.
func (api *partitionsAPI) handleGetPartitions(w http.ResponseWriter, r *http.Request) {
	if api.io == nil {
		api.writeError(w, r, http.StatusServiceUnavailable, "storage_unavailable")
		return
	}
	key, node, ok := api.node(w, r)
	if !ok {
		return
	}
	def := node.PartitionsDef()
	query := r.URL.Query()
	partition := strings.TrimSpace(query.Get("partition"))
	start := strings.TrimSpace(query.Get("start"))
	end := strings.TrimSpace(query.Get("end"))

	var (
		loaded []iomanager.Partition
		err    error
	)
	switch {
	case def == nil && (partition != "" || start != "" || end != ""):
		api.writeError(w, r, http.StatusUnprocessableEntity, "range_on_unpartitioned_asset")
		return
	case def == nil:
		loaded, err = api.io.LoadInput(r.Context(), key, nil, mapping.Unpartitioned())
	case partition != "" && (start != "" || end != ""):
		api.writeError(w, r, http.StatusBadRequest, "partition_or_range")
		return
	case partition != "":
		var keyRange partitions.KeyRange
		if keyRange, err = partitions.SingleKey(def, partition); err == nil {
			loaded, err = api.io.LoadInput(r.Context(), key, def, mapping.RangeSubset(keyRange))
		}
	case start != "" || end != "":
		if start == "" || end == "" {
			api.writeError(w, r, http.StatusBadRequest, "start_and_end_required")
			return
		}
		var keyRange partitions.KeyRange
		if keyRange, err = partitions.NewKeyRange(def, start, end); err == nil {
			loaded, err = api.io.LoadInput(r.Context(), key, def, mapping.RangeSubset(keyRange))
		}
	default:
		asOf, ok := api.asOf(w, r)
		if !ok {
			return
		}
		loaded, err = api.io.LoadAll(r.Context(), key, def, asOf)
	}
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	type partitionPayload struct {
		PartitionKey string `json:"partition_key,omitempty"`
		Data         []byte `json:"data"`
	}
	out := make([]partitionPayload, 0, len(loaded))
	for _, p := range loaded {
		out = append(out, partitionPayload{PartitionKey: p.Key, Data: p.Data})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"asset_key":  key.String(),
		"partitions": out,
	})
}

// handlePartitionExists answers HEAD with 200 when the partition object is
// stored and 404 when it is not.
func (api *partitionsAPI) handlePartitionExists(w http.ResponseWriter, r *http.Request) {
	if api.io == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	key, node, ok := api.node(w, r)
	if !ok {
		return
	}
	partitionKey, err := memberKey(node, r.URL.Query().Get("partition"))
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	exists, err := api.io.Exists(r.Context(), key, partitionKey)
	switch {
	case err != nil:
		api.writeDomainError(w, r, err)
	case exists:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (api *partitionsAPI) handleDeletePartition(w http.ResponseWriter, r *http.Request) {
	if api.io == nil {
		api.writeError(w, r, http.StatusServiceUnavailable, "storage_unavailable")
		return
	}
	key, node, ok := api.node(w, r)
	if !ok {
		return
	}
	partitionKey, err := memberKey(node, r.URL.Query().Get("partition"))
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	if err := api.io.Delete(r.Context(), key, partitionKey); err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.logger.Info("partition deleted", "asset", key.String(), "partition", partitionKey)
	w.WriteHeader(http.StatusNoContent)
}

// memberKey checks that raw is a partition of node, or empty when node is
// unpartitioned.
func memberKey(node assets.Node, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	def := node.PartitionsDef()
	if def == nil {
		if raw != "" {
			return "", fmt.Errorf("%s is unpartitioned, got partition %q: %w", node.NodeName(), raw, partitions.ErrKeyNotFound)
		}
		return "", nil
	}
	if _, err := def.IndexOf(raw); err != nil {
		return "", err
	}
	return raw, nil
}
