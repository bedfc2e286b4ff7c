package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/animus-labs/animus-assets/internal/assets"
	"github.com/animus-labs/animus-assets/internal/graphspec"
	"github.com/animus-labs/animus-assets/internal/iomanager"
	"github.com/animus-labs/animus-assets/internal/mapping"
	"github.com/animus-labs/animus-assets/internal/partitions"
	"github.com/animus-labs/animus-assets/internal/platform/httpserver"
	"github.com/animus-labs/animus-assets/internal/platform/metrics"
	"github.com/animus-labs/animus-assets/internal/repo"
	"github.com/animus-labs/animus-assets/internal/runplan"
)

type partitionsAPI struct {
	logger   *slog.Logger
	loaded   *graphspec.Loaded
	catalog  repo.MaterializationRepository
	io       *iomanager.PartitionedIO
	metrics  *metrics.Metrics
	now      func() time.Time
	newRunID func() string

	// The graph never changes after load, so successful resolutions are
	// cached for the life of the process. Nil disables caching.
	resolutions *lru.Cache[string, resolveResponse]
}

func newPartitionsAPI(logger *slog.Logger, loaded *graphspec.Loaded, catalog repo.MaterializationRepository, partitionIO *iomanager.PartitionedIO, m *metrics.Metrics, cacheSize int) *partitionsAPI {
	api := &partitionsAPI{
		logger:   logger,
		loaded:   loaded,
		catalog:  catalog,
		io:       partitionIO,
		metrics:  m,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	if cacheSize > 0 {
		// lru.New only fails for a non-positive size.
		api.resolutions, _ = lru.New[string, resolveResponse](cacheSize)
	}
	return api
}

// Asset keys contain "/", so clients escape them as a single path segment
// (warehouse%2Forders).
func (api *partitionsAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /assets", api.handleListAssets)
	mux.HandleFunc("GET /assets/{key}/partitions", api.handleListPartitions)
	mux.HandleFunc("POST /resolve", api.handleResolve)
	mux.HandleFunc("POST /jobs/{name}/plans", api.handleCreatePlan)

	mux.HandleFunc("GET /assets/{key}/materializations", api.handleListMaterializations)
	mux.HandleFunc("POST /assets/{key}/materializations", api.handleRecordMaterialization)
	mux.HandleFunc("GET /assets/{key}/materialized_partitions", api.handleMaterializedPartitions)
	mux.HandleFunc("GET /materializations/{id}", api.handleGetMaterialization)

	mux.HandleFunc("PUT /assets/{key}/data", api.handlePutPartition)
	mux.HandleFunc("GET /assets/{key}/data", api.handleGetPartitions)
	mux.HandleFunc("HEAD /assets/{key}/data", api.handlePartitionExists)
	mux.HandleFunc("DELETE /assets/{key}/data", api.handleDeletePartition)
}

type partitionsView struct {
	Type       string   `json:"type"`
	Definition string   `json:"definition"`
	Cadence    string   `json:"cadence,omitempty"`
	Timezone   string   `json:"timezone,omitempty"`
	Start      string   `json:"start,omitempty"`
	End        string   `json:"end,omitempty"`
	Format     string   `json:"format,omitempty"`
	Keys       []string `json:"keys,omitempty"`
}

type dependencyView struct {
	AssetKey string `json:"asset_key"`
	Producer string `json:"producer"`
	Mapping  string `json:"mapping"`
	Declared bool   `json:"declared"`
}

type assetView struct {
	Name       string           `json:"name"`
	Keys       []string         `json:"keys"`
	Partitions *partitionsView  `json:"partitions,omitempty"`
	Deps       []dependencyView `json:"deps"`
}

type sourceView struct {
	Key        string          `json:"key"`
	Partitions *partitionsView `json:"partitions,omitempty"`
}

func (api *partitionsAPI) handleListAssets(w http.ResponseWriter, r *http.Request) {
	g := api.loaded.Graph
	out := make([]assetView, 0, len(g.Assets()))
	for _, def := range g.TopologicalOrder() {
		view := assetView{
			Name:       def.Name,
			Keys:       keyStrings(def.Keys),
			Partitions: describePartitions(def.Partitions),
			Deps:       make([]dependencyView, 0, len(def.Deps)),
		}
		edges, err := g.Upstream(def.Keys[0])
		if err != nil {
			api.logger.Error("list upstream", "asset", def.Name, "error", err)
			api.writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		for _, edge := range edges {
			view.Deps = append(view.Deps, dependencyView{
				AssetKey: edge.UpstreamKey.String(),
				Producer: edge.Upstream.NodeName(),
				Mapping:  mapping.Name(edge.Mapping),
				Declared: edge.Declared != nil,
			})
		}
		out = append(out, view)
	}
	sources := make([]sourceView, 0, len(g.Sources()))
	for _, src := range g.Sources() {
		sources = append(sources, sourceView{Key: src.Key.String(), Partitions: describePartitions(src.Partitions)})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"assets":  out,
		"sources": sources,
		"jobs":    api.loaded.JobNames(),
	})
}

func (api *partitionsAPI) handleListPartitions(w http.ResponseWriter, r *http.Request) {
	key, node, ok := api.node(w, r)
	if !ok {
		return
	}
	asOf, ok := api.asOf(w, r)
	if !ok {
		return
	}
	def := node.PartitionsDef()
	if def == nil {
		api.writeJSON(w, http.StatusOK, map[string]any{
			"asset_key":   key.String(),
			"partitioned": false,
			"keys":        []string{},
		})
		return
	}
	// Time windows keep opening, so the listing is a page over the closed ones.
	total := def.CountAsOf(asOf)
	offset := max(0, parseIntQuery(r, "offset", 0))
	limit := clampInt(parseIntQuery(r, "limit", maxListedKeys), 1, maxListedKeys)
	keys := []string{}
	if offset < total {
		keys = slices.AppendSeq(keys, def.KeysBetween(offset, min(offset+limit, total)-1))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"asset_key":   key.String(),
		"partitioned": true,
		"partitions":  describePartitions(def),
		"as_of":       asOf.UTC().Format(time.RFC3339),
		"total":       total,
		"offset":      offset,
		"keys":        keys,
	})
}

// asOf reads the as_of query parameter, defaulting to now. Timestamps without
// a zone are read as UTC.
func (api *partitionsAPI) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("as_of"))
	if raw == "" {
		return api.now(), true
	}
	parsed, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_as_of")
		return time.Time{}, false
	}
	return parsed, true
}

// node resolves the {key} path value against the graph, writing 400 or 404 on
// failure.
func (api *partitionsAPI) node(w http.ResponseWriter, r *http.Request) (assets.AssetKey, assets.Node, bool) {
	key, err := assets.ParseAssetKey(r.PathValue("key"))
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_asset_key")
		return "", nil, false
	}
	node, ok := api.loaded.Graph.Node(key)
	if !ok {
		api.writeError(w, r, http.StatusNotFound, "asset_not_found")
		return "", nil, false
	}
	return key, node, true
}

func describePartitions(def partitions.Definition) *partitionsView {
	switch d := def.(type) {
	case nil:
		return nil
	case *partitions.StaticDefinition:
		return &partitionsView{
			Type:       graphspec.PartitionsStatic,
			Definition: d.String(),
			Keys:       d.KeysAsOf(time.Time{}),
		}
	case *partitions.TimeWindowDefinition:
		view := &partitionsView{
			Type:       graphspec.PartitionsTimeWindow,
			Definition: d.String(),
			Cadence:    string(d.Cadence()),
			Timezone:   d.Location().String(),
			Start:      d.Start().Format(time.RFC3339),
			Format:     d.Format(),
		}
		if !d.End().IsZero() {
			view.End = d.End().Format(time.RFC3339)
		}
		return view
	default:
		return &partitionsView{Type: "custom", Definition: def.String()}
	}
}

func keyStrings(keys []assets.AssetKey) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key.String())
	}
	return out
}

// statusFor maps domain errors onto HTTP status codes and error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, assets.ErrUnknownAsset):
		return http.StatusNotFound, "asset_not_found"
	case errors.Is(err, assets.ErrNotDependency):
		return http.StatusNotFound, "dependency_not_found"
	case errors.Is(err, mapping.ErrIncompatiblePartitioning):
		return http.StatusConflict, "incompatible_partitioning"
	case errors.Is(err, runplan.ErrJobPartitionsMismatch):
		return http.StatusConflict, "job_partitions_mismatch"
	case errors.Is(err, runplan.ErrMissingSelection):
		return http.StatusUnprocessableEntity, "partition_selection_required"
	case errors.Is(err, runplan.ErrInvalidSelection):
		return http.StatusUnprocessableEntity, "invalid_partition_selection"
	case errors.Is(err, partitions.ErrKeyNotFound):
		return http.StatusUnprocessableEntity, "partition_key_not_found"
	case errors.Is(err, partitions.ErrInvalidRange):
		return http.StatusUnprocessableEntity, "invalid_partition_range"
	case errors.Is(err, partitions.ErrUnsupportedOperation):
		return http.StatusUnprocessableEntity, "unsupported_operation"
	case errors.Is(err, iomanager.ErrPartitionMissing):
		return http.StatusNotFound, "partition_missing"
	case errors.Is(err, iomanager.ErrUnboundedSubset):
		return http.StatusUnprocessableEntity, "unbounded_subset"
	case errors.Is(err, iomanager.ErrTooManyPartitions):
		return http.StatusUnprocessableEntity, "range_too_large"
	case errors.Is(err, iomanager.ErrInvalidPartitionKey):
		return http.StatusUnprocessableEntity, "invalid_partition_key"
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (api *partitionsAPI) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		api.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"message":    err.Error(),
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *partitionsAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	httpserver.WriteJSON(w, status, body)
}

func (api *partitionsAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func clampInt(v int, min int, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
