package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/animus-labs/animus-assets/internal/assets"
	"github.com/animus-labs/animus-assets/internal/mapping"
	"github.com/animus-labs/animus-assets/internal/partitions"
	"github.com/animus-labs/animus-assets/internal/runplan"
)

const (
	directionUpstream   = "upstream"
	directionDownstream = "downstream"

	maxListedKeys = 10000
)

type resolveRequest struct {
	Direction  string `json:"direction"`
	Downstream string `json:"downstream"`
	Upstream   string `json:"upstream"`
	Start      string `json:"start,omitempty"`
	End        string `json:"end,omitempty"`
}

type resolveResponse struct {
	Direction string                `json:"direction"`
	Mapping   string                `json:"mapping"`
	Subset    runplan.SubsetPayload `json:"subset"`
	// KeyCount is the size of a range subset on the target side.
	KeyCount int `json:"key_count,omitempty"`
	// Keys enumerates the range when it holds at most maxListedKeys keys.
	Keys []string `json:"keys,omitempty"`
}

// handleResolve maps a partition range across one dependency edge. The range
// is given on the downstream asset for direction=upstream and on the upstream
// asset for direction=downstream; it is omitted when that side is
// unpartitioned.
func (api *partitionsAPI) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	direction := strings.ToLower(strings.TrimSpace(req.Direction))
	if direction != directionUpstream && direction != directionDownstream {
		api.writeError(w, r, http.StatusBadRequest, "invalid_direction")
		return
	}
	downKey, err := assets.ParseAssetKey(req.Downstream)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "downstream_required")
		return
	}
	upKey, err := assets.ParseAssetKey(req.Upstream)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "upstream_required")
		return
	}
	g := api.loaded.Graph
	down, ok := g.Node(downKey)
	if !ok {
		api.writeError(w, r, http.StatusNotFound, "asset_not_found")
		return
	}
	up, ok := g.Node(upKey)
	if !ok {
		api.writeError(w, r, http.StatusNotFound, "asset_not_found")
		return
	}

	from, to := down.PartitionsDef(), up.PartitionsDef()
	if direction == directionDownstream {
		from, to = to, from
	}
	var keyRange partitions.KeyRange
	start, end := strings.TrimSpace(req.Start), strings.TrimSpace(req.End)
	switch {
	case from == nil && (start != "" || end != ""):
		api.writeError(w, r, http.StatusUnprocessableEntity, "range_on_unpartitioned_asset")
		return
	case from != nil && (start == "" || end == ""):
		api.writeError(w, r, http.StatusBadRequest, "start_and_end_required")
		return
	case from != nil:
		keyRange, err = partitions.NewKeyRange(from, start, end)
		if err != nil {
			api.writeDomainError(w, r, err)
			return
		}
	}

	cacheKey := strings.Join([]string{direction, downKey.String(), upKey.String(), keyRange.Start, keyRange.End}, "\x00")
	if api.resolutions != nil {
		if cached, ok := api.resolutions.Get(cacheKey); ok {
			api.writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	began := time.Now()
	var subset mapping.Subset
	if direction == directionUpstream {
		subset, err = g.ResolveUpstream(downKey, upKey, keyRange)
	} else {
		subset, err = g.ResolveDownstream(downKey, upKey, keyRange)
	}
	api.metrics.ObserveResolution(direction, err, time.Since(began))
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}

	resp := resolveResponse{
		Direction: direction,
		Mapping:   api.edgeMappingName(downKey, upKey),
		Subset:    runplan.SubsetPayloadFrom(subset),
	}
	if subset.IsRange() && to != nil {
		n, err := subset.Range.Len(to)
		if err != nil {
			api.writeDomainError(w, r, err)
			return
		}
		resp.KeyCount = n
		if n <= maxListedKeys {
			if resp.Keys, err = subset.Range.KeySlice(to); err != nil {
				api.writeDomainError(w, r, err)
				return
			}
		}
	}
	if api.resolutions != nil {
		api.resolutions.Add(cacheKey, resp)
	}
	api.writeJSON(w, http.StatusOK, resp)
}

func (api *partitionsAPI) edgeMappingName(downKey, upKey assets.AssetKey) string {
	edges, err := api.loaded.Graph.Upstream(downKey)
	if err != nil {
		return ""
	}
	for _, edge := range edges {
		if edge.UpstreamKey == upKey {
			return mapping.Name(edge.Mapping)
		}
	}
	return ""
}

type createPlanRequest struct {
	RunID string            `json:"run_id,omitempty"`
	Tags  map[string]string `json:"tags,omitempty"`
}

type materializationView struct {
	AssetKey     string `json:"asset_key"`
	PartitionKey string `json:"partition_key,omitempty"`
}

func (api *partitionsAPI) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	job, ok := api.loaded.Jobs[name]
	if !ok {
		api.writeError(w, r, http.StatusNotFound, "job_not_found")
		return
	}
	var req createPlanRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			api.writeError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
	}
	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = api.newRunID()
	}

	plan, expected, err := api.plan(job, runID, req.Tags)
	api.metrics.ObservePlan(name, err)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.logger.Info("execution plan built", "job", name, "run_id", runID, "steps", len(plan.Steps))
	api.writeJSON(w, http.StatusCreated, map[string]any{
		"plan":             runplan.PlanPayload(plan),
		"materializations": expected,
	})
}

func (api *partitionsAPI) plan(job runplan.Job, runID string, tags map[string]string) (runplan.ExecutionPlan, []materializationView, error) {
	resolved, err := job.Resolve(api.loaded.Graph)
	if err != nil {
		return runplan.ExecutionPlan{}, nil, err
	}
	plan, err := resolved.Plan(runID, tags)
	if err != nil {
		return runplan.ExecutionPlan{}, nil, err
	}
	total := 0
	for _, step := range plan.Steps {
		n, err := resolved.MaterializationCount(step)
		if err != nil {
			return runplan.ExecutionPlan{}, nil, err
		}
		total += n
	}
	if total > maxListedKeys {
		return runplan.ExecutionPlan{}, nil, fmt.Errorf("selection expands to %d materializations: %w", total, runplan.ErrInvalidSelection)
	}
	expected := make([]materializationView, 0, total)
	for _, step := range plan.Steps {
		events, err := resolved.Materializations(step)
		if err != nil {
			return runplan.ExecutionPlan{}, nil, err
		}
		for _, ev := range events {
			expected = append(expected, materializationView{AssetKey: ev.AssetKey.String(), PartitionKey: ev.PartitionKey})
		}
	}
	return plan, expected, nil
}
