package runplan

import (
	"fmt"
	"maps"
	"strings"

	"github.com/animus-labs/animus-assets/internal/assets"
	"github.com/animus-labs/animus-assets/internal/mapping"
	"github.com/animus-labs/animus-assets/internal/partitions"
)

// ExecutionPlan is a deterministic plan for one run of a job.
type ExecutionPlan struct {
	RunID string
	Job   string
	Tags  map[string]string
	// Selection is the run's partition range, nil for unpartitioned jobs.
	Selection *partitions.KeyRange
	Steps     []ExecutionPlanStep
	Edges     []ExecutionPlanEdge
}

// ExecutionPlanStep materializes one asset definition.
type ExecutionPlanStep struct {
	Name      string
	AssetKeys []assets.AssetKey
	// Output is the selection for partitioned assets and unpartitioned otherwise.
	Output mapping.Subset
	Inputs []StepInput
}

// StepInput is the part of an upstream asset a step reads.
type StepInput struct {
	AssetKey assets.AssetKey
	Mapping  string
	Subset   mapping.Subset
	// FromStep names the producing step, empty when the upstream is outside the job.
	FromStep string
}

type ExecutionPlanEdge struct {
	From string
	To   string
}

// BuildPlan resolves job against g and maps the run's partition selection,
// read from tags, across every dependency edge of the selected assets.
func BuildPlan(job Job, g *assets.Graph, runID string, tags map[string]string) (ExecutionPlan, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return ExecutionPlan{}, fmt.Errorf("run id is required")
	}
	resolved, err := job.Resolve(g)
	if err != nil {
		return ExecutionPlan{}, err
	}
	return resolved.Plan(runID, tags)
}

// Plan builds the execution plan for one run of a resolved job.
func (j *ResolvedJob) Plan(runID string, tags map[string]string) (ExecutionPlan, error) {
	runTags := make(map[string]string, len(j.Tags)+len(tags))
	maps.Copy(runTags, j.Tags)
	maps.Copy(runTags, tags)

	selection, err := SelectionFromTags(j.Partitions, runTags)
	if err != nil {
		return ExecutionPlan{}, fmt.Errorf("job %s: %w", j.Name, err)
	}
	if j.Partitions != nil && selection == nil {
		return ExecutionPlan{}, fmt.Errorf("job %s is partitioned by %s: %w", j.Name, j.Partitions, ErrMissingSelection)
	}

	inJob := make(map[string]struct{}, len(j.Assets))
	for _, def := range j.Assets {
		inJob[def.Name] = struct{}{}
	}

	plan := ExecutionPlan{
		RunID:     runID,
		Job:       j.Name,
		Tags:      runTags,
		Selection: selection,
		Steps:     make([]ExecutionPlanStep, 0, len(j.Assets)),
	}
	for _, def := range j.Assets {
		step := ExecutionPlanStep{
			Name:      def.Name,
			AssetKeys: def.AssetKeys(),
			Output:    mapping.Unpartitioned(),
		}
		var r partitions.KeyRange
		if def.Partitions != nil {
			r = *selection
			step.Output = mapping.RangeSubset(r)
		}

		edges, err := j.graph.Upstream(def.Keys[0])
		if err != nil {
			return ExecutionPlan{}, err
		}
		for _, edge := range edges {
			subset, err := edge.Mapping.UpstreamForDownstreamRange(def.Partitions, edge.Upstream.PartitionsDef(), r)
			if err != nil {
				return ExecutionPlan{}, fmt.Errorf("step %s input %s: %w", def.Name, edge.UpstreamKey, err)
			}
			input := StepInput{
				AssetKey: edge.UpstreamKey,
				Mapping:  mapping.Name(edge.Mapping),
				Subset:   subset,
			}
			if up, ok := edge.Upstream.(*assets.AssetsDefinition); ok {
				if _, ok := inJob[up.Name]; ok {
					input.FromStep = up.Name
					plan.Edges = append(plan.Edges, ExecutionPlanEdge{From: up.Name, To: def.Name})
				}
			}
			step.Inputs = append(step.Inputs, input)
		}
		plan.Steps = append(plan.Steps, step)
	}
	plan.Edges = dedupeEdges(plan.Edges)
	return plan, nil
}

// dedupeEdges drops repeated edges created by a step reading several keys of one multi-asset.
func dedupeEdges(edges []ExecutionPlanEdge) []ExecutionPlanEdge {
	seen := make(map[ExecutionPlanEdge]struct{}, len(edges))
	out := make([]ExecutionPlanEdge, 0, len(edges))
	for _, edge := range edges {
		if _, ok := seen[edge]; ok {
			continue
		}
		seen[edge] = struct{}{}
		out = append(out, edge)
	}
	return out
}
