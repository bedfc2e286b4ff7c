// Package runplan turns asset jobs and a run's partition selection into
// deterministic execution plans.
package runplan

import (
	"fmt"
	"strings"

	"github.com/animus-labs/animus-assets/internal/assets"
	"github.com/animus-labs/animus-assets/internal/partitions"
)

// Job selects assets to materialize together. An empty Selection selects every
// asset in the graph. Partitions, when set, must equal the partitions shared by
// the selected assets.
type Job struct {
	Name       string
	Selection  []assets.AssetKey
	Partitions partitions.Definition
	Tags       map[string]string
}

// ResolvedJob is a job bound to a graph.
type ResolvedJob struct {
	Name string
	// Assets are the selected definitions in topological order.
	Assets []*assets.AssetsDefinition
	// Partitions is shared by every partitioned asset of the job, nil when none is partitioned.
	Partitions partitions.Definition
	Tags       map[string]string
	graph      *assets.Graph
}

// Resolve checks the selection against g. Every partitioned asset of the job
// must use the same partitions definition; unpartitioned assets may be mixed in.
func (j Job) Resolve(g *assets.Graph) (*ResolvedJob, error) {
	name := strings.TrimSpace(j.Name)
	if name == "" {
		return nil, fmt.Errorf("job name is required: %w", ErrInvalidJob)
	}
	if g == nil {
		return nil, fmt.Errorf("job %s: graph is required: %w", name, ErrInvalidJob)
	}

	selected := make(map[string]struct{})
	for _, key := range j.Selection {
		node, ok := g.Node(key)
		if !ok {
			return nil, fmt.Errorf("job %s selects %q: %w", name, key, assets.ErrUnknownAsset)
		}
		def, ok := node.(*assets.AssetsDefinition)
		if !ok {
			return nil, fmt.Errorf("job %s selects source asset %q: %w", name, key, ErrInvalidJob)
		}
		selected[def.Name] = struct{}{}
	}

	resolved := &ResolvedJob{Name: name, Tags: j.Tags, graph: g}
	for _, def := range g.TopologicalOrder() {
		if len(selected) > 0 {
			if _, ok := selected[def.Name]; !ok {
				continue
			}
		}
		resolved.Assets = append(resolved.Assets, def)
		if def.Partitions == nil {
			continue
		}
		if resolved.Partitions == nil {
			resolved.Partitions = def.Partitions
			continue
		}
		if !resolved.Partitions.Equal(def.Partitions) {
			return nil, fmt.Errorf("job %s: asset %s is partitioned by %s but other assets use %s: %w",
				name, def.Name, def.Partitions, resolved.Partitions, ErrJobPartitionsMismatch)
		}
	}
	if len(resolved.Assets) == 0 {
		return nil, fmt.Errorf("job %s selects no assets: %w", name, ErrInvalidJob)
	}
	if j.Partitions != nil && !partitions.Equal(j.Partitions, resolved.Partitions) {
		return nil, fmt.Errorf("job %s declares partitions %s but its assets use %v: %w",
			name, j.Partitions, resolved.Partitions, ErrJobPartitionsMismatch)
	}
	return resolved, nil
}

// Materialization is one asset partition a step produces.
type Materialization struct {
	AssetKey assets.AssetKey
	// PartitionKey is empty for unpartitioned assets.
	PartitionKey string
}

// MaterializationCount is len(Materializations(step)) without expanding the
// step's partition range.
func (j *ResolvedJob) MaterializationCount(step ExecutionPlanStep) (int, error) {
	if !step.Output.IsRange() {
		return len(step.AssetKeys), nil
	}
	if j.Partitions == nil {
		return 0, fmt.Errorf("step %s has a partition range but job %s is unpartitioned: %w", step.Name, j.Name, ErrInvalidSelection)
	}
	n, err := step.Output.Range.Len(j.Partitions)
	if err != nil {
		return 0, err
	}
	return n * len(step.AssetKeys), nil
}

// Materializations lists the events a completed step emits: one per output
// key and partition in the step's range, or one per output key when the asset
// is unpartitioned.
func (j *ResolvedJob) Materializations(step ExecutionPlanStep) ([]Materialization, error) {
	var out []Materialization
	for _, key := range step.AssetKeys {
		if !step.Output.IsRange() {
			out = append(out, Materialization{AssetKey: key})
			continue
		}
		if j.Partitions == nil {
			return nil, fmt.Errorf("step %s has a partition range but job %s is unpartitioned: %w", step.Name, j.Name, ErrInvalidSelection)
		}
		seq, err := step.Output.Range.Keys(j.Partitions)
		if err != nil {
			return nil, err
		}
		for partitionKey := range seq {
			out = append(out, Materialization{AssetKey: key, PartitionKey: partitionKey})
		}
	}
	return out, nil
}
