package runplan

import (
	"encoding/json"

	"github.com/animus-labs/animus-assets/internal/assets"
	"github.com/animus-labs/animus-assets/internal/mapping"
	"github.com/animus-labs/animus-assets/internal/partitions"
)

// MarshalExecutionPlan serializes an execution plan with stable field names.
func MarshalExecutionPlan(plan ExecutionPlan) ([]byte, error) {
	return json.Marshal(PlanPayload(plan))
}

// UnmarshalExecutionPlan parses a persisted plan JSON into an ExecutionPlan.
func UnmarshalExecutionPlan(raw []byte) (ExecutionPlan, error) {
	var payload ExecutionPlanPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ExecutionPlan{}, err
	}
	steps := make([]ExecutionPlanStep, 0, len(payload.Steps))
	for _, step := range payload.Steps {
		keys := make([]assets.AssetKey, 0, len(step.AssetKeys))
		for _, key := range step.AssetKeys {
			keys = append(keys, assets.AssetKey(key))
		}
		var inputs []StepInput
		for _, input := range step.Inputs {
			inputs = append(inputs, StepInput{
				AssetKey: assets.AssetKey(input.AssetKey),
				Mapping:  input.Mapping,
				Subset:   input.Subset.subset(),
				FromStep: input.FromStep,
			})
		}
		steps = append(steps, ExecutionPlanStep{
			Name:      step.Name,
			AssetKeys: keys,
			Output:    step.Output.subset(),
			Inputs:    inputs,
		})
	}
	edges := make([]ExecutionPlanEdge, 0, len(payload.Edges))
	for _, edge := range payload.Edges {
		edges = append(edges, ExecutionPlanEdge{From: edge.From, To: edge.To})
	}
	var selection *partitions.KeyRange
	if payload.Selection != nil {
		selection = &partitions.KeyRange{Start: payload.Selection.Start, End: payload.Selection.End}
	}
	return ExecutionPlan{
		RunID:     payload.RunID,
		Job:       payload.Job,
		Tags:      payload.Tags,
		Selection: selection,
		Steps:     steps,
		Edges:     edges,
	}, nil
}

// PlanPayload converts a plan into its wire form.
func PlanPayload(plan ExecutionPlan) ExecutionPlanPayload {
	payload := ExecutionPlanPayload{
		RunID: plan.RunID,
		Job:   plan.Job,
		Tags:  plan.Tags,
		Steps: make([]ExecutionPlanStepPayload, 0, len(plan.Steps)),
		Edges: make([]ExecutionPlanEdgePayload, 0, len(plan.Edges)),
	}
	if plan.Selection != nil {
		payload.Selection = &KeyRangePayload{Start: plan.Selection.Start, End: plan.Selection.End}
	}
	for _, step := range plan.Steps {
		keys := make([]string, 0, len(step.AssetKeys))
		for _, key := range step.AssetKeys {
			keys = append(keys, key.String())
		}
		inputs := make([]StepInputPayload, 0, len(step.Inputs))
		for _, input := range step.Inputs {
			inputs = append(inputs, StepInputPayload{
				AssetKey: input.AssetKey.String(),
				Mapping:  input.Mapping,
				Subset:   SubsetPayloadFrom(input.Subset),
				FromStep: input.FromStep,
			})
		}
		payload.Steps = append(payload.Steps, ExecutionPlanStepPayload{
			Name:      step.Name,
			AssetKeys: keys,
			Output:    SubsetPayloadFrom(step.Output),
			Inputs:    inputs,
		})
	}
	for _, edge := range plan.Edges {
		payload.Edges = append(payload.Edges, ExecutionPlanEdgePayload{From: edge.From, To: edge.To})
	}
	return payload
}

type ExecutionPlanPayload struct {
	RunID     string                     `json:"runId"`
	Job       string                     `json:"job"`
	Tags      map[string]string          `json:"tags,omitempty"`
	Selection *KeyRangePayload           `json:"selection,omitempty"`
	Steps     []ExecutionPlanStepPayload `json:"steps"`
	Edges     []ExecutionPlanEdgePayload `json:"edges"`
}

type ExecutionPlanStepPayload struct {
	Name      string             `json:"name"`
	AssetKeys []string           `json:"assetKeys"`
	Output    SubsetPayload      `json:"output"`
	Inputs    []StepInputPayload `json:"inputs"`
}

type StepInputPayload struct {
	AssetKey string        `json:"assetKey"`
	Mapping  string        `json:"mapping"`
	Subset   SubsetPayload `json:"subset"`
	FromStep string        `json:"fromStep,omitempty"`
}

type ExecutionPlanEdgePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type KeyRangePayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SubsetPayload is the wire form of a mapping.Subset. Start and End are set
// only for range subsets.
type SubsetPayload struct {
	Kind  mapping.SubsetKind `json:"kind"`
	Start string             `json:"start,omitempty"`
	End   string             `json:"end,omitempty"`
}

func SubsetPayloadFrom(s mapping.Subset) SubsetPayload {
	payload := SubsetPayload{Kind: s.Kind}
	if s.IsRange() {
		payload.Start = s.Range.Start
		payload.End = s.Range.End
	}
	return payload
}

func (p SubsetPayload) subset() mapping.Subset {
	if p.Kind == mapping.SubsetRange {
		return mapping.RangeSubset(partitions.KeyRange{Start: p.Start, End: p.End})
	}
	return mapping.Subset{Kind: p.Kind}
}
