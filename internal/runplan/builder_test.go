package runplan

import (
	"errors"
	"reflect"
	"testing"

	"github.com/animus-labs/animus-assets/internal/assets"
	"github.com/animus-labs/animus-assets/internal/mapping"
	"github.com/animus-labs/animus-assets/internal/partitions"
)

func mustStatic(t *testing.T, keys ...string) partitions.Definition {
	t.Helper()
	def, err := partitions.NewStatic(keys)
	if err != nil {
		t.Fatalf("NewStatic err=%v", err)
	}
	return def
}

func mustGraph(t *testing.T, defs []*assets.AssetsDefinition, sources ...*assets.SourceAsset) *assets.Graph {
	t.Helper()
	g, err := assets.BuildGraph(defs, sources)
	if err != nil {
		t.Fatalf("BuildGraph err=%v", err)
	}
	return g
}

func asset(name string, def partitions.Definition, deps ...string) *assets.AssetsDefinition {
	a := &assets.AssetsDefinition{Name: name, Keys: []assets.AssetKey{assets.NewAssetKey(name)}, Partitions: def}
	for _, dep := range deps {
		a.Deps = append(a.Deps, assets.Dependency{Key: assets.NewAssetKey(dep)})
	}
	return a
}

func stepNames(plan ExecutionPlan) []string {
	out := make([]string, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		out = append(out, step.Name)
	}
	return out
}

func TestSinglePartitionedAssetJob(t *testing.T) {
	def := mustStatic(t, "a", "b", "c", "d")
	g := mustGraph(t, []*assets.AssetsDefinition{asset("my_asset", def)})

	plan, err := BuildPlan(Job{Name: "my_job"}, g, "run-1", map[string]string{TagPartition: "b"})
	if err != nil {
		t.Fatalf("BuildPlan err=%v", err)
	}
	if plan.Selection == nil || *plan.Selection != (partitions.KeyRange{Start: "b", End: "b"}) {
		t.Fatalf("selection=%v", plan.Selection)
	}
	if len(plan.Steps) != 1 || plan.Steps[0].Output != mapping.RangeSubset(*plan.Selection) {
		t.Fatalf("unexpected steps %+v", plan.Steps)
	}
}

func TestTwoPartitionedAssetsJob(t *testing.T) {
	def := mustStatic(t, "a", "b", "c", "d")
	g := mustGraph(t, []*assets.AssetsDefinition{
		asset("downstream", def, "upstream"),
		asset("upstream", def),
	})

	first, err := BuildPlan(Job{Name: "job"}, g, "run-1", map[string]string{TagPartition: "b"})
	if err != nil {
		t.Fatalf("BuildPlan err=%v", err)
	}
	second, err := BuildPlan(Job{Name: "job"}, g, "run-1", map[string]string{TagPartition: "b"})
	if err != nil {
		t.Fatalf("BuildPlan err=%v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected deterministic plans")
	}
	if want := []string{"upstream", "downstream"}; !reflect.DeepEqual(stepNames(first), want) {
		t.Fatalf("order=%v, want %v", stepNames(first), want)
	}
	input := first.Steps[1].Inputs[0]
	if input.FromStep != "upstream" || input.Mapping != "identity" {
		t.Fatalf("unexpected input %+v", input)
	}
	if input.Subset.Range != (partitions.KeyRange{Start: "b", End: "b"}) {
		t.Fatalf("input subset=%s", input.Subset)
	}
	if !reflect.DeepEqual(first.Edges, []ExecutionPlanEdge{{From: "upstream", To: "downstream"}}) {
		t.Fatalf("edges=%v", first.Edges)
	}
}

func TestJobWithDifferentPartitionsFails(t *testing.T) {
	g := mustGraph(t, []*assets.AssetsDefinition{
		asset("daily_asset", mustDaily(t, "2020-01-01")),
		asset("static_asset", mustStatic(t, "a", "b")),
	})
	_, err := Job{Name: "job"}.Resolve(g)
	if !errors.Is(err, ErrJobPartitionsMismatch) {
		t.Fatalf("expected ErrJobPartitionsMismatch, got %v", err)
	}
}

func TestJobPartitionsMustMatchAssets(t *testing.T) {
	def := mustStatic(t, "a", "b")
	g := mustGraph(t, []*assets.AssetsDefinition{asset("x", def), asset("plain", nil)})

	if _, err := (Job{Name: "job", Partitions: mustStatic(t, "a", "b")}).Resolve(g); err != nil {
		t.Fatalf("matching job partitions should resolve: %v", err)
	}
	if _, err := (Job{Name: "job", Partitions: mustStatic(t, "a", "b", "c")}).Resolve(g); !errors.Is(err, ErrJobPartitionsMismatch) {
		t.Fatalf("expected ErrJobPartitionsMismatch, got %v", err)
	}
	onlyPlain := Job{Name: "plain_job", Selection: []assets.AssetKey{"plain"}, Partitions: def}
	if _, err := onlyPlain.Resolve(g); !errors.Is(err, ErrJobPartitionsMismatch) {
		t.Fatalf("expected ErrJobPartitionsMismatch for unpartitioned assets, got %v", err)
	}
}

func TestOnlyOneAssetPartitioned(t *testing.T) {
	def := mustStatic(t, "a", "b", "c", "d")
	g := mustGraph(t, []*assets.AssetsDefinition{
		asset("partitioned", def, "plain"),
		asset("plain", nil),
	})
	plan, err := BuildPlan(Job{Name: "job"}, g, "run-1", map[string]string{TagPartition: "c"})
	if err != nil {
		t.Fatalf("BuildPlan err=%v", err)
	}
	if plan.Steps[0].Name != "plain" || plan.Steps[0].Output.Kind != mapping.SubsetUnpartitioned {
		t.Fatalf("unexpected first step %+v", plan.Steps[0])
	}
	if in := plan.Steps[1].Inputs[0]; in.Subset.Kind != mapping.SubsetAll {
		t.Fatalf("unpartitioned upstream should be read whole, got %s", in.Subset)
	}
}

func TestPartitionRangeSingleRun(t *testing.T) {
	daily := mustDaily(t, "2020-01-01")
	g := mustGraph(t, []*assets.AssetsDefinition{
		asset("upstream_asset", daily),
		asset("downstream_asset", daily, "upstream_asset"),
	})
	job := Job{Name: "job"}
	tags := map[string]string{
		TagPartitionRangeStart: "2020-01-01",
		TagPartitionRangeEnd:   "2020-01-03",
	}
	resolved, err := job.Resolve(g)
	if err != nil {
		t.Fatalf("Resolve err=%v", err)
	}
	plan, err := resolved.Plan("run-1", tags)
	if err != nil {
		t.Fatalf("Plan err=%v", err)
	}
	want := partitions.KeyRange{Start: "2020-01-01", End: "2020-01-03"}
	for _, step := range plan.Steps {
		if step.Output.Range != want {
			t.Fatalf("step %s output=%s, want %s", step.Name, step.Output, want)
		}
	}
	if got := plan.Steps[1].Inputs[0].Subset.Range; got != want {
		t.Fatalf("input range=%s, want %s", got, want)
	}

	events, err := resolved.Materializations(plan.Steps[0])
	if err != nil {
		t.Fatalf("Materializations err=%v", err)
	}
	var keys []string
	for _, event := range events {
		keys = append(keys, event.PartitionKey)
	}
	if !reflect.DeepEqual(keys, []string{"2020-01-01", "2020-01-02", "2020-01-03"}) {
		t.Fatalf("materialized partitions=%v", keys)
	}
	if n, err := resolved.MaterializationCount(plan.Steps[0]); err != nil || n != len(events) {
		t.Fatalf("MaterializationCount=%d err=%v, want %d", n, err, len(events))
	}
}

func TestSourceAssetPartitions(t *testing.T) {
	daily := mustDaily(t, "2021-05-05")
	hourly, err := partitions.NewHourly("2021-05-05-00:00")
	if err != nil {
		t.Fatalf("NewHourly err=%v", err)
	}
	src := &assets.SourceAsset{Key: assets.NewAssetKey("raw", "events"), Partitions: hourly}
	g := mustGraph(t, []*assets.AssetsDefinition{{
		Name:       "daily_rollup",
		Keys:       []assets.AssetKey{"daily_rollup"},
		Partitions: daily,
		Deps:       []assets.Dependency{{Key: src.Key}},
	}}, src)

	plan, err := BuildPlan(Job{Name: "job"}, g, "run-1", map[string]string{TagPartition: "2021-06-06"})
	if err != nil {
		t.Fatalf("BuildPlan err=%v", err)
	}
	in := plan.Steps[0].Inputs[0]
	if in.FromStep != "" || in.Mapping != "time_window" {
		t.Fatalf("unexpected input %+v", in)
	}
	if in.Subset.Range != (partitions.KeyRange{Start: "2021-06-06-00:00", End: "2021-06-06-23:00"}) {
		t.Fatalf("input=%s", in.Subset)
	}
	if len(plan.Edges) != 0 {
		t.Fatalf("source assets add no edges, got %v", plan.Edges)
	}
	if _, err := (Job{Name: "bad", Selection: []assets.AssetKey{src.Key}}).Resolve(g); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("expected selecting a source to fail, got %v", err)
	}
}

func TestMultiAssetJob(t *testing.T) {
	def := mustStatic(t, "a", "b", "c", "d")
	multi := &assets.AssetsDefinition{
		Name:       "multi",
		Keys:       []assets.AssetKey{"out1", "out2"},
		Partitions: def,
	}
	reader := &assets.AssetsDefinition{
		Name:       "reader",
		Keys:       []assets.AssetKey{"reader"},
		Partitions: def,
		Deps:       []assets.Dependency{{Key: "out1"}, {Key: "out2"}},
	}
	g := mustGraph(t, []*assets.AssetsDefinition{multi, reader})

	job := Job{Name: "job", Selection: []assets.AssetKey{"out2", "reader"}}
	resolved, err := job.Resolve(g)
	if err != nil {
		t.Fatalf("Resolve err=%v", err)
	}
	plan, err := resolved.Plan("run-1", map[string]string{TagPartition: "b"})
	if err != nil {
		t.Fatalf("Plan err=%v", err)
	}
	if len(plan.Steps[1].Inputs) != 2 {
		t.Fatalf("expected one input per edge, got %+v", plan.Steps[1].Inputs)
	}
	if len(plan.Edges) != 1 {
		t.Fatalf("expected a single step edge, got %v", plan.Edges)
	}
	events, err := resolved.Materializations(plan.Steps[0])
	if err != nil {
		t.Fatalf("Materializations err=%v", err)
	}
	want := []Materialization{{AssetKey: "out1", PartitionKey: "b"}, {AssetKey: "out2", PartitionKey: "b"}}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events=%v, want %v", events, want)
	}

	wide, err := resolved.Plan("run-2", map[string]string{TagPartitionRangeStart: "a", TagPartitionRangeEnd: "d"})
	if err != nil {
		t.Fatalf("Plan err=%v", err)
	}
	if n, err := resolved.MaterializationCount(wide.Steps[0]); err != nil || n != 8 {
		t.Fatalf("MaterializationCount=%d err=%v, want 2 keys x 4 partitions", n, err)
	}
}

func TestBuildPlanSelectionErrors(t *testing.T) {
	def := mustStatic(t, "a", "b", "c")
	g := mustGraph(t, []*assets.AssetsDefinition{asset("x", def), asset("plain", nil)})
	job := Job{Name: "job"}

	tests := []struct {
		name string
		tags map[string]string
		want error
	}{
		{name: "missing selection", tags: nil, want: ErrMissingSelection},
		{name: "half range", tags: map[string]string{TagPartitionRangeStart: "a"}, want: ErrInvalidSelection},
		{name: "both forms", tags: map[string]string{TagPartition: "a", TagPartitionRangeStart: "a", TagPartitionRangeEnd: "b"}, want: ErrInvalidSelection},
		{name: "reversed range", tags: map[string]string{TagPartitionRangeStart: "c", TagPartitionRangeEnd: "a"}, want: partitions.ErrInvalidRange},
		{name: "unknown key", tags: map[string]string{TagPartition: "z"}, want: partitions.ErrInvalidRange},
	}
	for _, tt := range tests {
		if _, err := BuildPlan(job, g, "run-1", tt.tags); !errors.Is(err, tt.want) {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}

	plainJob := Job{Name: "plain", Selection: []assets.AssetKey{"plain"}}
	if _, err := BuildPlan(plainJob, g, "run-1", map[string]string{TagPartition: "a"}); !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("expected ErrInvalidSelection for unpartitioned job, got %v", err)
	}
	if _, err := BuildPlan(plainJob, g, " ", nil); err == nil {
		t.Fatalf("expected missing run id to fail")
	}
}

func TestTagsForRange(t *testing.T) {
	if got := TagsForRange(partitions.KeyRange{Start: "a", End: "a"}); !reflect.DeepEqual(got, map[string]string{TagPartition: "a"}) {
		t.Fatalf("single key tags=%v", got)
	}
	got := TagsForRange(partitions.KeyRange{Start: "a", End: "c"})
	if got[TagPartitionRangeStart] != "a" || got[TagPartitionRangeEnd] != "c" || len(got) != 2 {
		t.Fatalf("range tags=%v", got)
	}
}

func mustDaily(t *testing.T, start string) partitions.Definition {
	t.Helper()
	def, err := partitions.NewDaily(start)
	if err != nil {
		t.Fatalf("NewDaily err=%v", err)
	}
	return def
}
