package assets

import (
	"errors"
	"strings"
	"testing"

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

func mustRange(t *testing.T, def partitions.Definition, start, end string) partitions.KeyRange {
	t.Helper()
	r, err := partitions.NewKeyRange(def, start, end)
	if err != nil {
		t.Fatalf("NewKeyRange err=%v", err)
	}
	return r
}

func asset(name string, def partitions.Definition, deps ...string) *AssetsDefinition {
	a := &AssetsDefinition{Name: name, Keys: []AssetKey{NewAssetKey(name)}, Partitions: def}
	for _, dep := range deps {
		a.Deps = append(a.Deps, Dependency{Key: NewAssetKey(dep)})
	}
	return a
}

func TestBuildGraphRejectsMismatchedStaticPartitions(t *testing.T) {
	upstream := asset("upstream", mustStatic(t, "a", "b", "c"))
	downstream := asset("downstream", mustStatic(t, "a", "b", "c", "d"), "upstream")

	_, err := BuildGraph([]*AssetsDefinition{upstream, downstream}, nil)
	if !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected ErrInvalidDefinition, got %v", err)
	}
	var defErr *DefinitionError
	if !errors.As(err, &defErr) || len(defErr.Issues) != 1 {
		t.Fatalf("expected one aggregated issue, got %v", err)
	}
	if !strings.Contains(defErr.Issues[0], "downstream") {
		t.Fatalf("issue should name the asset: %q", defErr.Issues[0])
	}
}

func TestBuildGraphAcceptsDeclaredMapping(t *testing.T) {
	upstream := asset("upstream", mustStatic(t, "a", "b", "c"))
	downstream := asset("downstream", mustStatic(t, "a", "b", "c", "d"))
	downstream.Deps = []Dependency{{Key: NewAssetKey("upstream"), Mapping: mapping.AllPartitionsMapping{}}}

	g, err := BuildGraph([]*AssetsDefinition{upstream, downstream}, nil)
	if err != nil {
		t.Fatalf("BuildGraph err=%v", err)
	}
	got, err := g.ResolveUpstream(NewAssetKey("downstream"), NewAssetKey("upstream"), mustRange(t, downstream.Partitions, "d", "d"))
	if err != nil {
		t.Fatalf("ResolveUpstream err=%v", err)
	}
	if got.Kind != mapping.SubsetAll {
		t.Fatalf("subset=%s, want all", got)
	}
}

func TestBuildGraphAggregatesIssues(t *testing.T) {
	daily, _ := partitions.NewDaily("2021-05-05")
	defs := []*AssetsDefinition{
		asset("a", nil, "missing"),
		asset("a", nil),
		{Name: "empty"},
		{Name: "self", Keys: []AssetKey{"self"}, Deps: []Dependency{{Key: "self"}}},
		{Name: "bad_key", Keys: []AssetKey{"x//y"}},
		{Name: "twice", Keys: []AssetKey{"twice"}, Deps: []Dependency{{Key: "src"}, {Key: "src"}}},
		{Name: "forced", Keys: []AssetKey{"forced"}, Partitions: mustStatic(t, "a"), Deps: []Dependency{{Key: "src", Mapping: mapping.TimeWindowMapping{}}}},
	}
	sources := []*SourceAsset{{Key: "src", Partitions: daily}, {Key: "a"}}

	_, err := BuildGraph(defs, sources)
	var defErr *DefinitionError
	if !errors.As(err, &defErr) {
		t.Fatalf("expected *DefinitionError, got %v", err)
	}
	wants := []string{
		`dependency "missing" not found`,
		`duplicate asset name "a"`,
		`asset[empty] must produce at least one key`,
		`"self" has self-edge`,
		`empty path segment`,
		`declares dependency "src" twice`,
		`asset[forced] dependency "src"`,
		`asset key "a" is already produced by a`,
	}
	for _, want := range wants {
		found := false
		for _, issue := range defErr.Issues {
			if strings.Contains(issue, want) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("missing issue %q in %v", want, defErr.Issues)
		}
	}
}

func TestBuildGraphDetectsCycles(t *testing.T) {
	defs := []*AssetsDefinition{
		asset("a", nil, "c"),
		asset("b", nil, "a"),
		asset("c", nil, "b"),
	}
	_, err := BuildGraph(defs, nil)
	if !errors.Is(err, ErrInvalidDefinition) || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestTopologicalOrderIsDeterministic(t *testing.T) {
	defs := []*AssetsDefinition{
		asset("report", nil, "orders", "customers"),
		asset("orders", nil, "raw"),
		asset("customers", nil, "raw"),
	}
	g, err := BuildGraph(defs, []*SourceAsset{{Key: "raw"}})
	if err != nil {
		t.Fatalf("BuildGraph err=%v", err)
	}
	var names []string
	for _, def := range g.TopologicalOrder() {
		names = append(names, def.Name)
	}
	if got := strings.Join(names, ","); got != "customers,orders,report" {
		t.Fatalf("order=%s", got)
	}

	down, err := g.Downstream("raw")
	if err != nil {
		t.Fatalf("Downstream err=%v", err)
	}
	if len(down) != 2 || down[0].Downstream.Name != "customers" || down[1].Downstream.Name != "orders" {
		t.Fatalf("unexpected downstream edges %+v", down)
	}
	up, err := g.Upstream("report")
	if err != nil {
		t.Fatalf("Upstream err=%v", err)
	}
	if len(up) != 2 {
		t.Fatalf("expected two upstream edges, got %d", len(up))
	}
	if edges, err := g.Upstream("raw"); err != nil || len(edges) != 0 {
		t.Fatalf("source asset has no upstream edges, got %v %v", edges, err)
	}
	if _, err := g.Upstream("nope"); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestIdentityAcrossEqualDefinitions(t *testing.T) {
	upstream := asset("upstream", mustStatic(t, "a", "b", "c", "d"))
	downstream := asset("downstream", mustStatic(t, "a", "b", "c", "d"), "upstream")
	r := mustRange(t, downstream.Partitions, "a", "c")

	up, err := GetUpstreamPartitionsForPartitionRange(downstream, upstream, NewAssetKey("upstream"), r)
	if err != nil {
		t.Fatalf("upstream err=%v", err)
	}
	if !up.IsRange() || up.Range != r {
		t.Fatalf("upstream=%s, want %s", up, r)
	}
	down, err := GetDownstreamPartitionsForPartitionRange(downstream, upstream, NewAssetKey("upstream"), r)
	if err != nil {
		t.Fatalf("downstream err=%v", err)
	}
	if !down.IsRange() || down.Range != r {
		t.Fatalf("downstream=%s, want %s", down, r)
	}
}

func TestUnpartitionedUpstreamResolvesToAll(t *testing.T) {
	upstream := asset("upstream", nil)
	downstream := asset("downstream", mustStatic(t, "a", "b", "c", "d"), "upstream")
	if _, err := BuildGraph([]*AssetsDefinition{upstream, downstream}, nil); err != nil {
		t.Fatalf("BuildGraph err=%v", err)
	}
	for _, r := range []partitions.KeyRange{
		mustRange(t, downstream.Partitions, "a", "a"),
		mustRange(t, downstream.Partitions, "a", "d"),
	} {
		got, err := GetUpstreamPartitionsForPartitionRange(downstream, upstream, NewAssetKey("upstream"), r)
		if err != nil {
			t.Fatalf("resolve err=%v", err)
		}
		if got.Kind != mapping.SubsetAll {
			t.Fatalf("resolve %s = %s, want all", r, got)
		}
	}
}

func TestMultiAssetResolvesPerEdge(t *testing.T) {
	daily, _ := partitions.NewDaily("2021-05-05")
	hourly, _ := partitions.NewHourly("2021-05-05-00:00")
	events := &SourceAsset{Key: NewAssetKey("raw", "events"), Partitions: hourly}
	rollup := &AssetsDefinition{
		Name:       "rollup",
		Keys:       []AssetKey{NewAssetKey("rollup", "counts"), NewAssetKey("rollup", "users")},
		Partitions: daily,
		Deps:       []Dependency{{Key: events.Key}},
	}
	g, err := BuildGraph([]*AssetsDefinition{rollup}, []*SourceAsset{events})
	if err != nil {
		t.Fatalf("BuildGraph err=%v", err)
	}

	r := mustRange(t, daily, "2021-06-06", "2021-06-06")
	for _, key := range rollup.Keys {
		got, err := g.ResolveUpstream(key, events.Key, r)
		if err != nil {
			t.Fatalf("ResolveUpstream(%s) err=%v", key, err)
		}
		want := partitions.KeyRange{Start: "2021-06-06-00:00", End: "2021-06-06-23:00"}
		if got.Range != want {
			t.Fatalf("ResolveUpstream(%s)=%s, want %s", key, got, want)
		}
	}
	edges, err := g.Upstream(rollup.Keys[1])
	if err != nil {
		t.Fatalf("Upstream err=%v", err)
	}
	if len(edges) != 1 || mapping.Name(edges[0].Mapping) != "time_window" {
		t.Fatalf("expected a single time window edge, got %+v", edges)
	}

	fanIn, err := g.ResolveDownstream(rollup.Keys[0], events.Key, mustRange(t, hourly, "2021-06-06-13:00", "2021-06-06-13:00"))
	if err != nil {
		t.Fatalf("ResolveDownstream err=%v", err)
	}
	if fanIn.Range != (partitions.KeyRange{Start: "2021-06-06", End: "2021-06-06"}) {
		t.Fatalf("fan-in=%s", fanIn)
	}
}

func TestResolveRejectsUnknownEdges(t *testing.T) {
	a := asset("a", mustStatic(t, "x"))
	b := asset("b", mustStatic(t, "x"))
	r := mustRange(t, a.Partitions, "x", "x")
	if _, err := GetUpstreamPartitionsForPartitionRange(b, a, NewAssetKey("a"), r); !errors.Is(err, ErrNotDependency) {
		t.Fatalf("expected ErrNotDependency, got %v", err)
	}
	if _, err := GetUpstreamPartitionsForPartitionRange(b, a, NewAssetKey("z"), r); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestAssetKeyPath(t *testing.T) {
	key := NewAssetKey("warehouse", "orders")
	if key.String() != "warehouse/orders" {
		t.Fatalf("key=%s", key)
	}
	if path := key.Path(); len(path) != 2 || path[1] != "orders" {
		t.Fatalf("path=%v", path)
	}
	if _, err := ParseAssetKey(" "); err == nil {
		t.Fatalf("expected empty key to fail")
	}
	if _, err := ParseAssetKey("a//b"); err == nil {
		t.Fatalf("expected empty segment to fail")
	}
}
