package assets

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/animus-labs/animus-assets/internal/mapping"
	"github.com/animus-labs/animus-assets/internal/partitions"
)

// Edge is a validated dependency with its effective mapping.
type Edge struct {
	Downstream  *AssetsDefinition
	Upstream    Node
	UpstreamKey AssetKey
	// Declared is the mapping on the dependency, nil for the default policy.
	Declared mapping.PartitionMapping
	// Mapping is Declared or the default mapping selected for the edge.
	Mapping mapping.PartitionMapping
}

// Graph is an immutable, validated set of assets and source assets.
type Graph struct {
	assets     []*AssetsDefinition
	sources    []*SourceAsset
	byName     map[string]*AssetsDefinition
	byKey      map[AssetKey]Node
	upstream   map[string][]Edge
	downstream map[AssetKey][]Edge
	order      []*AssetsDefinition
}

// BuildGraph validates every dependency edge and returns the graph. All issues
// are reported together in a *DefinitionError matching ErrInvalidDefinition,
// including edges whose partitions definitions cannot be reconciled without a
// declared mapping.
func BuildGraph(defs []*AssetsDefinition, sources []*SourceAsset) (*Graph, error) {
	issues := &DefinitionError{}
	g := &Graph{
		byName:     make(map[string]*AssetsDefinition, len(defs)),
		byKey:      make(map[AssetKey]Node),
		upstream:   make(map[string][]Edge, len(defs)),
		downstream: make(map[AssetKey][]Edge),
	}

	for i, def := range defs {
		if def == nil {
			issues.Add(fmt.Sprintf("asset[%d] is nil", i))
			continue
		}
		name := strings.TrimSpace(def.Name)
		if name == "" {
			issues.Add(fmt.Sprintf("asset[%d] name is required", i))
			continue
		}
		if _, exists := g.byName[name]; exists {
			issues.Add(fmt.Sprintf("duplicate asset name %q", name))
			continue
		}
		if len(def.Keys) == 0 {
			issues.Add(fmt.Sprintf("asset[%s] must produce at least one key", name))
			continue
		}
		g.byName[name] = def
		g.assets = append(g.assets, def)
		for _, key := range def.Keys {
			g.addKey(issues, key, def, fmt.Sprintf("asset[%s]", name))
		}
	}
	for i, src := range sources {
		if src == nil {
			issues.Add(fmt.Sprintf("source[%d] is nil", i))
			continue
		}
		g.sources = append(g.sources, src)
		g.addKey(issues, src.Key, src, fmt.Sprintf("source[%d]", i))
	}

	sort.Slice(g.assets, func(i, j int) bool { return g.assets[i].Name < g.assets[j].Name })
	sort.Slice(g.sources, func(i, j int) bool { return g.sources[i].Key < g.sources[j].Key })

	adj := make(map[string][]string, len(g.assets))
	for _, def := range g.assets {
		seen := make(map[AssetKey]struct{}, len(def.Deps))
		for _, dep := range def.Deps {
			if err := dep.Key.Validate(); err != nil {
				issues.Add(fmt.Sprintf("asset[%s] dependency: %v", def.Name, err))
				continue
			}
			if _, dup := seen[dep.Key]; dup {
				issues.Add(fmt.Sprintf("asset[%s] declares dependency %q twice", def.Name, dep.Key))
				continue
			}
			seen[dep.Key] = struct{}{}
			if def.Produces(dep.Key) {
				issues.Add(fmt.Sprintf("asset[%s] dependency %q has self-edge", def.Name, dep.Key))
				continue
			}
			up, ok := g.byKey[dep.Key]
			if !ok {
				issues.Add(fmt.Sprintf("asset[%s] dependency %q not found", def.Name, dep.Key))
				continue
			}
			m, err := mapping.Resolve(dep.Mapping, def.Partitions, up.PartitionsDef())
			if err == nil {
				err = mapping.ValidateEdge(m, def.Partitions, up.PartitionsDef())
			}
			if err != nil {
				issues.Add(fmt.Sprintf("asset[%s] dependency %q: %v", def.Name, dep.Key, err))
				continue
			}
			edge := Edge{Downstream: def, Upstream: up, UpstreamKey: dep.Key, Declared: dep.Mapping, Mapping: m}
			g.upstream[def.Name] = append(g.upstream[def.Name], edge)
			g.downstream[dep.Key] = append(g.downstream[dep.Key], edge)
			if upDef, ok := up.(*AssetsDefinition); ok {
				adj[upDef.Name] = append(adj[upDef.Name], def.Name)
			}
		}
	}

	if err := issues.OrNil(); err != nil {
		return nil, err
	}

	order, ok := topoSort(g.assets, adj)
	if !ok {
		issues.Add("dependency graph contains a cycle")
		return nil, issues
	}
	g.order = order
	for key := range g.downstream {
		edges := g.downstream[key]
		sort.SliceStable(edges, func(i, j int) bool { return edges[i].Downstream.Name < edges[j].Downstream.Name })
	}
	return g, nil
}

func (g *Graph) addKey(issues *DefinitionError, key AssetKey, node Node, owner string) {
	if err := key.Validate(); err != nil {
		issues.Add(fmt.Sprintf("%s: %v", owner, err))
		return
	}
	if existing, ok := g.byKey[key]; ok {
		issues.Add(fmt.Sprintf("%s: asset key %q is already produced by %s", owner, key, existing.NodeName()))
		return
	}
	g.byKey[key] = node
}

// topoSort orders definitions upstream first, breaking ties by name.
func topoSort(defs []*AssetsDefinition, adj map[string][]string) ([]*AssetsDefinition, bool) {
	byName := make(map[string]*AssetsDefinition, len(defs))
	inDegree := make(map[string]int, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
		inDegree[def.Name] = 0
	}
	for _, targets := range adj {
		for _, to := range targets {
			inDegree[to]++
		}
	}

	ready := make([]string, 0, len(defs))
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	ordered := make([]*AssetsDefinition, 0, len(defs))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byName[name])
		for _, next := range adj[name] {
			inDegree[next]--
			if inDegree[next] == 0 {
				ready = append(ready, next)
				sort.Strings(ready)
			}
		}
	}
	return ordered, len(ordered) == len(defs)
}

// Node returns the asset definition or source asset producing key.
func (g *Graph) Node(key AssetKey) (Node, bool) {
	n, ok := g.byKey[key]
	return n, ok
}

// Asset returns the definition with the given name.
func (g *Graph) Asset(name string) (*AssetsDefinition, bool) {
	def, ok := g.byName[name]
	return def, ok
}

// Assets returns the asset definitions sorted by name.
func (g *Graph) Assets() []*AssetsDefinition { return slices.Clone(g.assets) }

// Sources returns the source assets sorted by key.
func (g *Graph) Sources() []*SourceAsset { return slices.Clone(g.sources) }

// Keys returns every asset key in the graph, sorted.
func (g *Graph) Keys() []AssetKey {
	keys := make([]AssetKey, 0, len(g.byKey))
	for key := range g.byKey {
		keys = append(keys, key)
	}
	return sortKeys(keys)
}

// TopologicalOrder returns definitions with every upstream before its
// downstreams. Ties are broken by name so the order is deterministic.
func (g *Graph) TopologicalOrder() []*AssetsDefinition { return slices.Clone(g.order) }

// Upstream returns the dependency edges of the node producing key.
func (g *Graph) Upstream(key AssetKey) ([]Edge, error) {
	node, ok := g.byKey[key]
	if !ok {
		return nil, fmt.Errorf("asset %q: %w", key, ErrUnknownAsset)
	}
	def, ok := node.(*AssetsDefinition)
	if !ok {
		return nil, nil
	}
	return slices.Clone(g.upstream[def.Name]), nil
}

// Downstream returns the edges that read key, sorted by downstream name.
func (g *Graph) Downstream(key AssetKey) ([]Edge, error) {
	if _, ok := g.byKey[key]; !ok {
		return nil, fmt.Errorf("asset %q: %w", key, ErrUnknownAsset)
	}
	return slices.Clone(g.downstream[key]), nil
}

// ResolveUpstream maps r, a range of downstreamKey, onto upstreamKey.
func (g *Graph) ResolveUpstream(downstreamKey, upstreamKey AssetKey, r partitions.KeyRange) (mapping.Subset, error) {
	down, up, err := g.edgeNodes(downstreamKey, upstreamKey)
	if err != nil {
		return mapping.Subset{}, err
	}
	return GetUpstreamPartitionsForPartitionRange(down, up, upstreamKey, r)
}

// ResolveDownstream maps r, a range of upstreamKey, onto downstreamKey.
func (g *Graph) ResolveDownstream(downstreamKey, upstreamKey AssetKey, r partitions.KeyRange) (mapping.Subset, error) {
	down, up, err := g.edgeNodes(downstreamKey, upstreamKey)
	if err != nil {
		return mapping.Subset{}, err
	}
	return GetDownstreamPartitionsForPartitionRange(down, up, upstreamKey, r)
}

func (g *Graph) edgeNodes(downstreamKey, upstreamKey AssetKey) (Node, Node, error) {
	down, ok := g.byKey[downstreamKey]
	if !ok {
		return nil, nil, fmt.Errorf("downstream asset %q: %w", downstreamKey, ErrUnknownAsset)
	}
	up, ok := g.byKey[upstreamKey]
	if !ok {
		return nil, nil, fmt.Errorf("upstream asset %q: %w", upstreamKey, ErrUnknownAsset)
	}
	return down, up, nil
}
