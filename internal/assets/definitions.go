// Package assets declares partitioned assets, the dependency edges between
// them, and the graph that validates those edges before anything executes.
package assets

import (
	"slices"

	"github.com/animus-labs/animus-assets/internal/mapping"
	"github.com/animus-labs/animus-assets/internal/partitions"
)

// Node is an asset graph vertex: a computation or an external source.
type Node interface {
	NodeName() string
	PartitionsDef() partitions.Definition
	AssetKeys() []AssetKey
	// PartitionMappingFor returns the mapping declared on the edge to upstream.
	// The mapping is nil when the edge relies on the default policy; ok is false
	// when the node does not depend on upstream.
	PartitionMappingFor(upstream AssetKey) (m mapping.PartitionMapping, ok bool)
}

// Dependency is an edge to an upstream asset key. A nil Mapping selects the
// default policy for the two partitions definitions.
type Dependency struct {
	Key     AssetKey
	Mapping mapping.PartitionMapping
}

// AssetsDefinition is one computation producing one or more asset keys that
// share a partitions definition.
type AssetsDefinition struct {
	Name       string
	Keys       []AssetKey
	Partitions partitions.Definition
	Deps       []Dependency
}

var _ Node = (*AssetsDefinition)(nil)

func (a *AssetsDefinition) NodeName() string                     { return a.Name }
func (a *AssetsDefinition) PartitionsDef() partitions.Definition { return a.Partitions }
func (a *AssetsDefinition) AssetKeys() []AssetKey                { return slices.Clone(a.Keys) }

func (a *AssetsDefinition) PartitionMappingFor(upstream AssetKey) (mapping.PartitionMapping, bool) {
	for _, dep := range a.Deps {
		if dep.Key == upstream {
			return dep.Mapping, true
		}
	}
	return nil, false
}

// Produces reports whether key is one of the definition's outputs.
func (a *AssetsDefinition) Produces(key AssetKey) bool {
	return slices.Contains(a.Keys, key)
}

// SourceAsset is produced outside the graph and is never materialized by a job.
type SourceAsset struct {
	Key        AssetKey
	Partitions partitions.Definition
}

var _ Node = (*SourceAsset)(nil)

func (s *SourceAsset) NodeName() string                     { return s.Key.String() }
func (s *SourceAsset) PartitionsDef() partitions.Definition { return s.Partitions }
func (s *SourceAsset) AssetKeys() []AssetKey                { return []AssetKey{s.Key} }

func (s *SourceAsset) PartitionMappingFor(AssetKey) (mapping.PartitionMapping, bool) {
	return nil, false
}
