package assets

import (
	"fmt"
	"slices"

	"github.com/animus-labs/animus-assets/internal/mapping"
	"github.com/animus-labs/animus-assets/internal/partitions"
)

// GetUpstreamPartitionsForPartitionRange returns the partitions of upstreamKey
// that the downstream node reads when it materializes r.
func GetUpstreamPartitionsForPartitionRange(downstream, upstream Node, upstreamKey AssetKey, r partitions.KeyRange) (mapping.Subset, error) {
	m, err := edgeMapping(downstream, upstream, upstreamKey)
	if err != nil {
		return mapping.Subset{}, err
	}
	return m.UpstreamForDownstreamRange(downstream.PartitionsDef(), upstream.PartitionsDef(), r)
}

// GetDownstreamPartitionsForPartitionRange returns the downstream partitions fed
// by r, a range of upstreamKey.
func GetDownstreamPartitionsForPartitionRange(downstream, upstream Node, upstreamKey AssetKey, r partitions.KeyRange) (mapping.Subset, error) {
	m, err := edgeMapping(downstream, upstream, upstreamKey)
	if err != nil {
		return mapping.Subset{}, err
	}
	return m.DownstreamForUpstreamRange(downstream.PartitionsDef(), upstream.PartitionsDef(), r)
}

func edgeMapping(downstream, upstream Node, upstreamKey AssetKey) (mapping.PartitionMapping, error) {
	if downstream == nil || upstream == nil {
		return nil, fmt.Errorf("dependency on %s requires both nodes: %w", upstreamKey, ErrUnknownAsset)
	}
	if !slices.Contains(upstream.AssetKeys(), upstreamKey) {
		return nil, fmt.Errorf("%s does not produce %s: %w", upstream.NodeName(), upstreamKey, ErrUnknownAsset)
	}
	declared, ok := downstream.PartitionMappingFor(upstreamKey)
	if !ok {
		return nil, fmt.Errorf("%s does not depend on %s: %w", downstream.NodeName(), upstreamKey, ErrNotDependency)
	}
	return mapping.Resolve(declared, downstream.PartitionsDef(), upstream.PartitionsDef())
}
