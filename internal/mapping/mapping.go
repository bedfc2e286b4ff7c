// Package mapping resolves partition key ranges across asset dependency edges.
//
// Every function in this package is pure: definitions and ranges are immutable
// values and no call performs I/O, so resolvers may be shared across goroutines.
package mapping

import (
	"fmt"

	"github.com/animus-labs/animus-assets/internal/partitions"
)

// PartitionMapping translates a key range on one side of a dependency edge into
// the partitions it corresponds to on the other side. Either definition may be
// nil for an unpartitioned asset.
type PartitionMapping interface {
	// UpstreamForDownstreamRange returns the upstream partitions a downstream range reads.
	UpstreamForDownstreamRange(downstream, upstream partitions.Definition, r partitions.KeyRange) (Subset, error)
	// DownstreamForUpstreamRange returns the downstream partitions an upstream range feeds.
	DownstreamForUpstreamRange(downstream, upstream partitions.Definition, r partitions.KeyRange) (Subset, error)
}

// EdgeValidator is implemented by mappings that can reject an edge when the
// graph is built, before any range is resolved.
type EdgeValidator interface {
	ValidateEdge(downstream, upstream partitions.Definition) error
}

// Default selects the mapping applied to an edge that declares none.
func Default(downstream, upstream partitions.Definition) (PartitionMapping, error) {
	switch {
	case downstream == nil || upstream == nil:
		return AllPartitionsMapping{}, nil
	case downstream.Equal(upstream):
		return IdentityMapping{}, nil
	}
	_, dOK := partitions.AsTimeWindowed(downstream)
	_, uOK := partitions.AsTimeWindowed(upstream)
	if dOK && uOK {
		return TimeWindowMapping{}, nil
	}
	return nil, fmt.Errorf("downstream partitions %s and upstream partitions %s differ and no partition mapping is declared: %w",
		downstream, upstream, partitions.ErrInvalidDefinition)
}

// Resolve returns m, or the default mapping for the edge when m is nil.
func Resolve(m PartitionMapping, downstream, upstream partitions.Definition) (PartitionMapping, error) {
	if m != nil {
		return m, nil
	}
	return Default(downstream, upstream)
}

// ValidateEdge runs the edge check of m when it has one.
func ValidateEdge(m PartitionMapping, downstream, upstream partitions.Definition) error {
	v, ok := m.(EdgeValidator)
	if !ok {
		return nil
	}
	return v.ValidateEdge(downstream, upstream)
}

// Name returns a short identifier for a mapping, used in listings and logs.
func Name(m PartitionMapping) string {
	if m == nil {
		return "default"
	}
	if s, ok := m.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", m)
}

// IdentityMapping maps a range to the same keys on the other side.
type IdentityMapping struct{}

func (IdentityMapping) UpstreamForDownstreamRange(downstream, upstream partitions.Definition, r partitions.KeyRange) (Subset, error) {
	return identity(downstream, upstream, r)
}

func (IdentityMapping) DownstreamForUpstreamRange(downstream, upstream partitions.Definition, r partitions.KeyRange) (Subset, error) {
	return identity(upstream, downstream, r)
}

func (IdentityMapping) ValidateEdge(downstream, upstream partitions.Definition) error {
	if downstream == nil || upstream == nil {
		return fmt.Errorf("identity mapping requires both assets to be partitioned: %w", partitions.ErrInvalidDefinition)
	}
	return nil
}

func (IdentityMapping) String() string { return "identity" }

func identity(from, to partitions.Definition, r partitions.KeyRange) (Subset, error) {
	if from == nil || to == nil {
		return Subset{}, fmt.Errorf("identity mapping across an unpartitioned asset: %w", partitions.ErrInvalidDefinition)
	}
	if _, _, err := r.Indexes(from); err != nil {
		return Subset{}, err
	}
	if from.Equal(to) {
		return RangeSubset(r), nil
	}
	// Distinct definitions that share the keys still map one to one.
	out, err := partitions.NewKeyRange(to, r.Start, r.End)
	if err != nil {
		return Subset{}, err
	}
	return RangeSubset(out), nil
}

// AllPartitionsMapping makes every partition on one side depend on the whole
// other side.
type AllPartitionsMapping struct{}

func (AllPartitionsMapping) UpstreamForDownstreamRange(downstream, upstream partitions.Definition, r partitions.KeyRange) (Subset, error) {
	if downstream == nil && upstream == nil {
		return Unpartitioned(), nil
	}
	if downstream != nil {
		if _, _, err := r.Indexes(downstream); err != nil {
			return Subset{}, err
		}
	}
	return All(), nil
}

func (AllPartitionsMapping) DownstreamForUpstreamRange(downstream, upstream partitions.Definition, r partitions.KeyRange) (Subset, error) {
	if downstream == nil {
		return Unpartitioned(), nil
	}
	if upstream != nil {
		if _, _, err := r.Indexes(upstream); err != nil {
			return Subset{}, err
		}
	}
	return All(), nil
}

func (AllPartitionsMapping) String() string { return "all" }
