package runplan

import (
	"fmt"
	"strings"

	"github.com/animus-labs/animus-assets/internal/partitions"
)

// Run tags carrying the partition selection of a run.
const (
	TagPartition           = "animus/partition"
	TagPartitionRangeStart = "animus/asset_partition_range_start"
	TagPartitionRangeEnd   = "animus/asset_partition_range_end"
)

// SelectionFromTags reads the partition selection of a run. It returns nil when
// the tags select nothing. A single key and a range cannot be combined, and a
// range needs both of its tags.
func SelectionFromTags(def partitions.Definition, tags map[string]string) (*partitions.KeyRange, error) {
	key, hasKey := tagValue(tags, TagPartition)
	start, hasStart := tagValue(tags, TagPartitionRangeStart)
	end, hasEnd := tagValue(tags, TagPartitionRangeEnd)

	switch {
	case !hasKey && !hasStart && !hasEnd:
		return nil, nil
	case hasKey && (hasStart || hasEnd):
		return nil, fmt.Errorf("tag %s cannot be combined with a partition range: %w", TagPartition, ErrInvalidSelection)
	case hasStart != hasEnd:
		return nil, fmt.Errorf("tags %s and %s must be set together: %w", TagPartitionRangeStart, TagPartitionRangeEnd, ErrInvalidSelection)
	case def == nil:
		return nil, fmt.Errorf("partition tags set on an unpartitioned job: %w", ErrInvalidSelection)
	}

	if hasKey {
		start, end = key, key
	}
	r, err := partitions.NewKeyRange(def, start, end)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// TagsForRange returns the tags selecting r: the single-key tag for a
// degenerate range, the range tags otherwise.
func TagsForRange(r partitions.KeyRange) map[string]string {
	if r.IsSingleKey() {
		return map[string]string{TagPartition: r.Start}
	}
	return map[string]string{
		TagPartitionRangeStart: r.Start,
		TagPartitionRangeEnd:   r.End,
	}
}

func tagValue(tags map[string]string, name string) (string, bool) {
	value, ok := tags[name]
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
