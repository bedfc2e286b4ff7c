package mapping

import (
	"fmt"
	"time"

	"github.com/animus-labs/animus-assets/internal/partitions"
)

// TimeWindowMapping aligns two time-window definitions by the instants their
// keys denote. Fan-out and fan-in are not inverses: one daily key reads 24
// hourly keys, while each of those hourly keys feeds the single daily key.
type TimeWindowMapping struct{}

func (TimeWindowMapping) String() string { return "time_window" }

func (TimeWindowMapping) ValidateEdge(downstream, upstream partitions.Definition) error {
	_, _, err := timeWindowed(downstream, upstream)
	return err
}

// UpstreamForDownstreamRange returns the upstream windows that lie inside the
// downstream span: the first one starting at or after the span start through
// the last one ending at or before the span end.
func (TimeWindowMapping) UpstreamForDownstreamRange(downstream, upstream partitions.Definition, r partitions.KeyRange) (Subset, error) {
	d, u, err := timeWindowed(downstream, upstream)
	if err != nil {
		return Subset{}, err
	}
	if err := compatible(d, u); err != nil {
		return Subset{}, err
	}
	start, end, err := r.Indexes(d)
	if err != nil {
		return Subset{}, err
	}
	spanStart := d.WindowAt(start).Start
	spanEnd := d.WindowAt(end).End

	first := u.WindowIndex(spanStart)
	if u.WindowAt(first).Start.Before(spanStart) {
		first++
	}
	last := u.WindowIndex(spanEnd) - 1
	return clampedRange(u, first, last)
}

// DownstreamForUpstreamRange returns the downstream windows containing the
// first and last instants of the upstream span.
func (TimeWindowMapping) DownstreamForUpstreamRange(downstream, upstream partitions.Definition, r partitions.KeyRange) (Subset, error) {
	d, u, err := timeWindowed(downstream, upstream)
	if err != nil {
		return Subset{}, err
	}
	if err := compatible(d, u); err != nil {
		return Subset{}, err
	}
	start, end, err := r.Indexes(u)
	if err != nil {
		return Subset{}, err
	}
	first := d.WindowIndex(u.WindowAt(start).Start)
	last := d.WindowIndex(u.WindowAt(end).End.Add(-time.Nanosecond))
	return clampedRange(d, first, last)
}

func timeWindowed(downstream, upstream partitions.Definition) (partitions.TimeWindowed, partitions.TimeWindowed, error) {
	d, dOK := partitions.AsTimeWindowed(downstream)
	u, uOK := partitions.AsTimeWindowed(upstream)
	if !dOK || !uOK {
		return nil, nil, fmt.Errorf("time window mapping between %v and %v requires time-window partitions on both sides: %w",
			downstream, upstream, partitions.ErrInvalidDefinition)
	}
	return d, u, nil
}

// compatible requires every downstream window boundary to be an upstream
// window boundary.
func compatible(d, u partitions.TimeWindowed) error {
	if d.Location().String() != u.Location().String() {
		return fmt.Errorf("downstream timezone %s differs from upstream timezone %s: %w",
			d.Location(), u.Location(), ErrIncompatiblePartitioning)
	}
	if !u.Cadence().Divides(d.Cadence()) {
		return fmt.Errorf("upstream cadence %s does not divide downstream cadence %s: %w",
			u.Cadence(), d.Cadence(), ErrIncompatiblePartitioning)
	}
	if !partitions.Aligned(u, d) {
		return fmt.Errorf("upstream %s windows anchored on day %d do not align with downstream %s windows anchored on day %d: %w",
			u.Cadence(), u.DayOffset(), d.Cadence(), d.DayOffset(), ErrIncompatiblePartitioning)
	}
	return nil
}

func clampedRange(def partitions.TimeWindowed, first, last int) (Subset, error) {
	if first < 0 {
		first = 0
	}
	if lastMember, _ := def.LastIndex(); last > lastMember {
		last = lastMember
	}
	if first > last {
		return None(), nil
	}
	r, err := partitions.RangeFromIndexes(def, first, last)
	if err != nil {
		return Subset{}, err
	}
	return RangeSubset(r), nil
}
