package partitions

import (
	"fmt"
	"iter"
	"slices"
)

// KeyRange is an inclusive [Start, End] span of keys under one definition's ordering.
// A single key is the range with Start == End.
type KeyRange struct {
	Start string
	End   string
}

// NewKeyRange validates that both endpoints belong to def and are in order.
func NewKeyRange(def Definition, start, end string) (KeyRange, error) {
	if def == nil {
		return KeyRange{}, fmt.Errorf("range [%s, %s] without partitions definition: %w", start, end, ErrInvalidRange)
	}
	startIdx, err := def.IndexOf(start)
	if err != nil {
		return KeyRange{}, fmt.Errorf("range start %q: %w: %w", start, ErrInvalidRange, err)
	}
	endIdx, err := def.IndexOf(end)
	if err != nil {
		return KeyRange{}, fmt.Errorf("range end %q: %w: %w", end, ErrInvalidRange, err)
	}
	if startIdx > endIdx {
		return KeyRange{}, fmt.Errorf("range start %q is after end %q in %s: %w", start, end, def, ErrInvalidRange)
	}
	return KeyRange{Start: start, End: end}, nil
}

// SingleKey returns the degenerate range covering key.
func SingleKey(def Definition, key string) (KeyRange, error) {
	return NewKeyRange(def, key, key)
}

// RangeFromIndexes builds a range from two member ordinals of def.
func RangeFromIndexes(def Definition, from, to int) (KeyRange, error) {
	start, err := def.KeyAtIndex(from)
	if err != nil {
		return KeyRange{}, fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}
	end, err := def.KeyAtIndex(to)
	if err != nil {
		return KeyRange{}, fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}
	return NewKeyRange(def, start, end)
}

// Indexes resolves the ordinals of the endpoints under def.
func (r KeyRange) Indexes(def Definition) (int, int, error) {
	startIdx, err := def.IndexOf(r.Start)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}
	endIdx, err := def.IndexOf(r.End)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}
	if startIdx > endIdx {
		return 0, 0, fmt.Errorf("range %s is out of order in %s: %w", r, def, ErrInvalidRange)
	}
	return startIdx, endIdx, nil
}

// Len counts the keys in the range without enumerating them.
func (r KeyRange) Len(def Definition) (int, error) {
	startIdx, endIdx, err := r.Indexes(def)
	if err != nil {
		return 0, err
	}
	return endIdx - startIdx + 1, nil
}

// Keys yields every key from Start to End inclusive, in definition order.
// The sequence is bounded by End and may be iterated more than once.
func (r KeyRange) Keys(def Definition) (iter.Seq[string], error) {
	startIdx, endIdx, err := r.Indexes(def)
	if err != nil {
		return nil, err
	}
	return def.KeysBetween(startIdx, endIdx), nil
}

// KeySlice collects Keys into a slice.
func (r KeyRange) KeySlice(def Definition) ([]string, error) {
	seq, err := r.Keys(def)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

// Contains reports whether key lies within the range under def.
func (r KeyRange) Contains(def Definition, key string) bool {
	startIdx, endIdx, err := r.Indexes(def)
	if err != nil {
		return false
	}
	idx, err := def.IndexOf(key)
	if err != nil {
		return false
	}
	return startIdx <= idx && idx <= endIdx
}

// TimeWindow returns the span from the start key's window start to the end key's window end.
func (r KeyRange) TimeWindow(def Definition) (TimeWindow, error) {
	first, err := def.TimeWindowForKey(r.Start)
	if err != nil {
		return TimeWindow{}, err
	}
	last, err := def.TimeWindowForKey(r.End)
	if err != nil {
		return TimeWindow{}, err
	}
	return TimeWindow{Start: first.Start, End: last.End}, nil
}

func (r KeyRange) IsSingleKey() bool {
	return r.Start == r.End
}

func (r KeyRange) String() string {
	return "[" + r.Start + ", " + r.End + "]"
}
