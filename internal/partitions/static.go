package partitions

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"
)

// StaticDefinition is an explicit ordered list of partition keys.
type StaticDefinition struct {
	keys  []string
	index map[string]int
}

var _ Definition = (*StaticDefinition)(nil)

// NewStatic builds a static definition. Keys must be non-empty and unique.
func NewStatic(keys []string) (*StaticDefinition, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("static partitions require at least one key: %w", ErrInvalidDefinition)
	}
	index := make(map[string]int, len(keys))
	for i, key := range keys {
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("static partition key[%d] is empty: %w", i, ErrInvalidDefinition)
		}
		if _, exists := index[key]; exists {
			return nil, fmt.Errorf("duplicate static partition key %q: %w", key, ErrInvalidDefinition)
		}
		index[key] = i
	}
	return &StaticDefinition{
		keys:  slices.Clone(keys),
		index: index,
	}, nil
}

func (d *StaticDefinition) KeyAtIndex(i int) (string, error) {
	if i < 0 || i >= len(d.keys) {
		return "", fmt.Errorf("index %d of %s: %w", i, d, ErrKeyNotFound)
	}
	return d.keys[i], nil
}

func (d *StaticDefinition) IndexOf(key string) (int, error) {
	i, ok := d.index[key]
	if !ok {
		return 0, fmt.Errorf("key %q in %s: %w", key, d, ErrKeyNotFound)
	}
	return i, nil
}

// KeysAsOf returns every key; static definitions do not change over time.
func (d *StaticDefinition) KeysAsOf(time.Time) []string {
	return slices.Clone(d.keys)
}

func (d *StaticDefinition) CountAsOf(time.Time) int {
	return len(d.keys)
}

func (d *StaticDefinition) KeysBetween(from, to int) iter.Seq[string] {
	return func(yield func(string) bool) {
		if from < 0 {
			return
		}
		for i := from; i <= to && i < len(d.keys); i++ {
			if !yield(d.keys[i]) {
				return
			}
		}
	}
}

func (d *StaticDefinition) TimeWindowForKey(key string) (TimeWindow, error) {
	return TimeWindow{}, fmt.Errorf("time window for key %q of %s: %w", key, d, ErrUnsupportedOperation)
}

func (d *StaticDefinition) Equal(other Definition) bool {
	o, ok := other.(*StaticDefinition)
	if !ok || o == nil {
		return false
	}
	return slices.Equal(d.keys, o.keys)
}

func (d *StaticDefinition) String() string {
	return "static[" + strings.Join(d.keys, ",") + "]"
}

// Len returns the number of keys.
func (d *StaticDefinition) Len() int {
	return len(d.keys)
}
