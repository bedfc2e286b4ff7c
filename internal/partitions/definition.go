// Package partitions models ordered partition key spaces and contiguous ranges over them.
package partitions

import (
	"iter"
	"time"
)

// Definition is a totally ordered, addressable set of partition keys.
//
// Implementations are immutable and safe for concurrent use.
type Definition interface {
	KeyAtIndex(i int) (string, error)
	IndexOf(key string) (int, error)
	// KeysAsOf enumerates keys in order. Definitions that generate keys over time
	// stop at the last partition whose window has closed by asOf.
	KeysAsOf(asOf time.Time) []string
	// CountAsOf is len(KeysAsOf(asOf)) without building the keys.
	CountAsOf(asOf time.Time) int
	// KeysBetween yields the keys with ordinals from..to inclusive, stopping early
	// at the first ordinal that is not a member.
	KeysBetween(from, to int) iter.Seq[string]
	TimeWindowForKey(key string) (TimeWindow, error)
	Equal(other Definition) bool
	String() string
}

// TimeWindowed is implemented by definitions whose keys denote time windows.
type TimeWindowed interface {
	Definition
	Cadence() Cadence
	Location() *time.Location
	// DayOffset anchors weekly (weekday) and monthly (day of month) windows.
	DayOffset() int
	// WindowIndex returns the ordinal of the window containing t. The ordinal may
	// fall outside the definition (negative, or past its end).
	WindowIndex(t time.Time) int
	// WindowAt returns the window for an ordinal without membership checks.
	WindowAt(i int) TimeWindow
	// LastIndex returns the last member ordinal. Without an end that is the last
	// window before the year 10000 horizon, and ok is false.
	LastIndex() (int, bool)
}

// Equal reports whether two optional definitions are the same definition.
// Two nil definitions are equal; nil never equals a non-nil definition.
func Equal(a, b Definition) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

// AsTimeWindowed returns the time-window capability of def, if any.
func AsTimeWindowed(def Definition) (TimeWindowed, bool) {
	if def == nil {
		return nil, false
	}
	tw, ok := def.(TimeWindowed)
	return tw, ok
}
