package partitions

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
)

// TimeWindow is the [Start, End) interval a time-window partition key denotes.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w TimeWindow) Equal(other TimeWindow) bool {
	return w.Start.Equal(other.Start) && w.End.Equal(other.End)
}

func (w TimeWindow) String() string {
	return "[" + w.Start.Format(time.RFC3339) + ", " + w.End.Format(time.RFC3339) + ")"
}

// TimeWindowConfig holds the construction parameters of a TimeWindowDefinition.
type TimeWindowConfig struct {
	Cadence Cadence
	// Start is snapped forward to the first cadence boundary at or after it.
	Start time.Time
	// End is exclusive: windows starting at or after End are not members. Zero means unbounded.
	End      time.Time
	Location *time.Location
	Format   string
	// DayOffset is the weekday (0 = Sunday) for weekly cadence and the day of
	// month (1-28, default 1) for monthly cadence. Unused otherwise.
	DayOffset int
}

// Keys carry four-digit years, so no window may start in or after year 10000.
const horizonYear = 10000

// TimeWindowDefinition generates keys at a fixed cadence from an anchor.
type TimeWindowDefinition struct {
	cadence   Cadence
	start     time.Time
	end       time.Time
	loc       *time.Location
	format    string
	dayOffset int
	// maxIndex is the last ordinal whose window starts before the horizon.
	maxIndex int
}

var _ TimeWindowed = (*TimeWindowDefinition)(nil)

func NewTimeWindow(cfg TimeWindowConfig) (*TimeWindowDefinition, error) {
	if err := cfg.Cadence.Validate(); err != nil {
		return nil, err
	}
	if cfg.Start.IsZero() {
		return nil, fmt.Errorf("time window partitions require a start: %w", ErrInvalidDefinition)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	format := strings.TrimSpace(cfg.Format)
	if format == "" {
		format = cfg.Cadence.defaultFormat()
	}

	dayOffset := cfg.DayOffset
	switch cfg.Cadence {
	case CadenceWeekly:
		if dayOffset < 0 || dayOffset > 6 {
			return nil, fmt.Errorf("weekly day offset %d must be within 0-6: %w", dayOffset, ErrInvalidDefinition)
		}
	case CadenceMonthly:
		if dayOffset == 0 {
			dayOffset = 1
		}
		if dayOffset < 1 || dayOffset > 28 {
			return nil, fmt.Errorf("monthly day offset %d must be within 1-28: %w", dayOffset, ErrInvalidDefinition)
		}
	default:
		if dayOffset != 0 {
			return nil, fmt.Errorf("day offset is not supported for %s partitions: %w", cfg.Cadence, ErrInvalidDefinition)
		}
	}

	d := &TimeWindowDefinition{
		cadence:   cfg.Cadence,
		loc:       loc,
		format:    format,
		dayOffset: dayOffset,
	}
	d.start = d.snap(cfg.Start.In(loc))
	horizon := d.horizon()
	if !d.start.Before(horizon) {
		return nil, fmt.Errorf("first partition start %s is past year %d: %w",
			d.start.Format(time.RFC3339), horizonYear-1, ErrInvalidDefinition)
	}
	d.maxIndex = d.WindowIndex(horizon.Add(-time.Nanosecond))
	if !cfg.End.IsZero() {
		end := cfg.End.In(loc)
		if !end.After(d.start) {
			return nil, fmt.Errorf("end %s must be after first partition start %s: %w",
				end.Format(time.RFC3339), d.start.Format(time.RFC3339), ErrInvalidDefinition)
		}
		d.end = end
	}
	if d.keyFor(0) == d.keyFor(1) {
		return nil, fmt.Errorf("format %q does not distinguish %s partitions: %w", format, cfg.Cadence, ErrInvalidDefinition)
	}
	return d, nil
}

// NewHourly builds hourly partitions in UTC starting at a "2006-01-02-15:04" anchor.
func NewHourly(start string) (*TimeWindowDefinition, error) {
	return newFromString(CadenceHourly, start)
}

// NewDaily builds daily partitions in UTC starting at a "2006-01-02" anchor.
func NewDaily(start string) (*TimeWindowDefinition, error) {
	return newFromString(CadenceDaily, start)
}

// NewWeekly builds weekly partitions in UTC, weeks starting on Sunday.
func NewWeekly(start string) (*TimeWindowDefinition, error) {
	return newFromString(CadenceWeekly, start)
}

// NewMonthly builds monthly partitions in UTC, months starting on the first.
func NewMonthly(start string) (*TimeWindowDefinition, error) {
	return newFromString(CadenceMonthly, start)
}

func newFromString(cadence Cadence, start string) (*TimeWindowDefinition, error) {
	t, err := ParseTime(start, time.UTC)
	if err != nil {
		return nil, err
	}
	return NewTimeWindow(TimeWindowConfig{Cadence: cadence, Start: t})
}

var timeLayouts = []string{
	time.RFC3339,
	hourlyFormat,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	defaultFormat,
}

// ParseTime parses anchors written as partition keys or RFC 3339 timestamps.
func ParseTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q: %w", raw, ErrInvalidDefinition)
}

func (d *TimeWindowDefinition) Cadence() Cadence         { return d.cadence }
func (d *TimeWindowDefinition) Location() *time.Location { return d.loc }
func (d *TimeWindowDefinition) Start() time.Time         { return d.start }
func (d *TimeWindowDefinition) End() time.Time           { return d.end }
func (d *TimeWindowDefinition) Format() string           { return d.format }
func (d *TimeWindowDefinition) DayOffset() int           { return d.dayOffset }

func (d *TimeWindowDefinition) KeyAtIndex(i int) (string, error) {
	if !d.member(i) {
		return "", fmt.Errorf("index %d of %s: %w", i, d, ErrKeyNotFound)
	}
	return d.keyFor(i), nil
}

func (d *TimeWindowDefinition) IndexOf(key string) (int, error) {
	t, err := time.ParseInLocation(d.format, key, d.loc)
	if err != nil {
		return 0, fmt.Errorf("key %q in %s: %w", key, d, errors.Join(ErrKeyNotFound, err))
	}
	i := d.WindowIndex(t)
	if !d.member(i) || d.keyFor(i) != key {
		return 0, fmt.Errorf("key %q in %s: %w", key, d, ErrKeyNotFound)
	}
	return i, nil
}

func (d *TimeWindowDefinition) KeysAsOf(asOf time.Time) []string {
	n := d.CountAsOf(asOf)
	if n == 0 {
		return nil
	}
	keys := make([]string, 0, n)
	for key := range d.KeysBetween(0, n-1) {
		keys = append(keys, key)
	}
	return keys
}

// CountAsOf counts the member windows that have closed by asOf.
func (d *TimeWindowDefinition) CountAsOf(asOf time.Time) int {
	// Window k contains asOf, so windows 0..k-1 have closed.
	k := d.WindowIndex(asOf)
	last, _ := d.lastMember()
	return max(0, min(k, last+1))
}

func (d *TimeWindowDefinition) KeysBetween(from, to int) iter.Seq[string] {
	return func(yield func(string) bool) {
		if from < 0 {
			return
		}
		for i := from; i <= to && d.member(i); i++ {
			if !yield(d.keyFor(i)) {
				return
			}
		}
	}
}

func (d *TimeWindowDefinition) TimeWindowForKey(key string) (TimeWindow, error) {
	i, err := d.IndexOf(key)
	if err != nil {
		return TimeWindow{}, err
	}
	return d.WindowAt(i), nil
}

func (d *TimeWindowDefinition) Equal(other Definition) bool {
	o, ok := other.(*TimeWindowDefinition)
	if !ok || o == nil {
		return false
	}
	return d.cadence == o.cadence &&
		d.start.Equal(o.start) &&
		d.end.Equal(o.end) &&
		d.loc.String() == o.loc.String() &&
		d.format == o.format &&
		d.dayOffset == o.dayOffset
}

func (d *TimeWindowDefinition) String() string {
	s := fmt.Sprintf("%s from %s", d.cadence, d.start.Format(time.RFC3339))
	if !d.end.IsZero() {
		s += " until " + d.end.Format(time.RFC3339)
	}
	return s + " (" + d.loc.String() + ")"
}

// WindowIndex clamps t to years 0 through 10000, so ordinals stay within a
// few windows of the key space.
func (d *TimeWindowDefinition) WindowIndex(t time.Time) int {
	t = t.In(d.loc)
	if floor := time.Date(0, time.January, 1, 0, 0, 0, 0, d.loc); t.Before(floor) {
		t = floor
	} else if horizon := d.horizon(); t.After(horizon) {
		t = horizon
	}
	var i int
	switch d.cadence {
	case CadenceHourly:
		i = floorDiv(int(t.Unix()-d.start.Unix()), 3600)
	case CadenceDaily:
		i = civilDays(d.start, t)
	case CadenceWeekly:
		i = floorDiv(civilDays(d.start, t), 7)
	case CadenceMonthly:
		i = (t.Year()-d.start.Year())*12 + int(t.Month()-d.start.Month())
	}
	// The estimate can be off by one around DST shifts and month offsets.
	for d.boundary(i).After(t) {
		i--
	}
	for !d.boundary(i + 1).After(t) {
		i++
	}
	return i
}

func (d *TimeWindowDefinition) WindowAt(i int) TimeWindow {
	return TimeWindow{Start: d.boundary(i), End: d.boundary(i + 1)}
}

func (d *TimeWindowDefinition) LastIndex() (int, bool) {
	return d.lastMember()
}

func (d *TimeWindowDefinition) lastMember() (int, bool) {
	if d.end.IsZero() {
		return d.maxIndex, false
	}
	return min(d.WindowIndex(d.end.Add(-time.Nanosecond)), d.maxIndex), true
}

func (d *TimeWindowDefinition) member(i int) bool {
	if i < 0 || i > d.maxIndex {
		return false
	}
	return d.end.IsZero() || d.boundary(i).Before(d.end)
}

func (d *TimeWindowDefinition) horizon() time.Time {
	return time.Date(horizonYear, time.January, 1, 0, 0, 0, 0, d.loc)
}

func (d *TimeWindowDefinition) keyFor(i int) string {
	return d.boundary(i).Format(d.format)
}

func (d *TimeWindowDefinition) boundary(i int) time.Time {
	s := d.start
	switch d.cadence {
	case CadenceHourly:
		// Whole seconds: a Duration overflows past about 292 years.
		return time.Unix(s.Unix()+int64(i)*3600, 0).In(d.loc)
	case CadenceDaily:
		return time.Date(s.Year(), s.Month(), s.Day()+i, 0, 0, 0, 0, d.loc)
	case CadenceWeekly:
		return time.Date(s.Year(), s.Month(), s.Day()+7*i, 0, 0, 0, 0, d.loc)
	default:
		return time.Date(s.Year(), s.Month()+time.Month(i), d.dayOffset, 0, 0, 0, 0, d.loc)
	}
}

func (d *TimeWindowDefinition) snap(t time.Time) time.Time {
	switch d.cadence {
	case CadenceHourly:
		s := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, d.loc)
		if s.Before(t) {
			s = s.Add(time.Hour)
		}
		return s
	case CadenceDaily:
		return nextMidnight(t)
	case CadenceWeekly:
		s := nextMidnight(t)
		for s.Weekday() != time.Weekday(d.dayOffset) {
			s = time.Date(s.Year(), s.Month(), s.Day()+1, 0, 0, 0, 0, d.loc)
		}
		return s
	default:
		s := time.Date(t.Year(), t.Month(), d.dayOffset, 0, 0, 0, 0, d.loc)
		if s.Before(t) {
			s = time.Date(t.Year(), t.Month()+1, d.dayOffset, 0, 0, 0, 0, d.loc)
		}
		return s
	}
}

func nextMidnight(t time.Time) time.Time {
	s := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if s.Before(t) {
		s = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
	}
	return s
}

// civilDays counts calendar days from a's date to b's date in a's location.
func civilDays(a, b time.Time) int {
	b = b.In(a.Location())
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int((db.Unix() - da.Unix()) / 86400)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
