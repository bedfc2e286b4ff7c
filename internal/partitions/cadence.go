package partitions

import (
	"fmt"
	"strings"
)

// Cadence is the step between consecutive time-window partitions.
type Cadence string

const (
	CadenceHourly  Cadence = "hourly"
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

const (
	hourlyFormat  = "2006-01-02-15:04"
	defaultFormat = "2006-01-02"
)

// ParseCadence accepts a cadence name in any case.
func ParseCadence(raw string) (Cadence, error) {
	c := Cadence(strings.ToLower(strings.TrimSpace(raw)))
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

func (c Cadence) Validate() error {
	switch c {
	case CadenceHourly, CadenceDaily, CadenceWeekly, CadenceMonthly:
		return nil
	default:
		return fmt.Errorf("unknown cadence %q: %w", string(c), ErrInvalidDefinition)
	}
}

// Divides reports whether every window boundary of other is also a window
// boundary of c, given the same timezone. Weekly and monthly windows also need
// equal day offsets; see Aligned.
func (c Cadence) Divides(other Cadence) bool {
	switch c {
	case CadenceHourly:
		return other.Validate() == nil
	case CadenceDaily:
		return other == CadenceDaily || other == CadenceWeekly || other == CadenceMonthly
	case CadenceWeekly:
		return other == CadenceWeekly
	case CadenceMonthly:
		return other == CadenceMonthly
	default:
		return false
	}
}

func (c Cadence) defaultFormat() string {
	if c == CadenceHourly {
		return hourlyFormat
	}
	return defaultFormat
}

// Aligned reports whether every window boundary of coarse is a window boundary
// of fine: the timezones match, fine's cadence divides coarse's, and weekly or
// monthly windows on both sides share their day offset.
func Aligned(fine, coarse TimeWindowed) bool {
	if fine.Location().String() != coarse.Location().String() {
		return false
	}
	if !fine.Cadence().Divides(coarse.Cadence()) {
		return false
	}
	switch fine.Cadence() {
	case CadenceWeekly, CadenceMonthly:
		return fine.DayOffset() == coarse.DayOffset()
	default:
		return true
	}
}
