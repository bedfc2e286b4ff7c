package mapping

import (
	"fmt"
	"strings"

	"github.com/animus-labs/animus-assets/internal/partitions"
)

// SubsetKind classifies the result of resolving a range across a dependency edge.
type SubsetKind int

const (
	// SubsetUnpartitioned means no partition concept propagates across the edge.
	SubsetUnpartitioned SubsetKind = iota
	// SubsetAll is the whole asset, unconditioned by the requested range.
	SubsetAll
	// SubsetRange is a contiguous key range on the other side of the edge.
	SubsetRange
	// SubsetNone means the requested span has no counterpart on the other side.
	SubsetNone
)

func (k SubsetKind) String() string {
	switch k {
	case SubsetUnpartitioned:
		return "unpartitioned"
	case SubsetAll:
		return "all"
	case SubsetRange:
		return "range"
	case SubsetNone:
		return "none"
	default:
		return fmt.Sprintf("SubsetKind(%d)", int(k))
	}
}

// ParseSubsetKind is the inverse of SubsetKind.String.
func ParseSubsetKind(raw string) (SubsetKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "unpartitioned":
		return SubsetUnpartitioned, nil
	case "all":
		return SubsetAll, nil
	case "range":
		return SubsetRange, nil
	case "none":
		return SubsetNone, nil
	default:
		return 0, fmt.Errorf("unknown subset kind %q", raw)
	}
}

func (k SubsetKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *SubsetKind) UnmarshalText(text []byte) error {
	parsed, err := ParseSubsetKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Subset is the set of partitions one side of an edge needs from the other.
// Range is only meaningful when Kind is SubsetRange.
type Subset struct {
	Kind  SubsetKind
	Range partitions.KeyRange
}

func All() Subset           { return Subset{Kind: SubsetAll} }
func None() Subset          { return Subset{Kind: SubsetNone} }
func Unpartitioned() Subset { return Subset{Kind: SubsetUnpartitioned} }

func RangeSubset(r partitions.KeyRange) Subset {
	return Subset{Kind: SubsetRange, Range: r}
}

func (s Subset) IsRange() bool { return s.Kind == SubsetRange }

func (s Subset) String() string {
	if s.Kind == SubsetRange {
		return s.Range.String()
	}
	return s.Kind.String()
}
