package assets

import (
	"errors"
	"strings"

	"github.com/animus-labs/animus-assets/internal/partitions"
)

var (
	// ErrInvalidDefinition is shared with the partitions package so one check covers both layers.
	ErrInvalidDefinition = partitions.ErrInvalidDefinition
	ErrUnknownAsset      = errors.New("unknown asset")
	ErrNotDependency     = errors.New("asset is not a dependency")
)

// DefinitionError aggregates asset graph validation issues.
type DefinitionError struct {
	Issues []string
}

func (e *DefinitionError) Error() string {
	if len(e.Issues) == 0 {
		return "asset graph validation failed"
	}
	return "asset graph validation failed: " + strings.Join(e.Issues, "; ")
}

func (e *DefinitionError) Unwrap() error {
	return ErrInvalidDefinition
}

func (e *DefinitionError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *DefinitionError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}
