package graphspec

import (
	"fmt"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// SupportedVersions is the range of document versions this loader reads.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

var supportedConstraint = mustConstraint(SupportedVersions)

func checkVersion(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("spec.version is required")
	}
	v, err := mm.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("spec.version: parse %q: %w", raw, err)
	}
	if !supportedConstraint.Check(v) {
		return fmt.Errorf("spec.version %s is not supported (want %s)", v, SupportedVersions)
	}
	return nil
}

func mustConstraint(raw string) *mm.Constraints {
	c, err := mm.NewConstraint(raw)
	if err != nil {
		panic(err)
	}
	return c
}
