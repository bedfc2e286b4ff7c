// Package graphspec loads asset graphs and jobs from YAML documents.
package graphspec

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const SpecSchemaV1 = "animus.assets.v1"

const (
	PartitionsStatic     = "static"
	PartitionsTimeWindow = "time_window"
)

const (
	MappingIdentity   = "identity"
	MappingTimeWindow = "time_window"
	MappingAll        = "all"
)

type Spec struct {
	Schema     string                    `yaml:"schema"`
	Version    string                    `yaml:"version"`
	Partitions map[string]PartitionsSpec `yaml:"partitions,omitempty"`
	Sources    []SourceSpec              `yaml:"sources,omitempty"`
	Assets     []AssetSpec               `yaml:"assets"`
	Jobs       []JobSpec                 `yaml:"jobs,omitempty"`
}

type PartitionsSpec struct {
	Type      string   `yaml:"type"`
	Keys      []string `yaml:"keys,omitempty"`
	Cadence   string   `yaml:"cadence,omitempty"`
	Start     string   `yaml:"start,omitempty"`
	End       string   `yaml:"end,omitempty"`
	Timezone  string   `yaml:"timezone,omitempty"`
	Format    string   `yaml:"format,omitempty"`
	DayOffset int      `yaml:"day_offset,omitempty"`
}

type SourceSpec struct {
	Key        string `yaml:"key"`
	Partitions string `yaml:"partitions,omitempty"`
}

type AssetSpec struct {
	Name       string    `yaml:"name"`
	Keys       []string  `yaml:"keys,omitempty"`
	Partitions string    `yaml:"partitions,omitempty"`
	Deps       []DepSpec `yaml:"deps,omitempty"`
}

type DepSpec struct {
	Key     string `yaml:"key"`
	Mapping string `yaml:"mapping,omitempty"`
}

type JobSpec struct {
	Name       string            `yaml:"name"`
	Selection  []string          `yaml:"selection,omitempty"`
	Partitions string            `yaml:"partitions,omitempty"`
	Tags       map[string]string `yaml:"tags,omitempty"`
}

// Parse decodes and validates a graph document. Cross references between
// sections are checked by Build.
func Parse(input []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(input, &spec); err != nil {
		return Spec{}, fmt.Errorf("decode spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// ParseFile reads and parses the graph document at path.
func ParseFile(path string) (Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("read spec %s: %w", path, err)
	}
	return Parse(raw)
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Schema) != SpecSchemaV1 {
		return fmt.Errorf("spec.schema must be %q", SpecSchemaV1)
	}
	if err := checkVersion(s.Version); err != nil {
		return err
	}
	if len(s.Assets) == 0 {
		return fmt.Errorf("spec.assets must be non-empty")
	}
	for name, p := range s.Partitions {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("spec.partitions names must be non-empty")
		}
		if err := p.validate(fmt.Sprintf("spec.partitions[%s]", name)); err != nil {
			return err
		}
	}
	for i, src := range s.Sources {
		if strings.TrimSpace(src.Key) == "" {
			return fmt.Errorf("spec.sources[%d].key is required", i)
		}
	}
	for i, a := range s.Assets {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("spec.assets[%d].name is required", i)
		}
		for j, dep := range a.Deps {
			if strings.TrimSpace(dep.Key) == "" {
				return fmt.Errorf("spec.assets[%d].deps[%d].key is required", i, j)
			}
			if !isMappingAllowed(dep.Mapping) {
				return fmt.Errorf("spec.assets[%d].deps[%d].mapping unsupported: %q", i, j, dep.Mapping)
			}
		}
	}
	seen := make(map[string]struct{}, len(s.Jobs))
	for i, job := range s.Jobs {
		name := strings.TrimSpace(job.Name)
		if name == "" {
			return fmt.Errorf("spec.jobs[%d].name is required", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("spec.jobs[%d].name must be unique (duplicate %q)", i, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func (p PartitionsSpec) validate(prefix string) error {
	switch strings.ToLower(strings.TrimSpace(p.Type)) {
	case PartitionsStatic:
		if len(p.Keys) == 0 {
			return fmt.Errorf("%s.keys must be non-empty", prefix)
		}
		if p.Cadence != "" || p.Start != "" {
			return fmt.Errorf("%s: static partitions take keys only", prefix)
		}
	case PartitionsTimeWindow:
		if strings.TrimSpace(p.Cadence) == "" {
			return fmt.Errorf("%s.cadence is required", prefix)
		}
		if strings.TrimSpace(p.Start) == "" {
			return fmt.Errorf("%s.start is required", prefix)
		}
		if len(p.Keys) > 0 {
			return fmt.Errorf("%s: time window partitions do not take keys", prefix)
		}
	case "":
		return fmt.Errorf("%s.type is required", prefix)
	default:
		return fmt.Errorf("%s.type unsupported: %q", prefix, p.Type)
	}
	return nil
}

func isMappingAllowed(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", MappingIdentity, MappingTimeWindow, MappingAll:
		return true
	default:
		return false
	}
}
