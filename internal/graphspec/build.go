package graphspec

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/animus-labs/animus-assets/internal/assets"
	"github.com/animus-labs/animus-assets/internal/mapping"
	"github.com/animus-labs/animus-assets/internal/partitions"
	"github.com/animus-labs/animus-assets/internal/runplan"
)

// Loaded is a built graph with its named partitions definitions and jobs.
type Loaded struct {
	Graph      *assets.Graph
	Partitions map[string]partitions.Definition
	Jobs       map[string]runplan.Job
}

// JobNames returns the job names in sorted order.
func (l *Loaded) JobNames() []string {
	names := make([]string, 0, len(l.Jobs))
	for name := range l.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs partitions definitions, the asset graph and the jobs. Graph
// errors are returned as *assets.DefinitionError.
func (s Spec) Build() (*Loaded, error) {
	loaded := &Loaded{
		Partitions: make(map[string]partitions.Definition, len(s.Partitions)),
		Jobs:       make(map[string]runplan.Job, len(s.Jobs)),
	}
	names := make([]string, 0, len(s.Partitions))
	for name := range s.Partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		def, err := s.Partitions[name].build()
		if err != nil {
			return nil, fmt.Errorf("spec.partitions[%s]: %w", name, err)
		}
		loaded.Partitions[name] = def
	}
	lookup := func(field, ref string) (partitions.Definition, error) {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return nil, nil
		}
		def, ok := loaded.Partitions[ref]
		if !ok {
			return nil, fmt.Errorf("%s references unknown partitions %q", field, ref)
		}
		return def, nil
	}

	sources := make([]*assets.SourceAsset, 0, len(s.Sources))
	for i, src := range s.Sources {
		key, err := assets.ParseAssetKey(src.Key)
		if err != nil {
			return nil, fmt.Errorf("spec.sources[%d].key: %w", i, err)
		}
		def, err := lookup(fmt.Sprintf("spec.sources[%d].partitions", i), src.Partitions)
		if err != nil {
			return nil, err
		}
		sources = append(sources, &assets.SourceAsset{Key: key, Partitions: def})
	}

	defs := make([]*assets.AssetsDefinition, 0, len(s.Assets))
	for i, a := range s.Assets {
		def, err := lookup(fmt.Sprintf("spec.assets[%d].partitions", i), a.Partitions)
		if err != nil {
			return nil, err
		}
		rawKeys := a.Keys
		if len(rawKeys) == 0 {
			rawKeys = []string{a.Name}
		}
		keys := make([]assets.AssetKey, 0, len(rawKeys))
		for j, raw := range rawKeys {
			key, err := assets.ParseAssetKey(raw)
			if err != nil {
				return nil, fmt.Errorf("spec.assets[%d].keys[%d]: %w", i, j, err)
			}
			keys = append(keys, key)
		}
		deps := make([]assets.Dependency, 0, len(a.Deps))
		for _, dep := range a.Deps {
			deps = append(deps, assets.Dependency{
				Key:     assets.AssetKey(strings.TrimSpace(dep.Key)),
				Mapping: mappingFor(dep.Mapping),
			})
		}
		defs = append(defs, &assets.AssetsDefinition{
			Name:       strings.TrimSpace(a.Name),
			Keys:       keys,
			Partitions: def,
			Deps:       deps,
		})
	}

	graph, err := assets.BuildGraph(defs, sources)
	if err != nil {
		return nil, err
	}
	loaded.Graph = graph

	for i, js := range s.Jobs {
		def, err := lookup(fmt.Sprintf("spec.jobs[%d].partitions", i), js.Partitions)
		if err != nil {
			return nil, err
		}
		job := runplan.Job{
			Name:       strings.TrimSpace(js.Name),
			Partitions: def,
			Tags:       js.Tags,
		}
		for _, raw := range js.Selection {
			job.Selection = append(job.Selection, assets.AssetKey(strings.TrimSpace(raw)))
		}
		if _, err := job.Resolve(graph); err != nil {
			return nil, fmt.Errorf("spec.jobs[%d]: %w", i, err)
		}
		loaded.Jobs[job.Name] = job
	}
	return loaded, nil
}

func (p PartitionsSpec) build() (partitions.Definition, error) {
	if strings.ToLower(strings.TrimSpace(p.Type)) == PartitionsStatic {
		return partitions.NewStatic(p.Keys)
	}
	cadence, err := partitions.ParseCadence(p.Cadence)
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if tz := strings.TrimSpace(p.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", tz, partitions.ErrInvalidDefinition)
		}
	}
	cfg := partitions.TimeWindowConfig{
		Cadence:   cadence,
		Location:  loc,
		Format:    p.Format,
		DayOffset: p.DayOffset,
	}
	if cfg.Start, err = parseBound(p.Start, p.Format, loc); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	if strings.TrimSpace(p.End) != "" {
		if cfg.End, err = parseBound(p.End, p.Format, loc); err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
	}
	return partitions.NewTimeWindow(cfg)
}

// parseBound accepts a bound written in the definition's key format, falling
// back to the common timestamp layouts.
func parseBound(raw, format string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if format = strings.TrimSpace(format); format != "" {
		if t, err := time.ParseInLocation(format, raw, loc); err == nil {
			return t, nil
		}
	}
	return partitions.ParseTime(raw, loc)
}

func mappingFor(raw string) mapping.PartitionMapping {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case MappingIdentity:
		return mapping.IdentityMapping{}
	case MappingTimeWindow:
		return mapping.TimeWindowMapping{}
	case MappingAll:
		return mapping.AllPartitionsMapping{}
	default:
		return nil
	}
}
