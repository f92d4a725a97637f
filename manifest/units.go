package manifest

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Unit is a unit file resolved from the [source] patterns.
type Unit struct {
	Name string // file name without extension
	Path string // absolute path
}

// Units expands the configured patterns and returns the matching files in
// name order. A name may appear only once across all patterns.
func (m *Manifest) Units() ([]Unit, error) {
	seen := make(map[string]string)
	var units []Unit
	for _, pattern := range m.Source.Units {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(m.Dir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("manifest: bad unit pattern %q: %w", pattern, err)
		}
		for _, path := range matches {
			name := UnitName(path)
			if prev, dup := seen[name]; dup {
				if prev == path {
					continue
				}
				return nil, fmt.Errorf("manifest: unit %q defined by both %s and %s", name, prev, path)
			}
			seen[name] = path
			units = append(units, Unit{Name: name, Path: path})
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	return units, nil
}

// EntryUnit returns the unit named by source.entry, or the only unit when
// no entry is configured.
func (m *Manifest) EntryUnit() (Unit, error) {
	units, err := m.Units()
	if err != nil {
		return Unit{}, err
	}
	if m.Source.Entry == "" {
		if len(units) == 1 {
			return units[0], nil
		}
		return Unit{}, fmt.Errorf("manifest: %d units and no source.entry", len(units))
	}
	for _, u := range units {
		if u.Name == m.Source.Entry {
			return u, nil
		}
	}
	return Unit{}, fmt.Errorf("manifest: entry unit %q not found", m.Source.Entry)
}

// UnitName derives a unit name from its path: "units/Wide-Class.toml" ->
// "wide-class".
func UnitName(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}
