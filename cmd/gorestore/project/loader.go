// Package project loads project descriptor files into restore inputs.
//
// A descriptor is a YAML (or JSON) document:
//
//	id: App
//	version: 1.0.0
//	targets: [net8.0]
//	sources:
//	  - name: local
//	    location: ../feed
//	dependencies:
//	  - id: Newtonsoft.Json
//	    version: "[13.0, )"
//	references:
//	  - path: ../Lib/Lib.project.yaml
//	lockMode: use-if-present
package project

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/willibrandon/gorestore/core"
	"github.com/willibrandon/gorestore/core/resolver"
	"github.com/willibrandon/gorestore/restore"
)

// Patterns are the file name patterns Discover looks for.
var Patterns = []string{"*.project.yaml", "*.project.yml", "*.project.json"}

type sourceDoc struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
}

type dependencyDoc struct {
	ID      string   `yaml:"id"`
	Version string   `yaml:"version"`
	Type    string   `yaml:"type"`
	Targets []string `yaml:"targets"`
	Exclude []string `yaml:"exclude"`
}

type referenceDoc struct {
	Path    string   `yaml:"path"`
	ID      string   `yaml:"id"`
	Targets []string `yaml:"targets"`
}

type descriptorDoc struct {
	ID           string          `yaml:"id"`
	Version      string          `yaml:"version"`
	Targets      []string        `yaml:"targets"`
	Sources      []sourceDoc     `yaml:"sources"`
	Dependencies []dependencyDoc `yaml:"dependencies"`
	References   []referenceDoc  `yaml:"references"`
	LockMode     string          `yaml:"lockMode"`
	LockFile     string          `yaml:"lockFile"`
	Output       string          `yaml:"output"`
	Strict       bool            `yaml:"strict"`
}

// Parse decodes one descriptor. Unknown fields are rejected. Relative source
// locations are resolved against the directory of path; references by path
// are returned unresolved with an empty ID and must be completed by the caller.
func Parse(path string, data []byte) (restore.ProjectDescriptor, []string, error) {
	var doc descriptorDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return restore.ProjectDescriptor{}, nil, fmt.Errorf("failed to parse project descriptor %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	d := restore.ProjectDescriptor{
		ID:                 doc.ID,
		Version:            doc.Version,
		Path:               path,
		TargetEnvironments: doc.Targets,
		LockPath:           doc.LockFile,
		OutputPath:         doc.Output,
		Strict:             doc.Strict,
	}

	mode, err := restore.ParseLockMode(doc.LockMode)
	if err != nil {
		return restore.ProjectDescriptor{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	d.LockMode = mode

	for _, s := range doc.Sources {
		if s.Location == "" {
			return restore.ProjectDescriptor{}, nil, fmt.Errorf("%s: source %q has no location", path, s.Name)
		}
		d.Sources = append(d.Sources, core.PackageSource{Name: s.Name, Location: resolveLocation(s.Location, dir)})
	}

	for _, dep := range doc.Dependencies {
		typ := resolver.DependencyPackage
		if dep.Type != "" {
			if typ, err = resolver.ParseDependencyType(dep.Type); err != nil {
				return restore.ProjectDescriptor{}, nil, fmt.Errorf("%s: dependency %s: %w", path, dep.ID, err)
			}
		}
		d.Dependencies = append(d.Dependencies, restore.DependencyDescriptor{
			ID:                 dep.ID,
			VersionRange:       dep.Version,
			Type:               typ,
			TargetEnvironments: dep.Targets,
			Exclude:            dep.Exclude,
		})
	}

	var refPaths []string
	for _, ref := range doc.References {
		switch {
		case ref.Path != "":
			refPaths = append(refPaths, filepath.Join(dir, ref.Path))
			d.ProjectReferences = append(d.ProjectReferences, restore.ProjectReference{TargetEnvironments: ref.Targets})
		case ref.ID != "":
			refPaths = append(refPaths, "")
			d.ProjectReferences = append(d.ProjectReferences, restore.ProjectReference{ID: ref.ID, TargetEnvironments: ref.Targets})
		default:
			return restore.ProjectDescriptor{}, nil, fmt.Errorf("%s: project reference needs a path or an id", path)
		}
	}

	return d, refPaths, nil
}

// Loader reads descriptors and the descriptors they reference by path. Each
// file is loaded once.
type Loader struct {
	byPath      map[string]int
	descriptors []restore.ProjectDescriptor
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{byPath: make(map[string]int)}
}

// Load reads the given descriptor files and, recursively, every descriptor
// referenced by path. The given files come first in the result, in order,
// followed by referenced files in discovery order.
func Load(paths ...string) ([]restore.ProjectDescriptor, error) {
	l := NewLoader()
	for _, p := range paths {
		if _, err := l.load(p); err != nil {
			return nil, err
		}
	}
	return l.Descriptors(), nil
}

// Descriptors returns the loaded descriptors.
func (l *Loader) Descriptors() []restore.ProjectDescriptor {
	return slices.Clone(l.descriptors)
}

// load returns the index of the descriptor at path. The descriptor is
// registered before its references are followed, so reference cycles
// terminate here and are reported by the resolver.
func (l *Loader) load(path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if i, ok := l.byPath[abs]; ok {
		return i, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return 0, fmt.Errorf("failed to read project descriptor: %w", err)
	}
	d, refPaths, err := Parse(abs, data)
	if err != nil {
		return 0, err
	}

	idx := len(l.descriptors)
	l.byPath[abs] = idx
	l.descriptors = append(l.descriptors, d)

	for i, ref := range refPaths {
		if ref == "" {
			continue
		}
		j, err := l.load(ref)
		if err != nil {
			return 0, fmt.Errorf("%s: reference %d: %w", abs, i+1, err)
		}
		l.descriptors[idx].ProjectReferences[i].ID = l.descriptors[j].ID
	}
	return idx, nil
}

// Discover returns the descriptor files directly inside dir, sorted by name.
func Discover(dir string) ([]string, error) {
	var found []string
	for _, pattern := range Patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		found = append(found, matches...)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no project descriptor found in %s (looked for %s)", dir, strings.Join(Patterns, ", "))
	}
	slices.Sort(found)
	return found, nil
}

func resolveLocation(location, dir string) string {
	if strings.Contains(location, "://") || filepath.IsAbs(location) {
		return location
	}
	return filepath.Join(dir, location)
}
