package restore

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/willibrandon/gorestore/core"
	"github.com/willibrandon/gorestore/core/resolver"
	"github.com/willibrandon/gorestore/version"
)

// LockMode controls how an existing lock file participates in a restore.
type LockMode int

const (
	// LockModeNone ignores any existing lock file and always writes a new one.
	LockModeNone LockMode = iota
	// LockModeUseIfPresent prefers versions pinned by an existing lock file.
	LockModeUseIfPresent
	// LockModeLocked requires the resolution to match the existing lock file.
	LockModeLocked
)

func (m LockMode) String() string {
	switch m {
	case LockModeUseIfPresent:
		return "use-if-present"
	case LockModeLocked:
		return "locked"
	default:
		return "none"
	}
}

// ParseLockMode parses the form produced by String. An empty string is LockModeNone.
func ParseLockMode(s string) (LockMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return LockModeNone, nil
	case "use-if-present", "useifpresent":
		return LockModeUseIfPresent, nil
	case "locked":
		return LockModeLocked, nil
	default:
		return LockModeNone, fmt.Errorf("unknown lock mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m LockMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *LockMode) UnmarshalText(b []byte) error {
	v, err := ParseLockMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ProjectDescriptor is what a project system hands to the restore core.
type ProjectDescriptor struct {
	ID      string
	Version string

	// Path is the descriptor file. Relative lock and output paths are
	// resolved against its directory.
	Path string

	TargetEnvironments []string
	Dependencies       []DependencyDescriptor
	ProjectReferences  []ProjectReference
	Sources            []core.PackageSource

	LockMode   LockMode
	LockPath   string
	OutputPath string
	Strict     bool
}

// DependencyDescriptor declares a package or framework reference.
type DependencyDescriptor struct {
	ID           string
	VersionRange string

	// Type is DependencyPackage or DependencyFrameworkReference.
	Type resolver.DependencyType

	// TargetEnvironments limits the dependency to these targets; empty means all.
	TargetEnvironments []string

	Exclude []string
}

// ProjectReference declares a dependency on another project in the same restore.
type ProjectReference struct {
	ID                 string
	TargetEnvironments []string
}

// ProjectRestoreSpec is the validated, immutable restore input of one project.
type ProjectRestoreSpec struct {
	ID             string
	Version        *version.NuGetVersion
	DescriptorPath string

	TargetEnvironments []string
	Sources            []core.PackageSource

	LockMode   LockMode
	LockPath   string
	OutputPath string
	Strict     bool

	dependencies map[string][]resolver.LibraryDependency
	references   []string
}

// DependenciesFor returns a copy of the direct dependencies declared for target.
func (p *ProjectRestoreSpec) DependenciesFor(target string) []resolver.LibraryDependency {
	deps := p.dependencies[strings.ToLower(target)]
	out := make([]resolver.LibraryDependency, len(deps))
	for i, d := range deps {
		d.Exclude = slices.Clone(d.Exclude)
		out[i] = d
	}
	return out
}

// References returns the ids of directly referenced projects in declaration order.
func (p *ProjectRestoreSpec) References() []string {
	return slices.Clone(p.references)
}

// HasPackageDependencies reports whether any target declares a package dependency.
func (p *ProjectRestoreSpec) HasPackageDependencies() bool {
	for _, deps := range p.dependencies {
		for _, d := range deps {
			if d.Type == resolver.DependencyPackage {
				return true
			}
		}
	}
	return false
}

// CacheFilePath returns the restore-state marker path.
func (p *ProjectRestoreSpec) CacheFilePath() string {
	return filepath.Join(p.OutputPath, CacheFileName)
}

// DependencyGraphSpec is the combined restore input of every project in one
// invocation. It implements resolver.ProjectLookup.
type DependencyGraphSpec struct {
	projects []*ProjectRestoreSpec
	byID     map[string]*ProjectRestoreSpec
	settings core.Settings
}

// Projects returns the projects in input order.
func (g *DependencyGraphSpec) Projects() []*ProjectRestoreSpec {
	return slices.Clone(g.projects)
}

// Project returns the project with id.
func (g *DependencyGraphSpec) Project(id string) (*ProjectRestoreSpec, bool) {
	p, ok := g.byID[strings.ToLower(id)]
	return p, ok
}

// Settings returns the settings the spec was built with.
func (g *DependencyGraphSpec) Settings() core.Settings {
	return g.settings
}

// Closure returns the project with id followed by every project it
// references, directly or transitively, in discovery order.
func (g *DependencyGraphSpec) Closure(id string) []*ProjectRestoreSpec {
	root, ok := g.Project(id)
	if !ok {
		return nil
	}

	seen := map[string]bool{strings.ToLower(root.ID): true}
	out := []*ProjectRestoreSpec{root}
	for i := 0; i < len(out); i++ {
		for _, ref := range out[i].references {
			key := strings.ToLower(ref)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, g.byID[key])
		}
	}
	return out
}

// LookupProject implements resolver.ProjectLookup. A referenced project that
// does not declare target contributes the dependencies of its first target.
func (g *DependencyGraphSpec) LookupProject(id, target string) (resolver.ProjectInfo, bool) {
	p, ok := g.Project(id)
	if !ok {
		return resolver.ProjectInfo{}, false
	}

	t := target
	if !containsFold(p.TargetEnvironments, target) {
		t = p.TargetEnvironments[0]
	}
	return resolver.ProjectInfo{
		ID:           p.ID,
		Version:      p.Version,
		Dependencies: p.DependenciesFor(t),
	}, true
}

// SpecBuilder validates project descriptors into a DependencyGraphSpec.
type SpecBuilder struct {
	settings core.Settings
}

// NewSpecBuilder creates a builder. settings.GlobalSources serve projects
// that declare no sources.
func NewSpecBuilder(settings core.Settings) *SpecBuilder {
	return &SpecBuilder{settings: settings}
}

// Build validates descriptors and returns the combined spec.
func (b *SpecBuilder) Build(descriptors []ProjectDescriptor) (*DependencyGraphSpec, error) {
	g := &DependencyGraphSpec{
		byID:     make(map[string]*ProjectRestoreSpec, len(descriptors)),
		settings: b.settings,
	}

	for i := range descriptors {
		p, err := b.project(&descriptors[i])
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(p.ID)
		if _, dup := g.byID[key]; dup {
			return nil, &InvalidSpecError{ProjectID: p.ID, Path: p.DescriptorPath, Reason: "duplicate project id"}
		}
		g.byID[key] = p
		g.projects = append(g.projects, p)
	}

	lockOwners := make(map[string]string, len(g.projects))
	for _, p := range g.projects {
		for _, ref := range p.references {
			if _, ok := g.byID[strings.ToLower(ref)]; !ok {
				return nil, &InvalidSpecError{
					ProjectID: p.ID,
					Path:      p.DescriptorPath,
					Reason:    fmt.Sprintf("references unknown project %s", ref),
				}
			}
		}

		key := strings.ToLower(filepath.Clean(p.LockPath))
		if owner, ok := lockOwners[key]; ok {
			return nil, &InvalidSpecError{
				ProjectID: p.ID,
				Path:      p.DescriptorPath,
				Reason:    fmt.Sprintf("lock file %s is also used by project %s", p.LockPath, owner),
			}
		}
		lockOwners[key] = p.ID
	}

	return g, nil
}

func (b *SpecBuilder) project(d *ProjectDescriptor) (*ProjectRestoreSpec, error) {
	invalid := func(format string, args ...any) error {
		return &InvalidSpecError{ProjectID: d.ID, Path: d.Path, Reason: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(d.ID) == "" {
		return nil, invalid("project id is required")
	}
	if len(d.TargetEnvironments) == 0 {
		return nil, invalid("no target environments declared")
	}

	p := &ProjectRestoreSpec{
		ID:             d.ID,
		DescriptorPath: d.Path,
		LockMode:       d.LockMode,
		Strict:         d.Strict,
		dependencies:   make(map[string][]resolver.LibraryDependency, len(d.TargetEnvironments)),
	}

	p.Version = version.MustParse("1.0.0")
	if d.Version != "" {
		v, err := version.Parse(d.Version)
		if err != nil {
			return nil, invalid("invalid project version %q: %v", d.Version, err)
		}
		p.Version = v
	}

	seenTargets := make(map[string]bool, len(d.TargetEnvironments))
	for _, t := range d.TargetEnvironments {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, invalid("empty target environment")
		}
		if seenTargets[strings.ToLower(t)] {
			return nil, invalid("target environment %s declared twice", t)
		}
		seenTargets[strings.ToLower(t)] = true
		p.TargetEnvironments = append(p.TargetEnvironments, t)
	}

	targetsOf := func(what string, declared []string) ([]string, error) {
		if len(declared) == 0 {
			return p.TargetEnvironments, nil
		}
		for _, t := range declared {
			if !seenTargets[strings.ToLower(t)] {
				return nil, invalid("%s references undeclared target environment %s", what, t)
			}
		}
		return declared, nil
	}
	add := func(target string, dep resolver.LibraryDependency) {
		key := strings.ToLower(target)
		p.dependencies[key] = append(p.dependencies[key], dep)
	}

	for _, dep := range d.Dependencies {
		if strings.TrimSpace(dep.ID) == "" {
			return nil, invalid("dependency without an id")
		}
		if dep.Type == resolver.DependencyProject {
			return nil, invalid("dependency %s: project dependencies must be declared as project references", dep.ID)
		}
		if dep.Type == resolver.DependencyPackage {
			rng := dep.VersionRange
			if strings.TrimSpace(rng) == "" {
				rng = "0.0.0"
			}
			if _, err := version.ParseVersionRange(rng); err != nil {
				return nil, invalid("dependency %s: %v", dep.ID, err)
			}
		}

		targets, err := targetsOf("dependency "+dep.ID, dep.TargetEnvironments)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			add(t, resolver.LibraryDependency{
				ID:           dep.ID,
				VersionRange: strings.TrimSpace(dep.VersionRange),
				Type:         dep.Type,
				Exclude:      slices.Clone(dep.Exclude),
			})
		}
	}

	seenRefs := make(map[string]bool, len(d.ProjectReferences))
	for _, ref := range d.ProjectReferences {
		if strings.EqualFold(ref.ID, d.ID) {
			return nil, invalid("project references itself")
		}
		targets, err := targetsOf("project reference "+ref.ID, ref.TargetEnvironments)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			add(t, resolver.LibraryDependency{ID: ref.ID, Type: resolver.DependencyProject})
		}
		if key := strings.ToLower(ref.ID); !seenRefs[key] {
			seenRefs[key] = true
			p.references = append(p.references, ref.ID)
		}
	}

	p.Sources = slices.Clone(d.Sources)
	if len(p.Sources) == 0 {
		p.Sources = slices.Clone(b.settings.GlobalSources)
	}
	if len(p.Sources) == 0 && p.HasPackageDependencies() {
		return nil, invalid("no package sources declared and no global sources configured")
	}

	dir := "."
	if d.Path != "" {
		dir = filepath.Dir(d.Path)
	}
	p.LockPath = resolvePath(dir, d.LockPath, LockFileName)
	p.OutputPath = resolvePath(dir, d.OutputPath, "obj")

	return p, nil
}

func resolvePath(dir, path, fallback string) string {
	if path == "" {
		return filepath.Join(dir, fallback)
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}

func containsFold(values []string, s string) bool {
	return slices.ContainsFunc(values, func(v string) bool { return strings.EqualFold(v, s) })
}

