package restore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/willibrandon/gorestore/core/resolver"
	"github.com/willibrandon/gorestore/observability"
	"github.com/willibrandon/gorestore/version"
)

// Lock file schema versions.
const (
	// LockFileVersion1 stores dependencies as "id range" strings plus file lists.
	LockFileVersion1 = 1
	// LockFileVersion2 stores a dependency map plus file lists.
	LockFileVersion2 = 2
	// CurrentLockFileVersion stores a dependency map plus a content hash.
	CurrentLockFileVersion = 3

	// LockFileName is the default lock file name next to a descriptor.
	LockFileName = "packages.lock.json"
)

// LockedLibrary is one resolved library of a lock target.
type LockedLibrary struct {
	ID      string
	Version *version.NuGetVersion
	Type    resolver.DependencyType

	// Dependencies maps dependency ids to the range they were requested with.
	Dependencies map[string]string

	// ContentHash is carried by schema 3 only.
	ContentHash string

	// Compile and Runtime are carried by schemas 1 and 2 only.
	Compile []string
	Runtime []string
}

// Key returns the persisted "id/version" key.
func (l *LockedLibrary) Key() string {
	return l.ID + "/" + l.Version.ToNormalizedString()
}

// LockTarget holds the libraries resolved for one target environment,
// sorted by lowercase id.
type LockTarget struct {
	Name      string
	Libraries []*LockedLibrary
}

// Library returns the library locked for id.
func (t *LockTarget) Library(id string) (*LockedLibrary, bool) {
	for _, l := range t.Libraries {
		if strings.EqualFold(l.ID, id) {
			return l, true
		}
	}
	return nil, false
}

// LockFile is the persisted resolution of one project.
type LockFile struct {
	Version int
	Project string

	// Targets are sorted by name.
	Targets []*LockTarget

	// Fingerprint is the content fingerprint; see ContentFingerprint.
	Fingerprint string

	// SpecFingerprint is the spec hash of the inputs that produced this file.
	SpecFingerprint string

	// StoredFingerprint is the fingerprint recorded in the parsed file when it
	// does not match the content, empty otherwise.
	StoredFingerprint string
}

// Target returns the target named name.
func (lf *LockFile) Target(name string) (*LockTarget, bool) {
	for _, t := range lf.Targets {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return nil, false
}

// ResolvedVersions returns target → lowercase id → normalized version.
func (lf *LockFile) ResolvedVersions() map[string]map[string]string {
	out := make(map[string]map[string]string, len(lf.Targets))
	for _, t := range lf.Targets {
		m := make(map[string]string, len(t.Libraries))
		for _, l := range t.Libraries {
			m[strings.ToLower(l.ID)] = l.Version.ToNormalizedString()
		}
		out[t.Name] = m
	}
	return out
}

// PinsFor returns the package versions locked for target keyed by lowercase id.
func (lf *LockFile) PinsFor(target string) map[string]*version.NuGetVersion {
	t, ok := lf.Target(target)
	if !ok {
		return nil
	}
	pins := make(map[string]*version.NuGetVersion, len(t.Libraries))
	for _, l := range t.Libraries {
		if l.Type == resolver.DependencyPackage {
			pins[strings.ToLower(l.ID)] = l.Version
		}
	}
	return pins
}

// ContentFingerprint hashes schemaVersion and, per target in sorted order,
// the sorted (lowercase id, normalized version) pairs with xxhash64.
func (lf *LockFile) ContentFingerprint(schemaVersion int) string {
	d := xxhash.New()
	_, _ = fmt.Fprintf(d, "v%d\n", schemaVersion)

	targets := slices.Clone(lf.Targets)
	slices.SortFunc(targets, func(a, b *LockTarget) int {
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	for _, t := range targets {
		pairs := make([]string, 0, len(t.Libraries))
		for _, l := range t.Libraries {
			pairs = append(pairs, strings.ToLower(l.ID)+"/"+strings.ToLower(l.Version.ToNormalizedString()))
		}
		slices.Sort(pairs)

		_, _ = d.WriteString("[" + strings.ToLower(t.Name) + "]\n")
		for _, p := range pairs {
			_, _ = d.WriteString(p + "\n")
		}
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// LockFileFromGraphs builds a current-schema lock file from resolved graphs.
func LockFileFromGraphs(project string, graphs []*resolver.ResolvedGraph, specFingerprint string) *LockFile {
	lf := &LockFile{
		Version:         CurrentLockFileVersion,
		Project:         project,
		SpecFingerprint: specFingerprint,
	}

	for _, g := range graphs {
		t := &LockTarget{Name: g.TargetEnvironment}
		for _, n := range g.Libraries() {
			lib := &LockedLibrary{
				ID:           n.Identity.ID,
				Version:      n.Identity.Version,
				Type:         n.Type,
				Dependencies: make(map[string]string, len(n.Dependencies)),
				ContentHash:  n.ContentHash,
			}
			for _, e := range n.Dependencies {
				lib.Dependencies[e.Dependency.ID] = canonicalRange(e.Dependency.VersionRange)
			}
			t.Libraries = append(t.Libraries, lib)
		}
		lf.Targets = append(lf.Targets, t)
	}
	slices.SortFunc(lf.Targets, func(a, b *LockTarget) int {
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})

	lf.Fingerprint = lf.ContentFingerprint(lf.Version)
	return lf
}

// Diff lists per-target version differences between lf and other.
func (lf *LockFile) Diff(other *LockFile) []string {
	mine, theirs := lf.ResolvedVersions(), other.ResolvedVersions()

	var targets []string
	for t := range mine {
		targets = append(targets, t)
	}
	for t := range theirs {
		if _, ok := mine[t]; !ok {
			targets = append(targets, t)
		}
	}
	slices.Sort(targets)

	var changes []string
	for _, t := range targets {
		ids := make(map[string]bool)
		for id := range mine[t] {
			ids[id] = true
		}
		for id := range theirs[t] {
			ids[id] = true
		}
		sorted := make([]string, 0, len(ids))
		for id := range ids {
			sorted = append(sorted, id)
		}
		slices.Sort(sorted)

		for _, id := range sorted {
			a, b := mine[t][id], theirs[t][id]
			switch {
			case a == b:
			case a == "":
				changes = append(changes, fmt.Sprintf("%s: %s added at %s", t, id, b))
			case b == "":
				changes = append(changes, fmt.Sprintf("%s: %s %s removed", t, id, a))
			default:
				changes = append(changes, fmt.Sprintf("%s: %s %s -> %s", t, id, a, b))
			}
		}
	}
	return changes
}

type lockFileJSON struct {
	Version         int                                   `json:"version"`
	Project         string                                `json:"project,omitempty"`
	Targets         map[string]map[string]json.RawMessage `json:"targets"`
	Fingerprint     string                                `json:"fingerprint,omitempty"`
	SpecFingerprint string                                `json:"specFingerprint,omitempty"`
}

type libraryV1 struct {
	Type         string   `json:"type"`
	Dependencies []string `json:"dependencies,omitempty"`
	Compile      []string `json:"compile,omitempty"`
	Runtime      []string `json:"runtime,omitempty"`
}

type libraryV2 struct {
	Type         string            `json:"type"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Compile      []string          `json:"compile,omitempty"`
	Runtime      []string          `json:"runtime,omitempty"`
}

type libraryV3 struct {
	Type         string            `json:"type"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	ContentHash  string            `json:"contentHash,omitempty"`
}

// MarshalJSON writes the current schema. Map keys are emitted sorted, so
// equal lock files serialize to identical bytes.
func (lf *LockFile) MarshalJSON() ([]byte, error) {
	doc := lockFileJSON{
		Version:         CurrentLockFileVersion,
		Project:         lf.Project,
		Targets:         make(map[string]map[string]json.RawMessage, len(lf.Targets)),
		Fingerprint:     lf.ContentFingerprint(CurrentLockFileVersion),
		SpecFingerprint: lf.SpecFingerprint,
	}
	for _, t := range lf.Targets {
		libs := make(map[string]json.RawMessage, len(t.Libraries))
		for _, l := range t.Libraries {
			data, err := json.Marshal(libraryV3{
				Type:         l.Type.String(),
				Dependencies: l.Dependencies,
				ContentHash:  l.ContentHash,
			})
			if err != nil {
				return nil, err
			}
			libs[l.Key()] = data
		}
		doc.Targets[t.Name] = libs
	}
	return json.Marshal(doc)
}

// ParseLockFile decodes any supported schema version.
func ParseLockFile(data []byte) (*LockFile, error) {
	var doc lockFileJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse lock file: %w", err)
	}
	if doc.Version > CurrentLockFileVersion {
		return nil, &UnsupportedLockFileVersionError{Version: doc.Version}
	}
	if doc.Version < LockFileVersion1 {
		return nil, fmt.Errorf("parse lock file: invalid schema version %d", doc.Version)
	}

	lf := &LockFile{
		Version:         doc.Version,
		Project:         doc.Project,
		SpecFingerprint: doc.SpecFingerprint,
	}

	for name, libs := range doc.Targets {
		t := &LockTarget{Name: name}
		for key, raw := range libs {
			lib, err := parseLibrary(doc.Version, key, raw)
			if err != nil {
				return nil, fmt.Errorf("parse lock file target %s: %w", name, err)
			}
			t.Libraries = append(t.Libraries, lib)
		}
		slices.SortFunc(t.Libraries, func(a, b *LockedLibrary) int {
			return cmp.Compare(strings.ToLower(a.ID), strings.ToLower(b.ID))
		})
		lf.Targets = append(lf.Targets, t)
	}
	slices.SortFunc(lf.Targets, func(a, b *LockTarget) int {
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})

	// The recorded fingerprint is never trusted over the content.
	lf.Fingerprint = lf.ContentFingerprint(lf.Version)
	if doc.Fingerprint != "" && doc.Fingerprint != lf.Fingerprint {
		lf.StoredFingerprint = doc.Fingerprint
	}
	return lf, nil
}

func parseLibrary(schema int, key string, raw json.RawMessage) (*LockedLibrary, error) {
	id, ver, ok := strings.Cut(key, "/")
	if !ok || id == "" {
		return nil, fmt.Errorf("invalid library key %q", key)
	}
	v, err := version.Parse(ver)
	if err != nil {
		return nil, fmt.Errorf("library %s: %w", key, err)
	}
	lib := &LockedLibrary{ID: id, Version: v}

	var typ string
	switch schema {
	case LockFileVersion1:
		var l libraryV1
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("library %s: %w", key, err)
		}
		typ, lib.Compile, lib.Runtime = l.Type, l.Compile, l.Runtime
		lib.Dependencies = make(map[string]string, len(l.Dependencies))
		for _, d := range l.Dependencies {
			depID, rng, _ := strings.Cut(strings.TrimSpace(d), " ")
			lib.Dependencies[depID] = strings.TrimSpace(rng)
		}
	case LockFileVersion2:
		var l libraryV2
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("library %s: %w", key, err)
		}
		typ, lib.Dependencies, lib.Compile, lib.Runtime = l.Type, l.Dependencies, l.Compile, l.Runtime
	default:
		var l libraryV3
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("library %s: %w", key, err)
		}
		typ, lib.Dependencies, lib.ContentHash = l.Type, l.Dependencies, l.ContentHash
	}

	if lib.Type, err = resolver.ParseDependencyType(typ); err != nil {
		return nil, fmt.Errorf("library %s: %w", key, err)
	}
	if lib.Dependencies == nil {
		lib.Dependencies = map[string]string{}
	}
	return lib, nil
}

// LoadLockFile reads the lock file at path. A missing file yields an error
// satisfying errors.Is(err, fs.ErrNotExist).
func LoadLockFile(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lock file: %w", err)
	}
	lf, err := ParseLockFile(data)
	if err != nil {
		if unsupported, ok := err.(*UnsupportedLockFileVersionError); ok {
			unsupported.Path = path
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lf, nil
}

// Save writes the lock file in the current schema. The file is staged next
// to path and renamed into place, so readers never see a partial write.
func (lf *LockFile) Save(ctx context.Context, path string) (err error) {
	_, span := observability.StartLockFileWriteSpan(ctx, path)
	defer func() {
		status := "written"
		if err != nil {
			status = "failure"
		}
		observability.LockFileWritesTotal.WithLabelValues(status).Inc()
		observability.EndSpanWithError(span, err)
	}()

	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock file: %w", err)
	}
	if err := writeFileAtomic(path, append(data, '\n')); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}

	lf.Version = CurrentLockFileVersion
	lf.Fingerprint = lf.ContentFingerprint(CurrentLockFileVersion)
	return nil
}

// writeFileAtomic stages data in a uniquely named sibling of path and renames
// it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
