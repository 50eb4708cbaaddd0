package core

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/willibrandon/gorestore/version"
)

// ManifestFileName is the manifest stored under each package version folder.
const ManifestFileName = "manifest.json"

// manifestFile is the on-disk manifest of a local feed.
type manifestFile struct {
	ID               string            `json:"id"`
	Version          string            `json:"version"`
	Dependencies     []Dependency      `json:"dependencies,omitempty"`
	DependencyGroups []DependencyGroup `json:"dependencyGroups,omitempty"`
}

// LocalRepository reads a folder feed laid out as
// <root>/<lowercase id>/<normalized version>/manifest.json.
type LocalRepository struct {
	source PackageSource
	root   string
}

// NewLocalRepository creates a repository over a directory or file:// source.
func NewLocalRepository(source PackageSource) *LocalRepository {
	return &LocalRepository{source: source, root: LocalPath(source)}
}

// LocalPath returns the directory a local source points at, or "" when the
// source is not local.
func LocalPath(source PackageSource) string {
	loc := strings.TrimSpace(source.Location)
	if after, ok := strings.CutPrefix(loc, "file://"); ok {
		return filepath.FromSlash(after)
	}
	if strings.Contains(loc, "://") {
		return ""
	}
	return loc
}

// Source implements SourceRepository.
func (r *LocalRepository) Source() PackageSource {
	return r.source
}

// Root returns the feed directory.
func (r *LocalRepository) Root() string {
	return r.root
}

// ListVersions implements SourceRepository by scanning version folders that
// contain a manifest. Folders that are not versions are ignored.
func (r *LocalRepository) ListVersions(ctx context.Context, id string) ([]*version.NuGetVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idDir := filepath.Join(r.root, strings.ToLower(id))
	entries, err := os.ReadDir(idDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read package folder %s: %w", idDir, err)
	}

	var versions []*version.NuGetVersion
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		v, err := version.Parse(entry.Name())
		if err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(idDir, entry.Name(), ManifestFileName)); err != nil {
			continue
		}
		versions = append(versions, v)
	}

	return version.Dedupe(versions), nil
}

// GetManifest implements SourceRepository.
func (r *LocalRepository) GetManifest(ctx context.Context, id string, v *version.NuGetVersion) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := r.manifestPath(id, v)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s %s in %s: %w", id, v.ToNormalizedString(), r.source, ErrPackageNotFound)
		}
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	m := &Manifest{
		ID:           mf.ID,
		Version:      v,
		Dependencies: mf.Dependencies,
		Groups:       mf.DependencyGroups,
		ContentHash:  contentHash(data),
	}
	if m.ID == "" {
		m.ID = id
	}
	return m, nil
}

// AddPackage writes a package with an untargeted dependency list.
func (r *LocalRepository) AddPackage(id, ver string, deps ...Dependency) error {
	return r.write(manifestFile{ID: id, Version: ver, Dependencies: deps})
}

// AddPackageWithGroups writes a package with per-target dependency groups.
func (r *LocalRepository) AddPackageWithGroups(id, ver string, groups ...DependencyGroup) error {
	return r.write(manifestFile{ID: id, Version: ver, DependencyGroups: groups})
}

func (r *LocalRepository) write(mf manifestFile) error {
	v, err := version.Parse(mf.Version)
	if err != nil {
		return fmt.Errorf("add package %s: %w", mf.ID, err)
	}
	mf.Version = v.ToNormalizedString()

	data, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	path := r.manifestPath(mf.ID, v)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create package folder: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func (r *LocalRepository) manifestPath(id string, v *version.NuGetVersion) string {
	return filepath.Join(r.root, strings.ToLower(id), strings.ToLower(v.ToNormalizedString()), ManifestFileName)
}

func contentHash(data []byte) string {
	sum := sha512.Sum512(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}
