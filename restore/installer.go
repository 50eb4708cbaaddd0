package restore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/willibrandon/gorestore/core/resolver"
	"github.com/willibrandon/gorestore/observability"
)

// InstallMarkerName is the completion marker written inside an installed
// package folder.
const InstallMarkerName = ".restore.metadata"

// InstallRequest describes one resolved package to install.
type InstallRequest struct {
	Identity    resolver.PackageIdentity
	Source      string
	ContentHash string
}

// InstallResult reports what an install did.
type InstallResult struct {
	// Installed is true when the package was not present before.
	Installed bool

	// MarkerPath is the file whose presence proves the install completed.
	MarkerPath string
}

// PackageInstaller performs the install side effect for resolved packages.
// Implementations must be safe for concurrent use.
type PackageInstaller interface {
	Install(ctx context.Context, req InstallRequest) (InstallResult, error)
}

// FolderInstaller installs packages into a global packages folder laid out as
// <root>/<lowercase id>/<lowercase normalized version>/.
type FolderInstaller struct {
	root string
	mu   sync.Mutex
}

// NewFolderInstaller returns an installer rooted at root.
func NewFolderInstaller(root string) *FolderInstaller {
	return &FolderInstaller{root: root}
}

// Root returns the packages folder.
func (f *FolderInstaller) Root() string {
	return f.root
}

// PackagePath returns the install folder of id.
func (f *FolderInstaller) PackagePath(id resolver.PackageIdentity) string {
	return filepath.Join(f.root, strings.ToLower(id.ID), strings.ToLower(id.Version.ToNormalizedString()))
}

type installMetadata struct {
	ID          string `json:"id"`
	Version     string `json:"version"`
	Source      string `json:"source,omitempty"`
	ContentHash string `json:"contentHash,omitempty"`
}

// Install writes the completion marker for req unless it already exists.
func (f *FolderInstaller) Install(ctx context.Context, req InstallRequest) (InstallResult, error) {
	if err := ctx.Err(); err != nil {
		return InstallResult{}, err
	}

	dir := f.PackagePath(req.Identity)
	marker := filepath.Join(dir, InstallMarkerName)
	res := InstallResult{MarkerPath: marker}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(marker); err == nil {
		observability.PackageInstallsTotal.WithLabelValues("present").Inc()
		return res, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return res, fmt.Errorf("stat install marker: %w", err)
	}

	data, err := json.MarshalIndent(installMetadata{
		ID:          req.Identity.ID,
		Version:     req.Identity.Version.ToNormalizedString(),
		Source:      req.Source,
		ContentHash: req.ContentHash,
	}, "", "  ")
	if err != nil {
		return res, fmt.Errorf("marshal install marker: %w", err)
	}
	if err := writeFileAtomic(marker, data); err != nil {
		observability.PackageInstallsTotal.WithLabelValues("failure").Inc()
		return res, fmt.Errorf("install %s: %w", req.Identity, err)
	}

	observability.PackageInstallsTotal.WithLabelValues("installed").Inc()
	res.Installed = true
	return res, nil
}
