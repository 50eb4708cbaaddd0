package restore

import (
	"os"
	"path/filepath"

	"github.com/willibrandon/gorestore/core"
	"github.com/willibrandon/gorestore/observability"
)

// Options holds restore configuration.
type Options struct {
	// PackagesFolder is where FolderInstaller installs packages when no
	// Installer is given. Empty selects DefaultPackagesFolder.
	PackagesFolder string

	// MaxParallel bounds concurrently restored projects. Values below 1
	// select runtime.GOMAXPROCS(0).
	MaxParallel int

	// ResolverParallel bounds in-flight source calls per target resolution.
	ResolverParallel int

	// FailFast cancels remaining projects once a source is unreachable.
	FailFast bool

	// Force skips no-op detection.
	Force bool

	Logger    observability.Logger
	Providers *core.ProviderCache
	Installer PackageInstaller
}

// DefaultPackagesFolder returns ~/.gorestore/packages, or a folder under the
// system temp directory when no home directory is known.
func DefaultPackagesFolder() string {
	if env := os.Getenv("GORESTORE_PACKAGES"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "gorestore", "packages")
	}
	return filepath.Join(home, ".gorestore", "packages")
}
