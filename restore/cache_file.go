package restore

import (
	"encoding/json"
	"fmt"
	"os"
)

// CacheFile is the no-op marker a restore leaves in a project's output
// directory.
type CacheFile struct {
	// Version is the marker format version.
	Version int `json:"version"`

	// SpecHash is the spec hash of the restore that wrote the marker.
	SpecHash string `json:"specHash"`

	// Success indicates whether that restore succeeded.
	Success bool `json:"success"`

	// DescriptorPath is the absolute path of the project descriptor.
	DescriptorPath string `json:"descriptorPath"`

	// LockFingerprint is the content fingerprint of the lock file the restore
	// left behind.
	LockFingerprint string `json:"lockFingerprint,omitempty"`

	// ExpectedPackageFiles lists install markers that must still exist.
	ExpectedPackageFiles []string `json:"expectedPackageFiles"`

	// Logs holds the diagnostics of that restore for replay on a no-op.
	Logs []LogMessage `json:"logs"`
}

// LogMessage is a diagnostic persisted in a CacheFile.
type LogMessage struct {
	Level             string   `json:"level"`
	Code              string   `json:"code,omitempty"`
	Kind              string   `json:"kind,omitempty"`
	Message           string   `json:"message"`
	LibraryIDs        []string `json:"libraryIds,omitempty"`
	TargetEnvironment string   `json:"targetEnvironment,omitempty"`
}

const (
	// CacheFileVersion is the current marker format version.
	CacheFileVersion = 1

	// CacheFileName is the marker file name inside a project's output directory.
	CacheFileName = "project.restore.cache"
)

// NewCacheFile creates an unsuccessful marker for specHash.
func NewCacheFile(specHash string) *CacheFile {
	return &CacheFile{
		Version:              CacheFileVersion,
		SpecHash:             specHash,
		ExpectedPackageFiles: []string{},
		Logs:                 []LogMessage{},
	}
}

// IsValid reports whether the marker was written by a successful restore in
// the current format.
func (c *CacheFile) IsValid() bool {
	return c.Version == CacheFileVersion && c.Success && c.SpecHash != ""
}

// AddDiagnostics appends diagnostics to the marker's replay log.
func (c *CacheFile) AddDiagnostics(diags []*NuGetError) {
	for _, d := range diags {
		c.Logs = append(c.Logs, LogMessage{
			Level:             d.Level,
			Code:              d.Code,
			Kind:              string(d.Kind),
			Message:           d.Message,
			LibraryIDs:        d.LibraryIDs,
			TargetEnvironment: d.TargetEnvironment,
		})
	}
}

// Diagnostics converts the replay log back into diagnostics for projectPath.
func (c *CacheFile) Diagnostics(projectPath string) []*NuGetError {
	out := make([]*NuGetError, 0, len(c.Logs))
	for _, l := range c.Logs {
		out = append(out, &NuGetError{
			Code:              l.Code,
			Level:             l.Level,
			Kind:              ErrorKind(l.Kind),
			Message:           l.Message,
			ProjectPath:       projectPath,
			LibraryIDs:        l.LibraryIDs,
			TargetEnvironment: l.TargetEnvironment,
		})
	}
	return out
}

// Save writes the marker to path.
func (c *CacheFile) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache file: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	return nil
}

// LoadCacheFile reads the marker at path. A missing or corrupt marker is
// returned as an invalid one.
func LoadCacheFile(path string) (*CacheFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewCacheFile(""), nil
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	var cache CacheFile
	if err := json.Unmarshal(data, &cache); err != nil {
		return NewCacheFile(""), nil
	}
	return &cache, nil
}

// VerifyPackageFilesExist reports whether every expected install marker exists.
func (c *CacheFile) VerifyPackageFilesExist() bool {
	for _, p := range c.ExpectedPackageFiles {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
