package restore

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/gorestore/core/resolver"
	"github.com/willibrandon/gorestore/version"
)

func testGraph(target string, libs ...string) *resolver.ResolvedGraph {
	root := &resolver.GraphNode{
		Identity: resolver.PackageIdentity{ID: "App", Version: version.MustParse("1.0.0")},
		Type:     resolver.DependencyProject,
	}
	g := &resolver.ResolvedGraph{TargetEnvironment: target, Nodes: []*resolver.GraphNode{root}}
	for i := 0; i+1 < len(libs); i += 2 {
		n := &resolver.GraphNode{
			Index:       len(g.Nodes),
			Identity:    resolver.PackageIdentity{ID: libs[i], Version: version.MustParse(libs[i+1])},
			Type:        resolver.DependencyPackage,
			Depth:       1,
			ContentHash: "hash-" + libs[i],
		}
		root.Dependencies = append(root.Dependencies, &resolver.GraphEdge{
			Dependency: resolver.LibraryDependency{ID: libs[i], VersionRange: libs[i+1]},
			Node:       n,
		})
		g.Nodes = append(g.Nodes, n)
	}
	return g
}

func TestLockFileFromGraphs(t *testing.T) {
	g := testGraph("net8.0", "B", "2.0.0", "A", "1.0")
	g.Nodes[2].Dependencies = []*resolver.GraphEdge{{
		Dependency: resolver.LibraryDependency{ID: "C", VersionRange: "1.0"},
	}}

	lf := LockFileFromGraphs("App", []*resolver.ResolvedGraph{g}, "spec")
	assert.Equal(t, CurrentLockFileVersion, lf.Version)
	assert.Equal(t, "spec", lf.SpecFingerprint)
	require.Len(t, lf.Targets, 1)

	libs := lf.Targets[0].Libraries
	require.Len(t, libs, 2)
	assert.Equal(t, "A", libs[0].ID)
	assert.Equal(t, "1.0.0", libs[0].Version.ToNormalizedString())
	assert.Equal(t, map[string]string{"C": "[1.0.0, )"}, libs[0].Dependencies)
	assert.Equal(t, "hash-A", libs[0].ContentHash)
	assert.Equal(t, "B", libs[1].ID)
	assert.Equal(t, lf.ContentFingerprint(CurrentLockFileVersion), lf.Fingerprint)
	assert.Len(t, lf.Fingerprint, 16)
}

func TestLockFile_RoundTrip(t *testing.T) {
	graphs := []*resolver.ResolvedGraph{
		testGraph("net8.0", "A", "1.0.0", "B", "2.1.0-beta.1"),
		testGraph("net6.0", "A", "1.0.0"),
	}
	lf := LockFileFromGraphs("App", graphs, "spec")
	path := filepath.Join(t.TempDir(), "nested", LockFileName)

	require.NoError(t, lf.Save(context.Background(), path))

	loaded, err := LoadLockFile(path)
	require.NoError(t, err)
	assert.Equal(t, lf.ResolvedVersions(), loaded.ResolvedVersions())
	assert.Equal(t, lf.Fingerprint, loaded.Fingerprint)
	assert.Equal(t, "spec", loaded.SpecFingerprint)
	assert.Equal(t, "App", loaded.Project)
	assert.Equal(t, map[string]map[string]string{
		"net6.0": {"a": "1.0.0"},
		"net8.0": {"a": "1.0.0", "b": "2.1.0-beta.1"},
	}, loaded.ResolvedVersions())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLockFile_SerializationIsStable(t *testing.T) {
	a := LockFileFromGraphs("App", []*resolver.ResolvedGraph{testGraph("net8.0", "A", "1.0.0", "B", "1.0.0")}, "spec")
	b := LockFileFromGraphs("App", []*resolver.ResolvedGraph{testGraph("net8.0", "B", "1.0.0", "A", "1.0.0")}, "spec")

	da, err := json.Marshal(a)
	require.NoError(t, err)
	db, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(da), string(db))
}

func TestLockFile_FingerprintIgnoresCasing(t *testing.T) {
	a := LockFileFromGraphs("App", []*resolver.ResolvedGraph{testGraph("net8.0", "Newtonsoft.Json", "13.0.3")}, "")
	b := LockFileFromGraphs("App", []*resolver.ResolvedGraph{testGraph("NET8.0", "newtonsoft.json", "13.0.3")}, "")
	assert.Equal(t, a.Fingerprint, b.Fingerprint)

	c := LockFileFromGraphs("App", []*resolver.ResolvedGraph{testGraph("net8.0", "Newtonsoft.Json", "13.0.2")}, "")
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)

	assert.NotEqual(t, a.ContentFingerprint(1), a.ContentFingerprint(3))
}

func TestParseLockFile_Version1(t *testing.T) {
	data := []byte(`{
  "version": 1,
  "targets": {
    "net8.0": {
      "A/1.0.0": {
        "type": "package",
        "dependencies": ["B [2.0.0, )"],
        "compile": ["lib/net8.0/A.dll"],
        "runtime": ["lib/net8.0/A.dll"]
      },
      "B/2.0.0": {"type": "package"}
    }
  }
}`)

	lf, err := ParseLockFile(data)
	require.NoError(t, err)
	assert.Equal(t, LockFileVersion1, lf.Version)
	assert.Equal(t, lf.ContentFingerprint(LockFileVersion1), lf.Fingerprint)

	tgt, ok := lf.Target("net8.0")
	require.True(t, ok)
	a, ok := tgt.Library("a")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"B": "[2.0.0, )"}, a.Dependencies)
	assert.Equal(t, []string{"lib/net8.0/A.dll"}, a.Compile)
	assert.Equal(t, []string{"lib/net8.0/A.dll"}, a.Runtime)
	assert.Equal(t, "2.0.0", lf.PinsFor("net8.0")["b"].ToNormalizedString())
}

func TestParseLockFile_Version2(t *testing.T) {
	data := []byte(`{
  "version": 2,
  "targets": {
    "net8.0": {
      "A/1.0.0": {"type": "package", "dependencies": {"B": "[2.0.0, )"}, "compile": ["lib/A.dll"]},
      "Lib/1.0.0": {"type": "project"}
    }
  },
  "fingerprint": "0000000000000001"
}`)

	lf, err := ParseLockFile(data)
	require.NoError(t, err)
	assert.Equal(t, LockFileVersion2, lf.Version)
	assert.Equal(t, lf.ContentFingerprint(LockFileVersion2), lf.Fingerprint)
	assert.Equal(t, "0000000000000001", lf.StoredFingerprint)

	tgt, _ := lf.Target("net8.0")
	a, ok := tgt.Library("A")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"B": "[2.0.0, )"}, a.Dependencies)
	assert.Equal(t, []string{"lib/A.dll"}, a.Compile)

	pins := lf.PinsFor("net8.0")
	assert.Contains(t, pins, "a")
	assert.NotContains(t, pins, "lib", "projects are never pinned")
}

func TestParseLockFile_StoredFingerprintIsVerified(t *testing.T) {
	lf := LockFileFromGraphs("App", []*resolver.ResolvedGraph{testGraph("net8.0", "A", "1.0.0")}, "spec")
	data, err := json.Marshal(lf)
	require.NoError(t, err)

	parsed, err := ParseLockFile(data)
	require.NoError(t, err)
	assert.Equal(t, lf.Fingerprint, parsed.Fingerprint)
	assert.Empty(t, parsed.StoredFingerprint)

	// Editing a version without updating the fingerprint.
	edited := strings.Replace(string(data), "A/1.0.0", "A/1.0.1", 1)
	require.NotEqual(t, string(data), edited)
	parsed, err = ParseLockFile([]byte(edited))
	require.NoError(t, err)
	assert.Equal(t, lf.Fingerprint, parsed.StoredFingerprint)
	assert.Equal(t, parsed.ContentFingerprint(CurrentLockFileVersion), parsed.Fingerprint)
	assert.NotEqual(t, lf.Fingerprint, parsed.Fingerprint)
}

func TestParseLockFile_Rejects(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		unsupported bool
	}{
		{"newer schema", `{"version": 4, "targets": {}}`, true},
		{"missing version", `{"targets": {}}`, false},
		{"bad key", `{"version": 3, "targets": {"net8.0": {"A": {"type": "package"}}}}`, false},
		{"bad version", `{"version": 3, "targets": {"net8.0": {"A/x.y": {"type": "package"}}}}`, false},
		{"bad type", `{"version": 3, "targets": {"net8.0": {"A/1.0.0": {"type": "tool"}}}}`, false},
		{"not json", `{`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLockFile([]byte(tt.data))
			require.Error(t, err)
			var unsupported *UnsupportedLockFileVersionError
			assert.Equal(t, tt.unsupported, errors.As(err, &unsupported))
		})
	}
}

func TestLoadLockFile_UnsupportedVersionNamesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 9, "targets": {}}`), 0o644))

	_, err := LoadLockFile(path)
	var unsupported *UnsupportedLockFileVersionError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, path, unsupported.Path)
	assert.Equal(t, 9, unsupported.Version)
}

func TestLoadLockFile_Missing(t *testing.T) {
	_, err := LoadLockFile(filepath.Join(t.TempDir(), LockFileName))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLockFile_SaveUpgradesLegacySchema(t *testing.T) {
	lf, err := ParseLockFile([]byte(`{"version": 1, "targets": {"net8.0": {"A/1.0.0": {"type": "package"}}}}`))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), LockFileName)
	require.NoError(t, lf.Save(context.Background(), path))

	loaded, err := LoadLockFile(path)
	require.NoError(t, err)
	assert.Equal(t, CurrentLockFileVersion, loaded.Version)
	assert.Equal(t, loaded.ContentFingerprint(CurrentLockFileVersion), loaded.Fingerprint)
	assert.Equal(t, lf.ResolvedVersions(), loaded.ResolvedVersions())
}

func TestLockFile_Diff(t *testing.T) {
	old := LockFileFromGraphs("App", []*resolver.ResolvedGraph{testGraph("net8.0", "A", "1.0.0", "B", "1.0.0")}, "")
	fresh := LockFileFromGraphs("App", []*resolver.ResolvedGraph{testGraph("net8.0", "A", "2.0.0", "C", "1.0.0")}, "")

	assert.Equal(t, []string{
		"net8.0: a 1.0.0 -> 2.0.0",
		"net8.0: b 1.0.0 removed",
		"net8.0: c added at 1.0.0",
	}, old.Diff(fresh))
	assert.Empty(t, old.Diff(old))
}
