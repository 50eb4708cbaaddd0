package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/gorestore/core"
	"github.com/willibrandon/gorestore/version"
)

// memFeed is an in-memory SourceRepository.
type memFeed struct {
	name string

	mu        sync.Mutex
	manifests map[string]map[string]*core.Manifest

	listErr error
	delay   time.Duration
}

func newMemFeed(name string) *memFeed {
	return &memFeed{name: name, manifests: make(map[string]map[string]*core.Manifest)}
}

// add registers id at ver. Each dependency is written as "ID RANGE".
func (f *memFeed) add(id, ver string, deps ...string) *memFeed {
	m := &core.Manifest{ID: id, Version: version.MustParse(ver), ContentHash: "hash-" + strings.ToLower(id) + "-" + ver}
	for _, d := range deps {
		depID, rng, _ := strings.Cut(d, " ")
		m.Dependencies = append(m.Dependencies, core.Dependency{ID: depID, Range: rng})
	}
	return f.addManifest(m)
}

func (f *memFeed) addManifest(m *core.Manifest) *memFeed {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(m.ID)
	if f.manifests[key] == nil {
		f.manifests[key] = make(map[string]*core.Manifest)
	}
	f.manifests[key][m.Version.ToNormalizedString()] = m
	return f
}

func (f *memFeed) Source() core.PackageSource {
	return core.PackageSource{Name: f.name, Location: "mem://" + f.name}
}

func (f *memFeed) ListVersions(ctx context.Context, id string) ([]*version.NuGetVersion, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*version.NuGetVersion
	for _, m := range f.manifests[strings.ToLower(id)] {
		out = append(out, m.Version)
	}
	return version.Dedupe(out), nil
}

func (f *memFeed) GetManifest(ctx context.Context, id string, v *version.NuGetVersion) (*core.Manifest, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.manifests[strings.ToLower(id)][v.ToNormalizedString()]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", id, v, core.ErrPackageNotFound)
	}
	return m, nil
}

func (f *memFeed) wait(ctx context.Context) error {
	if f.delay == 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type projectMap map[string]ProjectInfo

func (p projectMap) LookupProject(id, target string) (ProjectInfo, bool) {
	info, ok := p[strings.ToLower(id)]
	return info, ok
}

func pkg(id, rng string) LibraryDependency {
	return LibraryDependency{ID: id, VersionRange: rng}
}

func newRequest(deps []LibraryDependency, feeds ...*memFeed) ResolveRequest {
	req := ResolveRequest{
		ProjectID:         "App",
		TargetEnvironment: "net8.0",
		Dependencies:      deps,
	}
	for _, f := range feeds {
		req.Sources = append(req.Sources, f)
	}
	return req
}

func resolved(t *testing.T, g *ResolvedGraph) map[string]string {
	t.Helper()
	out := make(map[string]string, len(g.Packages))
	for _, p := range g.Packages {
		out[p.ID] = p.Version.ToNormalizedString()
	}
	return out
}

func TestResolve_TransitiveGraph(t *testing.T) {
	feed := newMemFeed("feed").
		add("A", "1.0.0", "B [1.0.0,)").
		add("B", "1.0.0").
		add("B", "2.0.0")

	g, err := NewResolver().Resolve(context.Background(), newRequest([]LibraryDependency{pkg("A", "1.0.0")}, feed))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"A": "1.0.0", "B": "1.0.0"}, resolved(t, g))
	assert.Equal(t, "App", g.Project().Identity.ID)
	require.Len(t, g.Roots(), 1)
	assert.Equal(t, "A", g.Roots()[0].Identity.ID)

	b, ok := g.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, 2, b.Depth)
	assert.Equal(t, "feed", b.Source)
	assert.Equal(t, "hash-b-1.0.0", b.ContentHash)
	assert.Equal(t, []string{"App", "A 1.0.0", "B 1.0.0"}, g.PathTo(b))
	assert.Empty(t, g.Downgrades)
}

func TestResolve_NearerRequestWins(t *testing.T) {
	feed := newMemFeed("feed").
		add("B", "1.0.0", "C [1.5.0,3.0.0)").
		add("C", "1.0.0").
		add("C", "1.5.0").
		add("C", "2.5.0")

	req := newRequest([]LibraryDependency{pkg("C", "[1.0.0,2.0.0)"), pkg("B", "1.0.0")}, feed)
	g, err := NewResolver().Resolve(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", resolved(t, g)["C"])
	require.Len(t, g.Downgrades, 1)
	d := g.Downgrades[0]
	assert.Equal(t, "C", d.PackageID)
	assert.Equal(t, "1.0.0", d.ResolvedVersion)
	assert.Equal(t, "[1.5.0, 3.0.0)", d.RequestedRange)
	assert.Equal(t, []string{"App", "B 1.0.0"}, d.Path)
	assert.Contains(t, d.String(), "Detected package downgrade: C")
}

func TestResolve_StrictDowngradeFails(t *testing.T) {
	feed := newMemFeed("feed").
		add("B", "1.0.0", "C [2.0.0,)").
		add("C", "1.0.0").
		add("C", "2.0.0")

	req := newRequest([]LibraryDependency{pkg("C", "[1.0.0]"), pkg("B", "1.0.0")}, feed)
	req.Strict = true

	_, err := NewResolver().Resolve(context.Background(), req)
	var downgrade *DowngradeError
	require.ErrorAs(t, err, &downgrade)
	assert.Equal(t, []string{"C"}, downgrade.PackageIDs())
}

func TestResolve_SameDepthHigherVersionWins(t *testing.T) {
	feed := newMemFeed("feed").
		add("A", "1.0.0", "D [1.0.0,)").
		add("B", "1.0.0", "D [2.0.0,)").
		add("D", "1.0.0").
		add("D", "2.0.0")

	g, err := NewResolver().Resolve(context.Background(),
		newRequest([]LibraryDependency{pkg("A", "1.0.0"), pkg("B", "1.0.0")}, feed))
	require.NoError(t, err)

	assert.Equal(t, "2.0.0", resolved(t, g)["D"])
	assert.Empty(t, g.Downgrades)
	assert.Empty(t, g.ConstraintWarnings)

	// Both parents point at the single D node.
	a, _ := g.Lookup("A")
	b, _ := g.Lookup("B")
	assert.Same(t, a.Dependencies[0].Node, b.Dependencies[0].Node)
}

func TestResolve_SameDepthConstraintWarning(t *testing.T) {
	feed := newMemFeed("feed").
		add("A", "1.0.0", "D [1.0.0,2.0.0)").
		add("B", "1.0.0", "D [2.0.0,)").
		add("D", "1.0.0").
		add("D", "2.0.0")

	g, err := NewResolver().Resolve(context.Background(),
		newRequest([]LibraryDependency{pkg("A", "1.0.0"), pkg("B", "1.0.0")}, feed))
	require.NoError(t, err)

	assert.Equal(t, "2.0.0", resolved(t, g)["D"])
	require.Len(t, g.ConstraintWarnings, 1)
	assert.Equal(t, []string{"App", "A 1.0.0"}, g.ConstraintWarnings[0].Path)
}

func TestResolve_FixedVersionConflict(t *testing.T) {
	feed := newMemFeed("feed").
		add("A", "1.0.0", "D [1.0.0]").
		add("B", "1.0.0", "D [2.0.0]").
		add("D", "1.0.0").
		add("D", "2.0.0")

	_, err := NewResolver().Resolve(context.Background(),
		newRequest([]LibraryDependency{pkg("A", "1.0.0"), pkg("B", "1.0.0")}, feed))

	var conflict *VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "D", conflict.PackageID)
	require.Len(t, conflict.Requests, 2)
	assert.Equal(t, "[1.0.0]", conflict.Requests[0].VersionRange)
	assert.Equal(t, []string{"App", "A 1.0.0"}, conflict.Requests[0].Path)
	assert.Equal(t, "[2.0.0]", conflict.Requests[1].VersionRange)
}

func TestResolve_CycleDetected(t *testing.T) {
	feed := newMemFeed("feed").
		add("A", "1.0.0", "B 1.0.0").
		add("B", "1.0.0", "A 1.0.0")

	_, err := NewResolver().Resolve(context.Background(), newRequest([]LibraryDependency{pkg("A", "1.0.0")}, feed))

	var cycle *CyclicDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"A", "B"}, cycle.Members)
	assert.Equal(t, "Cycle detected. A -> B -> A", cycle.Error())
}

func TestResolve_DependencyOnProjectItselfIsCycle(t *testing.T) {
	feed := newMemFeed("feed").add("A", "1.0.0", "App 1.0.0")

	_, err := NewResolver().Resolve(context.Background(), newRequest([]LibraryDependency{pkg("A", "1.0.0")}, feed))

	var cycle *CyclicDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"App", "A"}, cycle.Members)
}

func TestResolve_FloatingRangeMergesSources(t *testing.T) {
	first := newMemFeed("first").add("X", "1.0.0").add("X", "1.1.0")
	second := newMemFeed("second").add("X", "1.2.0").add("X", "2.0.0")

	g, err := NewResolver().Resolve(context.Background(), newRequest([]LibraryDependency{pkg("X", "1.*")}, first, second))
	require.NoError(t, err)

	x, ok := g.Lookup("X")
	require.True(t, ok)
	assert.Equal(t, "1.2.0", x.Identity.Version.ToNormalizedString())
	assert.Equal(t, "second", x.Source)
}

func TestResolve_NonFloatingUsesFirstSourceWithMatch(t *testing.T) {
	first := newMemFeed("first").add("Y", "1.1.0")
	second := newMemFeed("second").add("Y", "1.0.0")

	g, err := NewResolver().Resolve(context.Background(), newRequest([]LibraryDependency{pkg("Y", "1.0.0")}, first, second))
	require.NoError(t, err)

	y, _ := g.Lookup("Y")
	assert.Equal(t, "1.1.0", y.Identity.Version.ToNormalizedString())
	assert.Equal(t, "first", y.Source)
}

func TestResolve_LockedVersionWins(t *testing.T) {
	feed := newMemFeed("feed").add("X", "1.0.0").add("X", "1.1.0").add("X", "1.2.0")

	req := newRequest([]LibraryDependency{pkg("X", "1.*")}, feed)
	req.LockedVersions = map[string]*version.NuGetVersion{"x": version.MustParse("1.1.0")}

	g, err := NewResolver().Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", resolved(t, g)["X"])
}

func TestResolve_LockedVersionOutsideRangeIsIgnored(t *testing.T) {
	feed := newMemFeed("feed").add("X", "1.0.0").add("X", "2.0.0")

	req := newRequest([]LibraryDependency{pkg("X", "[2.0.0,)")}, feed)
	req.LockedVersions = map[string]*version.NuGetVersion{"x": version.MustParse("1.0.0")}

	g, err := NewResolver().Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", resolved(t, g)["X"])
}

func TestResolve_PackageNotFound(t *testing.T) {
	tests := []struct {
		name    string
		feed    *memFeed
		rng     string
		code    NuGetErrorCode
		nearest string
	}{
		{
			name: "unknown id",
			feed: newMemFeed("feed"),
			rng:  "1.0.0",
			code: NU1101,
		},
		{
			name:    "no matching version",
			feed:    newMemFeed("feed").add("X", "1.0.0").add("X", "1.5.0"),
			rng:     "[2.0.0,)",
			code:    NU1102,
			nearest: "1.5.0",
		},
		{
			name:    "nearest above minimum",
			feed:    newMemFeed("feed").add("X", "1.0.0").add("X", "3.0.0"),
			rng:     "[2.0.0,2.5.0]",
			code:    NU1102,
			nearest: "3.0.0",
		},
		{
			name:    "prerelease only",
			feed:    newMemFeed("feed").add("X", "2.0.0-beta"),
			rng:     "[1.0.0,)",
			code:    NU1103,
			nearest: "2.0.0-beta",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver().Resolve(context.Background(), newRequest([]LibraryDependency{pkg("X", tt.rng)}, tt.feed))

			var notFound *PackageNotFoundError
			require.ErrorAs(t, err, &notFound)
			assert.Equal(t, tt.code, notFound.Code)
			assert.Equal(t, "X", notFound.PackageID)
			assert.Equal(t, []string{"feed"}, notFound.Sources)
			assert.Equal(t, tt.nearest, notFound.NearestVersion)
			assert.Contains(t, notFound.Error(), "feed")
		})
	}
}

func TestResolve_Exclusions(t *testing.T) {
	feed := newMemFeed("feed").
		add("A", "1.0.0", "B 1.0.0", "C 1.0.0").
		add("B", "1.0.0", "C 1.0.0").
		add("C", "1.0.0")

	dep := pkg("A", "1.0.0")
	dep.Exclude = []string{"c"}

	g, err := NewResolver().Resolve(context.Background(), newRequest([]LibraryDependency{dep}, feed))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"A": "1.0.0", "B": "1.0.0"}, resolved(t, g))
	a, _ := g.Lookup("A")
	require.Len(t, a.Dependencies, 1)
	assert.Equal(t, "B", a.Dependencies[0].Dependency.ID)
}

func TestResolve_ProjectReferences(t *testing.T) {
	feed := newMemFeed("feed").add("A", "1.0.0")

	req := newRequest([]LibraryDependency{{ID: "Lib", Type: DependencyProject}}, feed)
	req.Projects = projectMap{
		"lib": {ID: "Lib", Version: version.MustParse("2.0.0"), Dependencies: []LibraryDependency{pkg("A", "1.0.0")}},
	}

	g, err := NewResolver().Resolve(context.Background(), req)
	require.NoError(t, err)

	lib, ok := g.Lookup("lib")
	require.True(t, ok)
	assert.Equal(t, DependencyProject, lib.Type)
	assert.Equal(t, "2.0.0", lib.Identity.Version.ToNormalizedString())
	assert.Empty(t, lib.Source)

	a, ok := g.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, 2, a.Depth)
	assert.Equal(t, []string{"App", "Lib 2.0.0", "A 1.0.0"}, g.PathTo(a))
}

func TestResolve_UnknownProjectReference(t *testing.T) {
	req := newRequest([]LibraryDependency{{ID: "Missing", Type: DependencyProject}})
	req.Projects = projectMap{}

	_, err := NewResolver().Resolve(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing")
}

func TestResolve_FrameworkReferencesAreRecorded(t *testing.T) {
	req := newRequest([]LibraryDependency{{ID: "Microsoft.AspNetCore.App", Type: DependencyFrameworkReference}})

	g, err := NewResolver().Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, g.Packages)
	assert.Equal(t, []string{"Microsoft.AspNetCore.App"}, g.Project().FrameworkReferences)
}

func TestResolve_IDCasingComesFromManifest(t *testing.T) {
	feed := newMemFeed("feed").add("Newtonsoft.Json", "13.0.1")

	g, err := NewResolver().Resolve(context.Background(), newRequest([]LibraryDependency{pkg("newtonsoft.json", "13.0.1")}, feed))
	require.NoError(t, err)
	assert.Equal(t, "Newtonsoft.Json", g.Packages["newtonsoft.json"].ID)
}

func TestResolve_TargetSpecificGroups(t *testing.T) {
	feed := newMemFeed("feed").addManifest(&core.Manifest{
		ID:      "A",
		Version: version.MustParse("1.0.0"),
		Groups: []core.DependencyGroup{
			{TargetEnvironment: "net8.0", Dependencies: []core.Dependency{{ID: "Modern", Range: "1.0.0"}}},
			{Dependencies: []core.Dependency{{ID: "Legacy", Range: "1.0.0"}}},
		},
	}).add("Modern", "1.0.0").add("Legacy", "1.0.0")

	modern := newRequest([]LibraryDependency{pkg("A", "1.0.0")}, feed)
	legacy := modern
	legacy.TargetEnvironment = "net6.0"

	graphs, err := NewResolver().ResolveAll(context.Background(), []ResolveRequest{modern, legacy})
	require.NoError(t, err)
	require.Len(t, graphs, 2)

	assert.Equal(t, "net8.0", graphs[0].TargetEnvironment)
	assert.Contains(t, resolved(t, graphs[0]), "Modern")
	assert.NotContains(t, resolved(t, graphs[0]), "Legacy")
	assert.Equal(t, "net6.0", graphs[1].TargetEnvironment)
	assert.Contains(t, resolved(t, graphs[1]), "Legacy")
}

func TestResolveAll_FirstErrorInRequestOrder(t *testing.T) {
	feed := newMemFeed("feed").add("A", "1.0.0")

	good := newRequest([]LibraryDependency{pkg("A", "1.0.0")}, feed)
	bad1 := newRequest([]LibraryDependency{pkg("Missing1", "1.0.0")}, feed)
	bad2 := newRequest([]LibraryDependency{pkg("Missing2", "1.0.0")}, feed)

	_, err := NewResolver().ResolveAll(context.Background(), []ResolveRequest{good, bad1, bad2})
	var notFound *PackageNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Missing1", notFound.PackageID)
}

func TestResolve_SourceUnavailablePropagates(t *testing.T) {
	feed := newMemFeed("feed")
	feed.listErr = &core.SourceUnavailableError{
		Source:    "feed",
		Operation: "list_versions",
		PackageID: "A",
		Attempts:  3,
		Err:       errors.New("connection refused"),
	}

	_, err := NewResolver().Resolve(context.Background(), newRequest([]LibraryDependency{pkg("A", "1.0.0")}, feed))
	var unavailable *core.SourceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 3, unavailable.Attempts)
}

func TestResolve_Cancelled(t *testing.T) {
	feed := newMemFeed("feed").add("A", "1.0.0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewResolver().Resolve(ctx, newRequest([]LibraryDependency{pkg("A", "1.0.0")}, feed))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve_MissingProjectID(t *testing.T) {
	_, err := NewResolver().Resolve(context.Background(), ResolveRequest{})
	assert.Error(t, err)
}

type maxTracker struct {
	current atomic.Int32
	max     atomic.Int32
}

func (m *maxTracker) Enter() {
	n := m.current.Add(1)
	for {
		old := m.max.Load()
		if n <= old || m.max.CompareAndSwap(old, n) {
			return
		}
	}
}

func (m *maxTracker) Exit() {
	m.current.Add(-1)
}

func TestResolve_BoundedParallelism(t *testing.T) {
	feed := newMemFeed("feed")
	feed.delay = 5 * time.Millisecond

	var deps []LibraryDependency
	for i := range 20 {
		id := fmt.Sprintf("Pkg%02d", i)
		feed.add(id, "1.0.0")
		deps = append(deps, pkg(id, "1.0.0"))
	}

	tracker := &maxTracker{}
	g, err := NewResolver(WithMaxParallel(3), WithTracker(tracker)).Resolve(context.Background(), newRequest(deps, feed))
	require.NoError(t, err)

	assert.Len(t, g.Packages, 20)
	assert.LessOrEqual(t, tracker.max.Load(), int32(3))
	assert.Greater(t, tracker.max.Load(), int32(0))
}

func TestResolve_Deterministic(t *testing.T) {
	feed := newMemFeed("feed")
	feed.add("A", "1.0.0", "D [1.0.0,2.0.0)", "E 1.0.0").
		add("B", "1.0.0", "D [1.5.0,)", "E 2.0.0").
		add("C", "1.0.0", "D [1.2.0,)", "F 1.0.0").
		add("D", "1.0.0").add("D", "1.2.0").add("D", "1.5.0").
		add("E", "1.0.0").add("E", "2.0.0").
		add("F", "1.0.0", "E 1.0.0")

	deps := []LibraryDependency{pkg("A", "1.0.0"), pkg("B", "1.0.0"), pkg("C", "1.0.0")}

	var want []string
	for i := range 20 {
		g, err := NewResolver(WithMaxParallel(8)).Resolve(context.Background(), newRequest(deps, feed))
		require.NoError(t, err)

		var got []string
		for _, n := range g.Libraries() {
			got = append(got, n.Identity.String()+"@"+fmt.Sprint(n.Depth))
		}
		for _, w := range g.ConstraintWarnings {
			got = append(got, "warn:"+strings.Join(w.Path, ">"))
		}

		if i == 0 {
			want = got
			continue
		}
		require.Equal(t, want, got, "run %d", i)
	}

	assert.Contains(t, want, "D 1.5.0@2")
	assert.Contains(t, want, "E 2.0.0@2")
}
