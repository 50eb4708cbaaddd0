package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/willibrandon/gorestore/core"
	"github.com/willibrandon/gorestore/observability"
	"github.com/willibrandon/gorestore/version"
)

// request is one declared dependency waiting to be placed in the graph.
type request struct {
	dep    LibraryDependency
	rng    *version.Range
	parent int
	depth  int
	edge   *GraphEdge
	order  int
}

// unit is one independent piece of candidate work: a distinct (id, range)
// pair for packages, or a referenced project.
type unit struct {
	id       string
	requests []int
	project  bool
	info     ProjectInfo
}

// group collects the requests for one id that is new at the current depth.
type group struct {
	id       string
	requests []int
	project  bool
}

// pending is a node created during reconcile whose manifest is still unread.
type pending struct {
	index int
	cand  candidate
	info  *ProjectInfo
}

// walker resolves one ResolveRequest. It expands the graph one depth level
// at a time: requests of a level are proposed concurrently into the resolved
// table, reconciled sequentially in declaration order, and the manifests of
// the new nodes are then fetched concurrently to seed the next level.
type walker struct {
	req      *ResolveRequest
	logger   observability.Logger
	parallel int
	tracker  ConcurrencyTracker

	table    *resolvedTable
	nodes    []*GraphNode
	byID     map[string]int
	exclude  []map[string]bool
	children [][]LibraryDependency
	order    int

	downgrades  []DowngradeWarning
	constraints []ConstraintWarning
}

func newWalker(req *ResolveRequest, logger observability.Logger, parallel int, tracker ConcurrencyTracker) *walker {
	return &walker{
		req:      req,
		logger:   logger,
		parallel: parallel,
		tracker:  tracker,
		table:    newResolvedTable(),
		byID:     make(map[string]int),
	}
}

func (w *walker) walk(ctx context.Context) (*ResolvedGraph, error) {
	projectVersion := w.req.ProjectVersion
	if projectVersion == nil {
		projectVersion = version.MustParse("1.0.0")
	}

	root := &GraphNode{
		Identity:          PackageIdentity{ID: w.req.ProjectID, Version: projectVersion},
		Type:              DependencyProject,
		TargetEnvironment: w.req.TargetEnvironment,
		parent:            -1,
	}
	w.nodes = []*GraphNode{root}
	w.children = [][]LibraryDependency{w.req.Dependencies}
	w.exclude = []map[string]bool{{}}
	w.byID[strings.ToLower(w.req.ProjectID)] = 0
	w.table.propose(w.req.ProjectID, proposal{depth: 0, version: projectVersion, request: -1})

	frontier := []int{0}
	for depth := 1; len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		reqs, err := w.collect(frontier, depth)
		if err != nil {
			return nil, err
		}

		frontier, err = w.expand(ctx, reqs, depth)
		if err != nil {
			return nil, err
		}
	}

	if members := findCycle(w.nodes); members != nil {
		return nil, cycleError(w.nodes, w.req.TargetEnvironment, members)
	}
	if w.req.Strict && len(w.downgrades) > 0 {
		return nil, &DowngradeError{Downgrades: w.downgrades}
	}

	g := &ResolvedGraph{
		TargetEnvironment:  w.req.TargetEnvironment,
		Nodes:              w.nodes,
		Packages:           make(map[string]PackageIdentity, len(w.nodes)-1),
		Downgrades:         w.downgrades,
		ConstraintWarnings: w.constraints,
	}
	for _, n := range w.nodes[1:] {
		g.Packages[strings.ToLower(n.Identity.ID)] = n.Identity
	}
	return g, nil
}

// collect turns the declared dependencies of the frontier nodes into
// requests, in node order then declaration order. Edges are created here so
// each node's edge list keeps declaration order.
func (w *walker) collect(frontier []int, depth int) ([]request, error) {
	var reqs []request
	for _, idx := range frontier {
		node := w.nodes[idx]
		for _, dep := range w.children[idx] {
			if dep.Type == DependencyFrameworkReference {
				node.FrameworkReferences = append(node.FrameworkReferences, dep.ID)
				continue
			}
			if w.exclude[idx][strings.ToLower(dep.ID)] {
				continue
			}

			rng, err := dependencyRange(dep)
			if err != nil {
				return nil, fmt.Errorf("%s dependency %s: %w", node.Identity.ID, dep.ID, err)
			}

			edge := &GraphEdge{Dependency: dep}
			node.Dependencies = append(node.Dependencies, edge)
			w.order++
			reqs = append(reqs, request{dep: dep, rng: rng, parent: idx, depth: depth, edge: edge, order: w.order})
		}
	}
	return reqs, nil
}

func dependencyRange(dep LibraryDependency) (*version.Range, error) {
	if strings.TrimSpace(dep.VersionRange) == "" {
		if dep.Type == DependencyProject {
			return nil, nil
		}
		return version.ParseVersionRange("0.0.0")
	}
	return version.ParseVersionRange(dep.VersionRange)
}

// expand places the requests of one level and returns the new frontier.
func (w *walker) expand(ctx context.Context, reqs []request, depth int) ([]int, error) {
	var groups []*group
	groupOf := make(map[string]*group)
	var existing []int

	for i, r := range reqs {
		key := strings.ToLower(r.dep.ID)
		if p, ok := w.table.get(key); ok && p.depth < depth {
			existing = append(existing, i)
			continue
		}
		g, ok := groupOf[key]
		if !ok {
			g = &group{id: key}
			groupOf[key] = g
			groups = append(groups, g)
		}
		g.requests = append(g.requests, i)
		if r.dep.Type == DependencyProject {
			g.project = true
		}
	}

	units := w.units(reqs, groups, groupOf)
	if err := w.propose(ctx, reqs, units, depth); err != nil {
		return nil, err
	}

	projectUnits := make(map[string]*unit)
	for _, u := range units {
		if u.project {
			projectUnits[u.id] = u
		}
	}

	var loads []pending
	for _, g := range groups {
		p, err := w.reconcile(reqs, g, depth)
		if err != nil {
			return nil, err
		}
		if g.project {
			p.info = &projectUnits[g.id].info
		}
		loads = append(loads, p)
	}

	for _, ri := range existing {
		r := reqs[ri]
		node := w.nodes[w.byID[strings.ToLower(r.dep.ID)]]
		r.edge.Node = node
		if node.Index != 0 {
			w.checkConstraint(r, node)
		}
	}

	if err := w.load(ctx, loads); err != nil {
		return nil, err
	}

	frontier := make([]int, 0, len(loads))
	for _, p := range loads {
		frontier = append(frontier, p.index)
	}
	return frontier, nil
}

// units splits the new requests into independent candidate work. Package
// requests for an id that is also referenced as a project need no work.
func (w *walker) units(reqs []request, groups []*group, groupOf map[string]*group) []*unit {
	var units []*unit
	unitOf := make(map[string]*unit)
	for _, g := range groups {
		for _, ri := range g.requests {
			r := reqs[ri]
			var key string
			switch {
			case g.project && r.dep.Type == DependencyProject:
				key = g.id
			case g.project:
				continue
			default:
				key = g.id + "\x00" + r.rng.String()
			}
			u, ok := unitOf[key]
			if !ok {
				u = &unit{id: g.id, project: groupOf[g.id].project}
				unitOf[key] = u
				units = append(units, u)
			}
			u.requests = append(u.requests, ri)
		}
	}
	return units
}

// propose runs candidate selection for every unit concurrently. Each unit
// proposes its candidate for each of its requests; the resolved table keeps
// the proposal that outranks the others regardless of completion order.
// Failures are reported for the earliest failing unit so the outcome does
// not depend on scheduling.
func (w *walker) propose(ctx context.Context, reqs []request, units []*unit, depth int) error {
	errs := make([]error, len(units))

	var eg errgroup.Group
	eg.SetLimit(w.parallel)
	for i, u := range units {
		eg.Go(func() error {
			w.enter()
			defer w.exit()
			errs[i] = w.proposeUnit(ctx, reqs, u, depth)
			return nil
		})
	}
	_ = eg.Wait()

	return firstError(errs)
}

func (w *walker) proposeUnit(ctx context.Context, reqs []request, u *unit, depth int) error {
	first := reqs[u.requests[0]]

	var cand candidate
	if u.project {
		if w.req.Projects == nil {
			return fmt.Errorf("project reference %s from %s cannot be resolved: no projects available",
				first.dep.ID, w.nodes[first.parent].Identity.ID)
		}
		info, ok := w.req.Projects.LookupProject(first.dep.ID, w.req.TargetEnvironment)
		if !ok {
			return fmt.Errorf("project reference %s from %s cannot be resolved for %s",
				first.dep.ID, w.nodes[first.parent].Identity.ID, w.req.TargetEnvironment)
		}
		if info.Version == nil {
			info.Version = version.MustParse("1.0.0")
		}
		u.info = info
		cand = candidate{version: info.Version}
	} else {
		var err error
		cand, err = selectCandidate(ctx, w.req, first.dep.ID, first.rng)
		if err != nil {
			return err
		}
	}

	for _, ri := range u.requests {
		w.table.propose(u.id, proposal{
			depth:   depth,
			version: cand.version,
			order:   reqs[ri].order,
			request: ri,
			cand:    cand,
		})
	}
	return nil
}

// reconcile commits the winning proposal of a group as a new node and checks
// every request of the group against it.
func (w *walker) reconcile(reqs []request, g *group, depth int) (pending, error) {
	win, _ := w.table.get(g.id)
	winner := reqs[win.request]

	if err := w.checkFixed(reqs, g); err != nil {
		return pending{}, err
	}

	idx := len(w.nodes)
	node := &GraphNode{
		Index:             idx,
		Identity:          PackageIdentity{ID: winner.dep.ID, Version: win.version},
		Type:              winner.dep.Type,
		Depth:             depth,
		TargetEnvironment: w.req.TargetEnvironment,
		parent:            winner.parent,
	}
	if win.cand.source != nil {
		node.Source = win.cand.source.Source().String()
	}

	w.nodes = append(w.nodes, node)
	w.children = append(w.children, nil)
	w.exclude = append(w.exclude, inheritExclusions(w.exclude[winner.parent], winner.dep.Exclude))
	w.byID[g.id] = idx

	for _, ri := range g.requests {
		reqs[ri].edge.Node = node
		w.checkConstraint(reqs[ri], node)
	}

	w.logger.Debug("Resolved {PackageID} {Version} at depth {Depth} for {Target}",
		node.Identity.ID, node.Identity.Version.ToNormalizedString(), depth, w.req.TargetEnvironment)

	return pending{index: idx, cand: win.cand}, nil
}

// checkFixed fails when two exact requests at the same depth disagree.
func (w *walker) checkFixed(reqs []request, g *group) error {
	var fixed []request
	for _, ri := range g.requests {
		if r := reqs[ri]; r.rng != nil && r.rng.IsFixed() {
			fixed = append(fixed, r)
		}
	}

	for i := 1; i < len(fixed); i++ {
		if fixed[i].rng.MinVersion.Equal(fixed[0].rng.MinVersion) {
			continue
		}
		e := &VersionConflictError{PackageID: fixed[0].dep.ID, TargetEnvironment: w.req.TargetEnvironment}
		for _, r := range fixed {
			e.Requests = append(e.Requests, ConflictingRequest{
				VersionRange: r.rng.String(),
				Path:         pathTo(w.nodes, r.parent),
			})
		}
		return e
	}
	return nil
}

// checkConstraint records a warning when the resolved node does not satisfy r.
func (w *walker) checkConstraint(r request, node *GraphNode) {
	v := node.Identity.Version
	if r.rng == nil || r.rng.Satisfies(v) {
		return
	}

	path := pathTo(w.nodes, r.parent)
	if r.rng.IsBelowMinimum(v) && node.Depth < r.depth {
		w.downgrades = append(w.downgrades, DowngradeWarning{
			PackageID:         node.Identity.ID,
			TargetEnvironment: w.req.TargetEnvironment,
			ResolvedVersion:   v.ToNormalizedString(),
			RequestedRange:    r.rng.String(),
			Path:              path,
		})
		return
	}

	w.constraints = append(w.constraints, ConstraintWarning{
		PackageID:         node.Identity.ID,
		TargetEnvironment: w.req.TargetEnvironment,
		ResolvedVersion:   v.ToNormalizedString(),
		RequestedRange:    r.rng.String(),
		Path:              path,
	})
}

// load reads the manifests of new nodes concurrently and records their
// dependencies for the next level.
func (w *walker) load(ctx context.Context, loads []pending) error {
	errs := make([]error, len(loads))

	var eg errgroup.Group
	eg.SetLimit(w.parallel)
	for i, p := range loads {
		eg.Go(func() error {
			w.enter()
			defer w.exit()
			errs[i] = w.loadNode(ctx, p)
			return nil
		})
	}
	_ = eg.Wait()

	return firstError(errs)
}

func (w *walker) loadNode(ctx context.Context, p pending) error {
	node := w.nodes[p.index]

	if p.info != nil {
		if p.info.ID != "" {
			node.Identity.ID = p.info.ID
		}
		w.children[p.index] = p.info.Dependencies
		return nil
	}

	m, err := p.cand.source.GetManifest(ctx, node.Identity.ID, node.Identity.Version)
	if err != nil {
		if errors.Is(err, core.ErrPackageNotFound) {
			return &PackageNotFoundError{
				Code:              NU1101,
				PackageID:         node.Identity.ID,
				VersionRange:      "[" + node.Identity.Version.ToNormalizedString() + "]",
				TargetEnvironment: w.req.TargetEnvironment,
				Sources:           []string{node.Source},
			}
		}
		return fmt.Errorf("read manifest for %s: %w", node.Identity, err)
	}

	if m.ID != "" {
		node.Identity.ID = m.ID
	}
	node.ContentHash = m.ContentHash
	w.children[p.index] = FromManifest(m.DependenciesFor(w.req.TargetEnvironment))
	return nil
}

func (w *walker) enter() {
	if w.tracker != nil {
		w.tracker.Enter()
	}
}

func (w *walker) exit() {
	if w.tracker != nil {
		w.tracker.Exit()
	}
}

func inheritExclusions(parent map[string]bool, exclude []string) map[string]bool {
	if len(exclude) == 0 {
		return parent
	}
	out := make(map[string]bool, len(parent)+len(exclude))
	for k := range parent {
		out[k] = true
	}
	for _, id := range exclude {
		out[strings.ToLower(id)] = true
	}
	return out
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
