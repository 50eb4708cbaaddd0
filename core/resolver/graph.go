package resolver

import (
	"slices"
	"strings"
)

// GraphEdge links a node to one of its declared dependencies.
type GraphEdge struct {
	// Dependency is the declaration that created this edge.
	Dependency LibraryDependency

	// Node is the node that satisfied the dependency. It may sit at a
	// shallower depth when a nearer request already resolved the id.
	Node *GraphNode
}

// GraphNode is one resolved library in a target environment's graph.
type GraphNode struct {
	// Index is the node's position in ResolvedGraph.Nodes.
	Index int

	Identity          PackageIdentity
	Type              DependencyType
	Depth             int
	TargetEnvironment string

	// Dependencies are in declaration order; excluded ids are omitted.
	Dependencies []*GraphEdge

	// FrameworkReferences are recorded verbatim and never resolved.
	FrameworkReferences []string

	// Source names the repository the manifest came from; empty for projects.
	Source      string
	ContentHash string

	parent int
}

// Parent returns the index of the node whose request placed this node, or -1
// for the project root.
func (n *GraphNode) Parent() int {
	return n.parent
}

// ResolvedGraph is the resolution of one project for one target environment.
type ResolvedGraph struct {
	TargetEnvironment string

	// Nodes is the node table; Nodes[0] is the project itself.
	Nodes []*GraphNode

	// Packages maps lowercase ids to their single resolved identity. The
	// project itself is not included.
	Packages map[string]PackageIdentity

	Downgrades         []DowngradeWarning
	ConstraintWarnings []ConstraintWarning
}

// Project returns the root node.
func (g *ResolvedGraph) Project() *GraphNode {
	return g.Nodes[0]
}

// Roots returns the nodes for the project's direct dependencies.
func (g *ResolvedGraph) Roots() []*GraphNode {
	roots := make([]*GraphNode, 0, len(g.Nodes[0].Dependencies))
	for _, e := range g.Nodes[0].Dependencies {
		roots = append(roots, e.Node)
	}
	return roots
}

// Lookup returns the node resolved for id.
func (g *ResolvedGraph) Lookup(id string) (*GraphNode, bool) {
	key := strings.ToLower(id)
	for _, n := range g.Nodes[1:] {
		if strings.ToLower(n.Identity.ID) == key {
			return n, true
		}
	}
	return nil, false
}

// Libraries returns every non-root node sorted by lowercase id.
func (g *ResolvedGraph) Libraries() []*GraphNode {
	libs := slices.Clone(g.Nodes[1:])
	slices.SortFunc(libs, func(a, b *GraphNode) int {
		return a.Identity.Compare(b.Identity)
	})
	return libs
}

// PathTo returns display names from the project down to node along the
// chain of requests that placed each node.
func (g *ResolvedGraph) PathTo(node *GraphNode) []string {
	return pathTo(g.Nodes, node.Index)
}

func pathTo(nodes []*GraphNode, index int) []string {
	var path []string
	for i := index; i >= 0; i = nodes[i].parent {
		n := nodes[i]
		if n.Depth == 0 {
			path = append(path, n.Identity.ID)
		} else {
			path = append(path, n.Identity.String())
		}
	}
	slices.Reverse(path)
	return path
}
