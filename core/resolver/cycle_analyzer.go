package resolver

import "slices"

// findCycle walks the node table depth first from the root and returns the
// node indices of the first cycle found, in discovery order, or nil.
// The active path is an explicit stack with an on-stack bitmap, so each
// membership check is O(1) and deep graphs cannot exhaust the call stack.
func findCycle(nodes []*GraphNode) []int {
	if len(nodes) == 0 {
		return nil
	}

	type frame struct {
		node int
		next int
	}

	visited := make([]bool, len(nodes))
	onStack := make([]bool, len(nodes))
	stack := []frame{{node: 0}}
	visited[0] = true
	onStack[0] = true

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		edges := nodes[top.node].Dependencies

		if top.next == len(edges) {
			onStack[top.node] = false
			stack = stack[:len(stack)-1]
			continue
		}

		edge := edges[top.next]
		top.next++
		if edge.Node == nil {
			continue
		}

		child := edge.Node.Index
		if onStack[child] {
			start := slices.IndexFunc(stack, func(f frame) bool { return f.node == child })
			members := make([]int, 0, len(stack)-start)
			for _, f := range stack[start:] {
				members = append(members, f.node)
			}
			return members
		}
		if !visited[child] {
			visited[child] = true
			onStack[child] = true
			stack = append(stack, frame{node: child})
		}
	}

	return nil
}

func cycleError(nodes []*GraphNode, target string, members []int) *CyclicDependencyError {
	ids := make([]string, 0, len(members))
	for _, i := range members {
		ids = append(ids, nodes[i].Identity.ID)
	}
	return &CyclicDependencyError{TargetEnvironment: target, Members: ids}
}
