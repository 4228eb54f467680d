// SPDX-License-Identifier: MPL-2.0

package execgraph

import "fmt"

// checkWellFormed enforces the graph invariants of spec.md §8: in-degree
// of stdin ≤ 1, out-degree of stdout ≤ 1, and no cycles. By construction
// (spec.md §9) a well-formed ExecutionGraph's edges are always acyclic,
// so a cycle found here indicates a builder bug, not a user error.
func checkWellFormed(g *Graph) error {
	stdinIn := map[NodeID]int{}
	stdoutOut := map[NodeID]int{}
	isAggregator := map[NodeID]bool{}
	for _, n := range g.Aggregators {
		isAggregator[n.ID] = true
	}

	for _, e := range g.Edges {
		if e.DstFD == FDStdin {
			stdinIn[e.Dst]++
		}
		if e.SrcFD == FDStdout {
			stdoutOut[e.Src]++
		}
	}

	for id, n := range stdinIn {
		// Aggregator nodes are the one deliberate exception: they exist
		// to merge every clone's stdout (spec.md §4.5 "Splitting").
		if isAggregator[id] {
			continue
		}
		if n > 1 {
			return &MalformedGraphError{Reason: fmt.Sprintf("node %d has %d stdin producers, want at most 1", id, n)}
		}
	}
	for id, n := range stdoutOut {
		if n > 1 {
			return &MalformedGraphError{Reason: fmt.Sprintf("node %d fans its stdout to %d consumers, want at most 1", id, n)}
		}
	}

	if cycle := findCycle(g); cycle != nil {
		return &MalformedGraphError{Reason: fmt.Sprintf("dependency cycle detected among nodes %v", cycle)}
	}
	return nil
}

// findCycle reports a node in a cycle among g's edges, or nil when the
// graph is acyclic. It runs Kahn's algorithm but only needs the
// leftover-node verdict, not the ordering itself, so it stops there
// instead of carrying a topological-sort package for one boolean.
func findCycle(g *Graph) []NodeID {
	inDegree := map[NodeID]int{}
	adjacency := map[NodeID][]NodeID{}
	addNode := func(id NodeID) {
		if _, ok := inDegree[id]; !ok {
			inDegree[id] = 0
		}
	}
	for _, n := range g.ProcessNodes {
		addNode(n.ID)
	}
	for _, n := range g.FileNodes {
		addNode(n.ID)
	}
	for _, n := range g.Aggregators {
		addNode(n.ID)
	}
	for _, e := range g.Edges {
		adjacency[e.Src] = append(adjacency[e.Src], e.Dst)
		inDegree[e.Dst]++
	}

	var queue []NodeID
	for id, d := range inDegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adjacency[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited == len(inDegree) {
		return nil
	}

	var remaining []NodeID
	for id, d := range inDegree {
		if d > 0 {
			remaining = append(remaining, id)
		}
	}
	return remaining
}
