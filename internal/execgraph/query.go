// SPDX-License-Identifier: MPL-2.0

package execgraph

// Query helpers used by the dispatcher and proxy server to walk a built
// Graph without reaching into its slices directly.

// IsProcessNode reports whether id names a ProcessNode.
func (g *Graph) IsProcessNode(id NodeID) bool {
	for _, n := range g.ProcessNodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// IsFileNode reports whether id names a FileNode.
func (g *Graph) IsFileNode(id NodeID) bool {
	for _, n := range g.FileNodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// IsAggregator reports whether id names an AggregatorNode.
func (g *Graph) IsAggregator(id NodeID) bool {
	for _, n := range g.Aggregators {
		if n.ID == id {
			return true
		}
	}
	return false
}

// ProcessNode returns the ProcessNode with the given id. Panics if id
// does not name a ProcessNode — callers must check IsProcessNode first.
func (g *Graph) ProcessNode(id NodeID) ProcessNode {
	for _, n := range g.ProcessNodes {
		if n.ID == id {
			return n
		}
	}
	panic("execgraph: no ProcessNode with that id")
}

// FileNode returns the FileNode with the given id.
func (g *Graph) FileNode(id NodeID) FileNode {
	for _, n := range g.FileNodes {
		if n.ID == id {
			return n
		}
	}
	panic("execgraph: no FileNode with that id")
}

// AggregatorNode returns the AggregatorNode with the given id.
func (g *Graph) AggregatorNode(id NodeID) AggregatorNode {
	for _, n := range g.Aggregators {
		if n.ID == id {
			return n
		}
	}
	panic("execgraph: no AggregatorNode with that id")
}

// IncomingEdge returns the edge feeding id's stdin, or nil if it has
// none (well-formedness guarantees at most one, except Aggregators,
// which IncomingEdge does not support — use AggregatorNode.CloneOrder
// and EdgeBetween instead).
func (g *Graph) IncomingEdge(id NodeID) *StreamEdge {
	for i, e := range g.Edges {
		if e.Dst == id && e.DstFD == FDStdin {
			return &g.Edges[i]
		}
	}
	return nil
}

// OutgoingEdge returns the edge draining id's stdout, or nil if it has
// none.
func (g *Graph) OutgoingEdge(id NodeID) *StreamEdge {
	for i, e := range g.Edges {
		if e.Src == id && e.SrcFD == FDStdout {
			return &g.Edges[i]
		}
	}
	return nil
}

// EdgeBetween returns the edge from src to dst, or nil if none exists.
func (g *Graph) EdgeBetween(src, dst NodeID) *StreamEdge {
	for i, e := range g.Edges {
		if e.Src == src && e.Dst == dst {
			return &g.Edges[i]
		}
	}
	return nil
}

// LastStageNodeID returns the producer node of the pipeline's final
// stage, whose exit code is the pipeline's own (spec.md §4.7).
func (g *Graph) LastStageNodeID() (NodeID, bool) {
	if len(g.FinalNodes) == 0 {
		return 0, false
	}
	return g.FinalNodes[0], true
}
