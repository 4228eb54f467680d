// SPDX-License-Identifier: MPL-2.0

// Package execgraph lowers a scheduler.PlacementPlan into the
// ExecutionGraph of spec.md §4.6: process nodes, synthetic file and
// aggregator nodes, and the stream edges connecting them.
package execgraph

import (
	"github.com/google/uuid"

	"posh/internal/mount"
)

// FD identifies a standard stream of a process node.
type FD int

const (
	FDStdin  FD = 0
	FDStdout FD = 1
	FDStderr FD = 2
)

// TransportKind distinguishes the two StreamEdge transports of spec.md §3.
type TransportKind int

const (
	LocalPipe TransportKind = iota
	Tcp
)

// Transport describes how bytes move across a StreamEdge.
type Transport struct {
	Kind         TransportKind
	ConnectionID uuid.UUID // set only when Kind == Tcp; unique per pipeline invocation
}

// NodeID identifies any node — process, file, or aggregator — in a Graph.
// Ids are assigned sequentially by a Builder and are unique within one graph.
type NodeID int

// ProcessNode is one executing command, per spec.md §3's ProcessNode.
type ProcessNode struct {
	ID       NodeID
	StageID  int
	Location mount.Location
	Argv     []string
	Env      map[string]string
}

// FileNode is a synthetic node representing a redirection target.
type FileNode struct {
	ID       NodeID
	Location mount.Location
	Path     string
	Write    bool // true for ">"/"2>"; false for "<"
}

// AggregatorNode is the synthetic byte- or line-order-preserving merge
// point downstream of a split stage's clones (spec.md §4.5 "Splitting").
type AggregatorNode struct {
	ID       NodeID
	Location mount.Location
	// CloneOrder lists the upstream process nodes in the order their
	// output must be concatenated.
	CloneOrder []NodeID
	// LineFramed is true when the stage was split on stdin and false for
	// a file-arg split. The dispatcher's aggregator does not read it: it
	// concatenates each clone's whole output in CloneOrder either way.
	LineFramed bool
}

// StreamEdge connects one node's output descriptor to another's input
// descriptor, per spec.md §3's StreamEdge.
type StreamEdge struct {
	ID        NodeID
	Src       NodeID
	SrcFD     FD
	Dst       NodeID
	DstFD     FD
	Transport Transport
}

// Graph is the lowered ExecutionGraph: every node POSH will dispatch, and
// every edge moving bytes between them.
type Graph struct {
	ProcessNodes []ProcessNode
	FileNodes    []FileNode
	Aggregators  []AggregatorNode
	Edges        []StreamEdge
	// FinalNodes holds the producer node id(s) of the last pipeline
	// stage Build lowered — a split stage collapses to its single
	// AggregatorNode id, so in practice this always has length 1.
	FinalNodes []NodeID
}

// NodeLocation returns the location of any node in the graph by id.
func (g *Graph) NodeLocation(id NodeID) (mount.Location, bool) {
	for _, n := range g.ProcessNodes {
		if n.ID == id {
			return n.Location, true
		}
	}
	for _, n := range g.FileNodes {
		if n.ID == id {
			return n.Location, true
		}
	}
	for _, n := range g.Aggregators {
		if n.ID == id {
			return n.Location, true
		}
	}
	return mount.Location{}, false
}

// ProxiesTouched returns the distinct non-Client locations any process
// node in the graph runs at, in lexicographic order — the set of proxies
// the dispatcher must open a control connection to.
func (g *Graph) ProxiesTouched() []mount.Location {
	seen := map[string]mount.Location{}
	for _, n := range g.ProcessNodes {
		if !n.Location.IsClient() {
			seen[n.Location.String()] = n.Location
		}
	}
	out := make([]mount.Location, 0, len(seen))
	for _, l := range seen {
		out = append(out, l)
	}
	sortLocations(out)
	return out
}
