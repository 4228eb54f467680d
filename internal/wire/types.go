// SPDX-License-Identifier: MPL-2.0

// Package wire defines the client/proxy control protocol of spec.md §6:
// length-prefixed frames carrying SubgraphRequest, SubgraphAck,
// PipelineResult and CancelPipeline messages, plus the data-stream key
// prefix used to demultiplex Tcp StreamEdge connections.
package wire

import (
	"github.com/google/uuid"

	"posh/internal/execgraph"
	"posh/internal/mount"
)

// NodeSpec is the wire form of one execgraph.ProcessNode destined for a
// single proxy: the proxy execs it and reports back its exit code.
type NodeSpec struct {
	ID   execgraph.NodeID
	Argv []string
	// Env already carries any PWD override execgraph.Builder computed for
	// this node (spec.md §4.6); the proxy applies it as-is.
	Env map[string]string
}

// FileSpec is the wire form of an execgraph.FileNode that lives on this
// proxy: a redirection target or source the proxy must open directly,
// rather than a process it spawns.
type FileSpec struct {
	ID    execgraph.NodeID
	Path  string
	Write bool
}

// EdgeEndpoint is the wire form of one execgraph.StreamEdge, described
// from the receiving proxy's point of view: which of its own nodes is
// the source or sink, and whether the other end is local to this proxy
// or reached over a Tcp connection keyed by ConnectionID.
type EdgeEndpoint struct {
	ConnectionID uuid.UUID
	Local        bool // true: both Src and Dst are nodes in this subgraph
	Src          execgraph.NodeID
	SrcFD        execgraph.FD
	Dst          execgraph.NodeID
	DstFD        execgraph.FD
	// SrcIsLocal and DstIsLocal distinguish, for a non-Local edge, which
	// endpoint this proxy owns; the proxy listens if it owns Src and
	// dials if it owns Dst (spec.md §4.6's "upstream side opens a
	// listening socket").
	SrcIsLocal bool
	DstIsLocal bool
}

// SubgraphRequest is sent once per proxy touched by a pipeline's graph.
// Every Tcp StreamEdge the dispatcher builds has the client as one of
// its two endpoints (internal/scheduler.Schedule only ever places a
// stage at its predecessor's location or at the client, so two distinct
// proxies are never adjacent without the client interposed),
// so a proxy only ever dials or listens against the client, never
// against another proxy.
type SubgraphRequest struct {
	PipelineID uuid.UUID
	Nodes      []NodeSpec
	Files      []FileSpec
	Edges      []EdgeEndpoint
	// ClientPorts carries the ports the dispatcher already opened, before
	// sending this request, for edges where the client is the Tcp
	// listener (client-upstream, proxy-downstream); the proxy dials these
	// directly, keyed by the edge's ConnectionID.
	ClientPorts map[uuid.UUID]int
}

// SubgraphAck answers a SubgraphRequest with the ephemeral listening
// ports the proxy opened for the edges where it is the Tcp listener,
// keyed by ConnectionID so the dispatcher can tell its dialers where to
// connect.
type SubgraphAck struct {
	PipelineID uuid.UUID
	Ports      map[uuid.UUID]int
}

// NodeExit reports one node's terminal exit code.
type NodeExit struct {
	NodeID   execgraph.NodeID
	ExitCode int
}

// PipelineResult is sent by a proxy once every node in its subgraph has
// been reaped.
type PipelineResult struct {
	PipelineID uuid.UUID
	Exits      []NodeExit
}

// CancelPipeline asks a proxy to terminate every node of a still-running
// pipeline (spec.md §5 "Cancellation").
type CancelPipeline struct {
	PipelineID uuid.UUID
}

// StreamKeySize is the length of the key every Tcp data-stream
// connection sends before its raw payload.
const StreamKeySize = 16

// StreamKey identifies one Tcp StreamEdge's data connection: bytes 0-7
// are the pipeline id's first 8 bytes, bytes 8-15 the edge's connection
// id's first 8 bytes — both ids are google/uuid v4 values, so
// truncation collisions are not a practical concern within one proxy's
// concurrently open connections.
type StreamKey [StreamKeySize]byte

// NewStreamKey builds the demultiplexing key for a pipeline+edge pair.
func NewStreamKey(pipelineID, connectionID uuid.UUID) StreamKey {
	var k StreamKey
	copy(k[0:8], pipelineID[0:8])
	copy(k[8:16], connectionID[0:8])
	return k
}

// LocationWire is the string spelling mount.Location uses on the wire
// ("client" or a bare IP), shared by clientcfg and proxyserver.
func LocationWire(l mount.Location) string { return l.String() }
