// SPDX-License-Identifier: MPL-2.0

package proxyserver

import (
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"

	"posh/internal/execgraph"
	"posh/internal/wire"
)

// localPipes wires every edge local to this proxy's subgraph up front,
// mirroring internal/dispatcher's own localPipes so a consumer spawned
// before its producer still has a reader waiting for it.
type localPipes struct {
	in  map[execgraph.NodeID]*io.PipeReader
	out map[execgraph.NodeID]*io.PipeWriter
}

func newLocalPipes(edges []wire.EdgeEndpoint) *localPipes {
	lp := &localPipes{in: map[execgraph.NodeID]*io.PipeReader{}, out: map[execgraph.NodeID]*io.PipeWriter{}}
	for _, e := range edges {
		if !e.Local {
			continue
		}
		pr, pw := io.Pipe()
		lp.in[e.Dst] = pr
		lp.out[e.Src] = pw
	}
	return lp
}

func incomingEdge(edges []wire.EdgeEndpoint, id execgraph.NodeID) *wire.EdgeEndpoint {
	for i, e := range edges {
		if e.Dst == id && e.DstFD == execgraph.FDStdin {
			return &edges[i]
		}
	}
	return nil
}

func outgoingEdge(edges []wire.EdgeEndpoint, id execgraph.NodeID) *wire.EdgeEndpoint {
	for i, e := range edges {
		if e.Src == id && e.SrcFD == execgraph.FDStdout {
			return &edges[i]
		}
	}
	return nil
}

// stdinFor returns the stdin source for one of this proxy's nodes: a
// precomputed local pipe, a dial back to the client when the client
// produced this edge's bytes, or nil when the node has no producer.
func (sg *subgraph) stdinFor(id execgraph.NodeID, lp *localPipes) (io.Reader, error) {
	if r, ok := lp.in[id]; ok {
		return r, nil
	}
	e := incomingEdge(sg.req.Edges, id)
	if e == nil || e.Local {
		return nil, nil
	}
	if !e.DstIsLocal || e.SrcIsLocal {
		// Unreachable under the hub-and-spoke invariant: a non-local edge
		// landing on one of this proxy's own nodes is always client-produced.
		return nil, nil
	}
	port, ok := sg.req.ClientPorts[e.ConnectionID]
	if !ok {
		return nil, fmt.Errorf("proxyserver: no client port for connection %s", e.ConnectionID)
	}
	return dialClient(sg.clientHost, port, sg.req.PipelineID, e.ConnectionID)
}

// stdoutFor returns the stdout sink for one of this proxy's nodes, and
// an optional closer to run once the producer is done writing.
func (sg *subgraph) stdoutFor(id execgraph.NodeID, lp *localPipes) (io.Writer, func(), error) {
	if w, ok := lp.out[id]; ok {
		return w, func() { _ = w.Close() }, nil
	}
	e := outgoingEdge(sg.req.Edges, id)
	if e == nil || e.Local {
		return io.Discard, nil, nil
	}
	if !e.SrcIsLocal || e.DstIsLocal {
		// Unreachable under the hub-and-spoke invariant: see stdinFor.
		return io.Discard, nil, nil
	}
	ln, ok := sg.listeners[e.ConnectionID]
	if !ok {
		return nil, nil, fmt.Errorf("proxyserver: no listener for connection %s", e.ConnectionID)
	}
	conn, err := acceptEdge(ln, wire.NewStreamKey(sg.req.PipelineID, e.ConnectionID))
	if err != nil {
		return nil, nil, err
	}
	return conn, func() { _ = conn.Close() }, nil
}

func dialClient(host string, port int, pipelineID, connID uuid.UUID) (net.Conn, error) {
	conn, err := net.Dial("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, fmt.Errorf("proxyserver: dial client %s:%d: %w", host, port, err)
	}
	key := wire.NewStreamKey(pipelineID, connID)
	if _, err := conn.Write(key[:]); err != nil {
		return nil, err
	}
	return conn, nil
}

func acceptEdge(ln net.Listener, expected wire.StreamKey) (net.Conn, error) {
	conn, err := ln.Accept()
	if err != nil {
		return nil, err
	}
	var key [wire.StreamKeySize]byte
	if _, err := io.ReadFull(conn, key[:]); err != nil {
		return nil, err
	}
	if wire.StreamKey(key) != expected {
		_ = conn.Close()
		return nil, fmt.Errorf("proxyserver: stream key mismatch on accepted connection")
	}
	return conn, nil
}
