// SPDX-License-Identifier: MPL-2.0

// Package dispatcher is the client-side Runtime Dispatcher (C7,
// spec.md §4.7): it opens one control connection per proxy an
// ExecutionGraph touches, ships each proxy its subgraph, runs the
// Client-located nodes itself, wires every StreamEdge, and collects the
// pipeline's exit code.
package dispatcher

import (
	"sort"

	"github.com/google/uuid"

	"posh/internal/execgraph"
	"posh/internal/wire"
)

// nodesForProxy returns the ids of every ProcessNode, FileNode and
// Aggregator the graph places on ip, in no particular order.
func nodesForProxy(g *execgraph.Graph, ip string) []execgraph.NodeID {
	var ids []execgraph.NodeID
	for _, n := range g.ProcessNodes {
		if !n.Location.IsClient() && n.Location.IP() == ip {
			ids = append(ids, n.ID)
		}
	}
	for _, n := range g.FileNodes {
		if !n.Location.IsClient() && n.Location.IP() == ip {
			ids = append(ids, n.ID)
		}
	}
	for _, n := range g.Aggregators {
		if !n.Location.IsClient() && n.Location.IP() == ip {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func idSet(ids []execgraph.NodeID) map[execgraph.NodeID]bool {
	m := make(map[execgraph.NodeID]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// clientUpstreamEdges returns the edges whose producing end runs on
// Client and whose consuming end runs on a proxy — these need the
// dispatcher to open the Tcp listener before any SubgraphRequest goes
// out, so its port can be included in that request (spec.md §4.6,
// §6 "Wire protocol").
func clientUpstreamEdges(g *execgraph.Graph) []execgraph.StreamEdge {
	var out []execgraph.StreamEdge
	for _, e := range g.Edges {
		if e.Transport.Kind != execgraph.Tcp {
			continue
		}
		srcLoc, _ := g.NodeLocation(e.Src)
		dstLoc, _ := g.NodeLocation(e.Dst)
		if srcLoc.IsClient() && !dstLoc.IsClient() {
			out = append(out, e)
		}
	}
	return out
}

// buildSubgraphRequest assembles the wire form of the nodes, files and
// edges a given proxy needs to run its share of the pipeline.
// clientPorts supplies the listening ports the dispatcher already
// opened for clientUpstreamEdges destined at this proxy.
func buildSubgraphRequest(pipelineID uuid.UUID, g *execgraph.Graph, ip string, clientPorts map[uuid.UUID]int) wire.SubgraphRequest {
	owned := idSet(nodesForProxy(g, ip))

	req := wire.SubgraphRequest{PipelineID: pipelineID, ClientPorts: map[uuid.UUID]int{}}
	for _, n := range g.ProcessNodes {
		if owned[n.ID] {
			req.Nodes = append(req.Nodes, wire.NodeSpec{ID: n.ID, Argv: n.Argv, Env: n.Env})
		}
	}
	for _, n := range g.FileNodes {
		if owned[n.ID] {
			req.Files = append(req.Files, wire.FileSpec{ID: n.ID, Path: n.Path, Write: n.Write})
		}
	}

	for _, e := range g.Edges {
		if e.Transport.Kind != execgraph.Tcp {
			continue
		}
		srcLoc, _ := g.NodeLocation(e.Src)
		srcHere := owned[e.Src]
		dstHere := owned[e.Dst]
		if !srcHere && !dstHere {
			continue
		}
		req.Edges = append(req.Edges, wire.EdgeEndpoint{
			ConnectionID: e.Transport.ConnectionID,
			Local:        false,
			Src:          e.Src,
			SrcFD:        e.SrcFD,
			Dst:          e.Dst,
			DstFD:        e.DstFD,
			SrcIsLocal:   srcHere,
			DstIsLocal:   dstHere,
		})
		if srcLoc.IsClient() && dstHere {
			if port, ok := clientPorts[e.Transport.ConnectionID]; ok {
				req.ClientPorts[e.Transport.ConnectionID] = port
			}
		}
	}
	for _, e := range g.Edges {
		if e.Transport.Kind != execgraph.LocalPipe {
			continue
		}
		if owned[e.Src] && owned[e.Dst] {
			req.Edges = append(req.Edges, wire.EdgeEndpoint{Local: true, Src: e.Src, SrcFD: e.SrcFD, Dst: e.Dst, DstFD: e.DstFD, SrcIsLocal: true, DstIsLocal: true})
		}
	}

	sort.Slice(req.Nodes, func(i, j int) bool { return req.Nodes[i].ID < req.Nodes[j].ID })
	return req
}

// clientLocalNodeIDs returns the ids of every node the dispatcher itself
// must run: ProcessNodes, Aggregators and FileNodes placed at Client.
func clientLocalNodeIDs(g *execgraph.Graph) []execgraph.NodeID {
	var ids []execgraph.NodeID
	for _, n := range g.ProcessNodes {
		if n.Location.IsClient() {
			ids = append(ids, n.ID)
		}
	}
	for _, n := range g.Aggregators {
		if n.Location.IsClient() {
			ids = append(ids, n.ID)
		}
	}
	for _, n := range g.FileNodes {
		if n.Location.IsClient() {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func proxyIPs(g *execgraph.Graph) []string {
	var ips []string
	for _, l := range g.ProxiesTouched() {
		ips = append(ips, l.IP())
	}
	return ips
}
