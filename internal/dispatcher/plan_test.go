// SPDX-License-Identifier: MPL-2.0

package dispatcher

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posh/internal/execgraph"
	"posh/internal/mount"
)

// twoStageGraph builds cat(Proxy1) | grep(Client), the shape of spec.md
// §8 scenario 2 once collapsed by a single pipe-crossing Tcp edge.
func twoStageGraph() *execgraph.Graph {
	g := &execgraph.Graph{
		ProcessNodes: []execgraph.ProcessNode{
			{ID: 0, Location: mount.Proxy("10.0.0.1"), Argv: []string{"cat", "/srv/posh/a.txt"}},
			{ID: 1, Location: mount.Client(), Argv: []string{"grep", "foo"}},
		},
	}
	g.Edges = []execgraph.StreamEdge{
		{ID: 2, Src: 0, SrcFD: execgraph.FDStdout, Dst: 1, DstFD: execgraph.FDStdin, Transport: execgraph.Transport{Kind: execgraph.Tcp, ConnectionID: uuid.New()}},
	}
	return g
}

func TestNodesForProxy_OnlyReturnsThatProxysNodes(t *testing.T) {
	g := twoStageGraph()
	ids := nodesForProxy(g, "10.0.0.1")
	require.Len(t, ids, 1)
	assert.Equal(t, execgraph.NodeID(0), ids[0])
}

func TestClientLocalNodeIDs_ExcludesProxyNodes(t *testing.T) {
	g := twoStageGraph()
	ids := clientLocalNodeIDs(g)
	require.Len(t, ids, 1)
	assert.Equal(t, execgraph.NodeID(1), ids[0])
}

func TestClientUpstreamEdges_EmptyWhenProxyIsUpstream(t *testing.T) {
	g := twoStageGraph()
	assert.Empty(t, clientUpstreamEdges(g))
}

func TestClientUpstreamEdges_FindsClientProducedRemoteConsumedEdge(t *testing.T) {
	connID := uuid.New()
	g := &execgraph.Graph{
		ProcessNodes: []execgraph.ProcessNode{
			{ID: 0, Location: mount.Client(), Argv: []string{"printf", "x"}},
			{ID: 1, Location: mount.Proxy("10.0.0.2"), Argv: []string{"sort"}},
		},
		Edges: []execgraph.StreamEdge{
			{ID: 2, Src: 0, SrcFD: execgraph.FDStdout, Dst: 1, DstFD: execgraph.FDStdin, Transport: execgraph.Transport{Kind: execgraph.Tcp, ConnectionID: connID}},
		},
	}
	edges := clientUpstreamEdges(g)
	require.Len(t, edges, 1)
	assert.Equal(t, connID, edges[0].Transport.ConnectionID)
}

func TestBuildSubgraphRequest_OwnedNodeAndEdge(t *testing.T) {
	g := twoStageGraph()
	connID := g.Edges[0].Transport.ConnectionID

	req := buildSubgraphRequest(uuid.New(), g, "10.0.0.1", nil)
	require.Len(t, req.Nodes, 1)
	assert.Equal(t, execgraph.NodeID(0), req.Nodes[0].ID)
	require.Len(t, req.Edges, 1)
	assert.Equal(t, connID, req.Edges[0].ConnectionID)
	assert.True(t, req.Edges[0].SrcIsLocal)
	assert.False(t, req.Edges[0].DstIsLocal)
}

func TestBuildSubgraphRequest_CarriesClientPortForClientUpstreamEdge(t *testing.T) {
	connID := uuid.New()
	g := &execgraph.Graph{
		ProcessNodes: []execgraph.ProcessNode{
			{ID: 0, Location: mount.Client(), Argv: []string{"printf", "x"}},
			{ID: 1, Location: mount.Proxy("10.0.0.2"), Argv: []string{"sort"}},
		},
		Edges: []execgraph.StreamEdge{
			{ID: 2, Src: 0, SrcFD: execgraph.FDStdout, Dst: 1, DstFD: execgraph.FDStdin, Transport: execgraph.Transport{Kind: execgraph.Tcp, ConnectionID: connID}},
		},
	}
	req := buildSubgraphRequest(uuid.New(), g, "10.0.0.2", map[uuid.UUID]int{connID: 5555})
	assert.Equal(t, 5555, req.ClientPorts[connID])
}

func TestProxyIPs_SortedDistinctProxies(t *testing.T) {
	g := &execgraph.Graph{
		ProcessNodes: []execgraph.ProcessNode{
			{ID: 0, Location: mount.Proxy("10.0.0.2")},
			{ID: 1, Location: mount.Proxy("10.0.0.1")},
		},
	}
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, proxyIPs(g))
}
