// SPDX-License-Identifier: MPL-2.0

package execgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckWellFormed_AcyclicGraphPasses(t *testing.T) {
	g := &Graph{
		ProcessNodes: []ProcessNode{{ID: 0}, {ID: 1}},
		Edges: []StreamEdge{
			{ID: 2, Src: 0, SrcFD: FDStdout, Dst: 1, DstFD: FDStdin},
		},
	}
	assert.NoError(t, checkWellFormed(g))
}

func TestCheckWellFormed_CycleIsRejected(t *testing.T) {
	g := &Graph{
		ProcessNodes: []ProcessNode{{ID: 0}, {ID: 1}},
		Edges: []StreamEdge{
			{ID: 2, Src: 0, SrcFD: FDStdout, Dst: 1, DstFD: FDStdin},
			{ID: 3, Src: 1, SrcFD: FDStdout, Dst: 0, DstFD: FDStdin},
		},
	}
	err := checkWellFormed(g)
	require.Error(t, err)
	var malformed *MalformedGraphError
	require.ErrorAs(t, err, &malformed)
}

func TestCheckWellFormed_StdinFanInIsRejected(t *testing.T) {
	g := &Graph{
		ProcessNodes: []ProcessNode{{ID: 0}, {ID: 1}, {ID: 2}},
		Edges: []StreamEdge{
			{ID: 3, Src: 0, SrcFD: FDStdout, Dst: 2, DstFD: FDStdin},
			{ID: 4, Src: 1, SrcFD: FDStdout, Dst: 2, DstFD: FDStdin},
		},
	}
	require.Error(t, checkWellFormed(g))
}

func TestCheckWellFormed_AggregatorIsExemptFromStdinFanInLimit(t *testing.T) {
	g := &Graph{
		ProcessNodes: []ProcessNode{{ID: 0}, {ID: 1}},
		Aggregators:  []AggregatorNode{{ID: 2, CloneOrder: []NodeID{0, 1}}},
		Edges: []StreamEdge{
			{ID: 3, Src: 0, SrcFD: FDStdout, Dst: 2, DstFD: FDStdin},
			{ID: 4, Src: 1, SrcFD: FDStdout, Dst: 2, DstFD: FDStdin},
		},
	}
	assert.NoError(t, checkWellFormed(g))
}

func TestCheckWellFormed_StdoutFanOutIsRejected(t *testing.T) {
	g := &Graph{
		ProcessNodes: []ProcessNode{{ID: 0}, {ID: 1}, {ID: 2}},
		Edges: []StreamEdge{
			{ID: 3, Src: 0, SrcFD: FDStdout, Dst: 1, DstFD: FDStdin},
			{ID: 4, Src: 0, SrcFD: FDStdout, Dst: 2, DstFD: FDStdin},
		},
	}
	require.Error(t, checkWellFormed(g))
}
