// SPDX-License-Identifier: MPL-2.0

package wire

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posh/internal/execgraph"
)

func TestWriteReadFrame_SubgraphRequest(t *testing.T) {
	req := SubgraphRequest{
		PipelineID: uuid.New(),
		Nodes: []NodeSpec{
			{ID: execgraph.NodeID(0), Argv: []string{"grep", "foo"}, Env: map[string]string{"PWD": "/m1"}},
		},
		Edges: []EdgeEndpoint{
			{ConnectionID: uuid.New(), Local: false, Src: 0, SrcFD: execgraph.FDStdout, Dst: 1, DstFD: execgraph.FDStdin, SrcIsLocal: true},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, KindSubgraphRequest, req))

	kind, payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindSubgraphRequest, kind)

	var got SubgraphRequest
	require.NoError(t, Decode(payload, &got))
	assert.Equal(t, req, got)
}

func TestWriteReadFrame_MultipleFramesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, KindCancelPipeline, CancelPipeline{PipelineID: uuid.New()}))
	require.NoError(t, WriteFrame(&buf, KindPipelineResult, PipelineResult{PipelineID: uuid.New(), Exits: []NodeExit{{NodeID: 0, ExitCode: 1}}}))

	kind1, p1, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindCancelPipeline, kind1)
	var cancel CancelPipeline
	require.NoError(t, Decode(p1, &cancel))

	kind2, p2, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindPipelineResult, kind2)
	var result PipelineResult
	require.NoError(t, Decode(p2, &result))
	assert.Equal(t, 1, result.Exits[0].ExitCode)
}

func TestNewStreamKey_DeterministicAndDistinct(t *testing.T) {
	pid := uuid.New()
	c1, c2 := uuid.New(), uuid.New()
	k1 := NewStreamKey(pid, c1)
	k1Again := NewStreamKey(pid, c1)
	k2 := NewStreamKey(pid, c2)
	assert.Equal(t, k1, k1Again)
	assert.NotEqual(t, k1, k2)
}

func TestReadFrame_RejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, _, err := ReadFrame(&buf)
	assert.Error(t, err)
}
