// SPDX-License-Identifier: MPL-2.0

package proxyserver

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posh/internal/execgraph"
	"posh/internal/wire"
)

func startTestServer(t *testing.T, folder string) (addr string, stop func()) {
	t.Helper()
	s := New(Config{IPAddress: "127.0.0.1", Folder: folder, Port: 0}, log.New(io.Discard))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s.ln = ln
	s.running.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.handleConn(ctx, conn)
		}
	}()
	return ln.Addr().String(), func() {
		cancel()
		_ = ln.Close()
		<-done
	}
}

func TestHandleConn_RunsNodeAndReportsExit(t *testing.T) {
	addr, stop := startTestServer(t, t.TempDir())
	defer stop()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	nodeID := execgraph.NodeID(1)
	req := wire.SubgraphRequest{
		PipelineID: uuid.New(),
		Nodes:      []wire.NodeSpec{{ID: nodeID, Argv: []string{"true"}}},
	}
	require.NoError(t, wire.WriteFrame(conn, wire.KindSubgraphRequest, req))

	kind, payload, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, wire.KindSubgraphAck, kind)
	var ack wire.SubgraphAck
	require.NoError(t, wire.Decode(payload, &ack))
	assert.Equal(t, req.PipelineID, ack.PipelineID)

	kind, payload, err = wire.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, wire.KindPipelineResult, kind)
	var result wire.PipelineResult
	require.NoError(t, wire.Decode(payload, &result))
	require.Len(t, result.Exits, 1)
	assert.Equal(t, nodeID, result.Exits[0].NodeID)
	assert.Equal(t, 0, result.Exits[0].ExitCode)
}

func TestHandleConn_WritesFileNodeToFolder(t *testing.T) {
	dir := t.TempDir()
	addr, stop := startTestServer(t, dir)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	outPath := filepath.Join(dir, "out.txt")
	procID := execgraph.NodeID(1)
	fileID := execgraph.NodeID(2)
	connID := uuid.New()
	req := wire.SubgraphRequest{
		PipelineID: uuid.New(),
		Nodes:      []wire.NodeSpec{{ID: procID, Argv: []string{"printf", "hi\n"}}},
		Files:      []wire.FileSpec{{ID: fileID, Path: outPath, Write: true}},
		Edges: []wire.EdgeEndpoint{{
			ConnectionID: connID,
			Local:        true,
			Src:          procID, SrcFD: execgraph.FDStdout,
			Dst: fileID, DstFD: execgraph.FDStdin,
		}},
	}
	require.NoError(t, wire.WriteFrame(conn, wire.KindSubgraphRequest, req))

	_, _, err = wire.ReadFrame(conn) // ack
	require.NoError(t, err)
	kind, payload, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, wire.KindPipelineResult, kind)
	var result wire.PipelineResult
	require.NoError(t, wire.Decode(payload, &result))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(data))
}

func TestHandleConn_CancelStopsLongRunningNode(t *testing.T) {
	addr, stop := startTestServer(t, t.TempDir())
	defer stop()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	pipelineID := uuid.New()
	nodeID := execgraph.NodeID(1)
	req := wire.SubgraphRequest{
		PipelineID: pipelineID,
		Nodes:      []wire.NodeSpec{{ID: nodeID, Argv: []string{"sleep", "30"}}},
	}
	require.NoError(t, wire.WriteFrame(conn, wire.KindSubgraphRequest, req))
	_, _, err = wire.ReadFrame(conn) // ack
	require.NoError(t, err)

	require.NoError(t, wire.WriteFrame(conn, wire.KindCancelPipeline, wire.CancelPipeline{PipelineID: pipelineID}))

	resultCh := make(chan wire.PipelineResult, 1)
	go func() {
		_, payload, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		var result wire.PipelineResult
		if wire.Decode(payload, &result) == nil {
			resultCh <- result
		}
	}()

	select {
	case <-resultCh:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline was not cancelled within grace period")
	}
}
