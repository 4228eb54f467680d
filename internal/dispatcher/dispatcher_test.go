// SPDX-License-Identifier: MPL-2.0

package dispatcher

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posh/internal/execgraph"
	"posh/internal/mount"
	"posh/internal/scheduler"
	"posh/internal/shellparse"
)

func scheduler0() scheduler.Placement { return scheduler.Placement{Location: mount.Client()} }

func noopDialer(ctx context.Context, ip string) (net.Conn, error) {
	return nil, net.UnknownNetworkError("no proxies expected in this test")
}

func TestRun_AllClientPipelineRedirectsToFile(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.txt")
	tbl := mount.NewTable(nil)
	outRes := tbl.Resolve(outPath, dir)

	stages := []execgraph.StageInput{{
		StageID:   0,
		Argv:      []string{"printf", "hello\n"},
		Placement: scheduler0(),
		Redirs:    []execgraph.RedirInput{{Kind: shellparse.RedirOut, Resolution: outRes}},
	}}

	g, err := execgraph.NewBuilder().Build(stages, nil, mount.Resolution{Local: true}, testRoot)
	require.NoError(t, err)

	d := New(noopDialer, log.New(io.Discard))
	result, err := d.Run(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestRun_TwoStageClientPipeline(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.txt")
	tbl := mount.NewTable(nil)
	outRes := tbl.Resolve(outPath, dir)

	stages := []execgraph.StageInput{
		{StageID: 0, Argv: []string{"printf", "one\ntwo\n"}, Placement: scheduler0()},
		{StageID: 1, Argv: []string{"grep", "two"}, Placement: scheduler0(), Redirs: []execgraph.RedirInput{{Kind: shellparse.RedirOut, Resolution: outRes}}},
	}

	g, err := execgraph.NewBuilder().Build(stages, nil, mount.Resolution{Local: true}, testRoot)
	require.NoError(t, err)

	d := New(noopDialer, log.New(io.Discard))
	result, err := d.Run(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "two\n", string(data))
}

func testRoot(ip string) string { return "/srv/posh" }
