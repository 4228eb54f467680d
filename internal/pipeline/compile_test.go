// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posh/internal/annotation"
	"posh/internal/mount"
)

func testCompiler(t *testing.T, annotationSrc string, mounts map[string]string) *Compiler {
	t.Helper()
	tbl, err := annotation.LoadReader(strings.NewReader(annotationSrc))
	require.NoError(t, err)

	var entries []mount.Entry
	for ip, dir := range mounts {
		entries = append(entries, mount.Entry{Location: mount.Proxy(ip), Prefix: dir})
	}
	cfg := &mount.Config{Table: mount.NewTable(entries), Links: mount.NewLinkHints(), TmpDirs: map[string]string{}}

	return NewCompiler(tbl, cfg, func(ip string) string { return "/srv/" + ip }, 1)
}

func TestCompile_UnannotatedCommandPinsToClient(t *testing.T) {
	c := testCompiler(t, "", nil)
	graphs, env, err := c.Compile(`echo hi`, "/home/u", map[string]string{})
	require.NoError(t, err)
	require.Len(t, graphs, 1)
	require.Len(t, graphs[0].ProcessNodes, 1)
	assert.True(t, graphs[0].ProcessNodes[0].Location.IsClient())
	assert.Empty(t, env)
}

func TestCompile_ExportMutatesEnvWithoutProducingGraph(t *testing.T) {
	c := testCompiler(t, "", nil)
	graphs, env, err := c.Compile(`export FOO=bar; echo hi`, "/home/u", map[string]string{})
	require.NoError(t, err)
	assert.Len(t, graphs, 1)
	assert.Equal(t, "bar", env["FOO"])
}

func TestCompile_MultipleStagesWireIntoOnePipeline(t *testing.T) {
	c := testCompiler(t, "", nil)
	graphs, _, err := c.Compile(`printf foo | grep foo`, "/home/u", map[string]string{})
	require.NoError(t, err)
	require.Len(t, graphs, 1)
	assert.Len(t, graphs[0].ProcessNodes, 2)
	assert.Len(t, graphs[0].Edges, 1)
}
