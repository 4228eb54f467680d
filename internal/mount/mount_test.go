// SPDX-License-Identifier: MPL-2.0

package mount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_ResolveLongestPrefix(t *testing.T) {
	tbl := NewTable([]Entry{
		{Location: Proxy("10.0.0.1"), Prefix: "/data"},
		{Location: Proxy("10.0.0.2"), Prefix: "/data/nested"},
	})

	r := tbl.Resolve("/data/nested/file.txt", "/home")
	require.False(t, r.Local)
	assert.Equal(t, "10.0.0.2", r.Location.IP())
	assert.Equal(t, "file.txt", r.RemoteSuffix)

	r2 := tbl.Resolve("/data/other/file.txt", "/home")
	require.False(t, r2.Local)
	assert.Equal(t, "10.0.0.1", r2.Location.IP())
	assert.Equal(t, "other/file.txt", r2.RemoteSuffix)
}

func TestTable_ResolveUnmatchedIsLocal(t *testing.T) {
	tbl := NewTable([]Entry{{Location: Proxy("10.0.0.1"), Prefix: "/data"}})
	r := tbl.Resolve("/home/user/file.txt", "/home/user")
	assert.True(t, r.Local)
}

func TestTable_ResolveRelativePath(t *testing.T) {
	tbl := NewTable([]Entry{{Location: Proxy("10.0.0.1"), Prefix: "/data"}})
	r := tbl.Resolve("../data/x.txt", "/home")
	require.False(t, r.Local)
	assert.Equal(t, "x.txt", r.RemoteSuffix)
}

func TestTable_PrefixBoundaryNotFooled(t *testing.T) {
	tbl := NewTable([]Entry{{Location: Proxy("10.0.0.1"), Prefix: "/data"}})
	r := tbl.Resolve("/database/x.txt", "/")
	assert.True(t, r.Local, "prefix match must respect directory boundaries")
}

func TestTable_ExactPrefixMatch(t *testing.T) {
	tbl := NewTable([]Entry{{Location: Proxy("10.0.0.1"), Prefix: "/data"}})
	r := tbl.Resolve("/data", "/")
	require.False(t, r.Local)
	assert.Equal(t, ".", r.RemoteSuffix)
}

func TestLoadConfig_Basic(t *testing.T) {
	yamlSrc := []byte(`
mounts:
  10.0.0.1: /data
  10.0.0.2: /scratch
links:
  "(10.0.0.1,10.0.0.2)": 1000
  "(10.0.0.1,client)": 100
tmp_directory:
  10.0.0.1: /tmp/posh
`)
	cfg, err := LoadConfig("test.yaml", yamlSrc)
	require.NoError(t, err)
	require.NotNil(t, cfg.Table)

	r := cfg.Table.Resolve("/data/foo", "/")
	require.False(t, r.Local)
	assert.Equal(t, "10.0.0.1", r.Location.IP())

	mbps, ok := cfg.Links.Lookup(Proxy("10.0.0.2"), Proxy("10.0.0.1"))
	require.True(t, ok)
	assert.Equal(t, 1000, mbps)

	mbps2, ok := cfg.Links.Lookup(Client(), Proxy("10.0.0.1"))
	require.True(t, ok)
	assert.Equal(t, 100, mbps2)

	assert.Equal(t, "/tmp/posh", cfg.TmpDirs["10.0.0.1"])
}

func TestLoadConfig_RejectsEmptyMounts(t *testing.T) {
	_, err := LoadConfig("test.yaml", []byte("mounts: {}\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadMountConfig)
}

func TestLoadConfig_RejectsRelativeMountDir(t *testing.T) {
	_, err := LoadConfig("test.yaml", []byte("mounts:\n  10.0.0.1: data\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadMountConfig)
}

func TestLoadConfig_RejectsMalformedYAML(t *testing.T) {
	_, err := LoadConfig("test.yaml", []byte("mounts: [this, is, not, a, map]\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadMountConfig)
}

func TestParseLinkKey(t *testing.T) {
	a, b, err := ParseLinkKey("(10.0.0.1,10.0.0.2)")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", a.IP())
	assert.Equal(t, "10.0.0.2", b.IP())

	a2, b2, err := ParseLinkKey("(client,10.0.0.1)")
	require.NoError(t, err)
	assert.True(t, a2.IsClient())
	assert.Equal(t, "10.0.0.1", b2.IP())
}

func TestParseLinkKey_Malformed(t *testing.T) {
	_, _, err := ParseLinkKey("10.0.0.1,10.0.0.2")
	require.Error(t, err)
}

func TestLinkHints_UnorderedLookup(t *testing.T) {
	h := NewLinkHints()
	h.Set(Proxy("a"), Client(), 50)
	mbps, ok := h.Lookup(Client(), Proxy("a"))
	require.True(t, ok)
	assert.Equal(t, 50, mbps)
	assert.Equal(t, 1, h.Len())
}
