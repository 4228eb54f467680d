// SPDX-License-Identifier: MPL-2.0

package mount

import (
	"path/filepath"
	"strings"
)

// Entry is one (proxy_id, client_mount_prefix) row of the mount table.
type Entry struct {
	Location Location
	Prefix   string
}

// Table is the ordered mount table of spec.md §3. It is read-only after
// construction (spec.md §3 "Lifecycles").
type Table struct {
	entries []Entry
}

// NewTable builds a Table from entries in the order given. Longest-prefix match
// at resolution time makes declaration order irrelevant to correctness;
// order is kept only for deterministic tie-breaking among equal-length
// prefixes, which should not occur in a well-formed mount file.
func NewTable(entries []Entry) *Table {
	return &Table{entries: entries}
}

// Resolution is the outcome of resolving one path against the mount table.
type Resolution struct {
	// Local is true when no mount entry's prefix matches; the file lives
	// only on the client.
	Local bool
	// Location is the owning proxy when !Local.
	Location Location
	// Canonical is the textually canonicalized absolute path.
	Canonical string
	// RemoteSuffix is Canonical with the matched prefix stripped, valid when !Local.
	RemoteSuffix string
}

// Canonicalize implements spec.md §4.3 step 1: purely textual
// canonicalization. Relative paths are joined against cwd; "." and ".."
// are collapsed textually. The path is never required to exist, since
// output files may not exist yet (spec.md §9).
func Canonicalize(path, cwd string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	return filepath.Clean(path)
}

// Resolve implements spec.md §4.3 step 2: longest-prefix match against the
// mount table. An unmatched path resolves to Local with no error
// (UnresolvablePath, spec.md §7, is not a fatal condition).
func (t *Table) Resolve(path, cwd string) Resolution {
	canon := Canonicalize(path, cwd)

	bestLen := -1
	var best Entry
	for _, e := range t.entries {
		if !isPrefixMatch(canon, e.Prefix) {
			continue
		}
		if len(e.Prefix) > bestLen {
			bestLen = len(e.Prefix)
			best = e
		}
	}
	if bestLen < 0 {
		return Resolution{Local: true, Canonical: canon}
	}

	suffix := strings.TrimPrefix(canon, best.Prefix)
	suffix = strings.TrimPrefix(suffix, string(filepath.Separator))
	if suffix == "" {
		suffix = "."
	}
	return Resolution{
		Local:        false,
		Location:     best.Location,
		Canonical:    canon,
		RemoteSuffix: suffix,
	}
}

// isPrefixMatch reports whether prefix is a directory-boundary-respecting
// prefix of path: either an exact match, or followed by a path separator.
func isPrefixMatch(path, prefix string) bool {
	prefix = filepath.Clean(prefix)
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(filepath.Separator))
}

// Entries returns the table's entries in declaration order.
func (t *Table) Entries() []Entry {
	return t.entries
}
