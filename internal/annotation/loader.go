// SPDX-License-Identifier: MPL-2.0

package annotation

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Table holds the overload sets for every command name seen in an
// annotation file, preserving source order within each overload set.
type Table struct {
	overloads map[string][]*CommandDescriptor
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{overloads: make(map[string][]*CommandDescriptor)}
}

// Lookup returns the overload set for a command name, or nil if the
// command has no annotation (the caller should fall back to local,
// unmodified execution per spec.md §1/§7 NoMatch disposition).
func (t *Table) Lookup(commandName string) []*CommandDescriptor {
	return t.overloads[commandName]
}

// Add appends a descriptor to its command's overload set, preserving
// source order. Descriptors are immutable once loaded (spec.md §3).
func (t *Table) Add(d *CommandDescriptor) {
	t.overloads[d.CommandName] = append(t.overloads[d.CommandName], d)
}

// Len returns the number of distinct command names in the table.
func (t *Table) Len() int {
	return len(t.overloads)
}

// LoadFile parses an annotation file (spec.md §4.1/§6: UTF-8 text, one
// descriptor per non-empty non-'#' line) into a Table.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadReader(f)
}

// LoadReader parses an annotation file's contents from an io.Reader.
func LoadReader(r io.Reader) (*Table, error) {
	table := NewTable()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		desc, err := ParseLine(line, lineNo)
		if err != nil {
			return nil, err
		}
		table.Add(desc)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return table, nil
}
