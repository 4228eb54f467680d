// SPDX-License-Identifier: MPL-2.0

package annotation

import (
	"sort"
	"strings"
)

// Serialize renders a CommandDescriptor back into the annotation grammar's
// surface syntax. It is the inverse of ParseLine, used by the
// "parse(serialize(d)) == d" round-trip property (spec.md §8); attribute
// order within an arg is not guaranteed to match the original source, only
// the parsed structure.
func Serialize(d *CommandDescriptor) string {
	var b strings.Builder
	b.WriteString(d.CommandName)

	if len(d.Flags) > 0 {
		keys := make([]string, 0, len(d.Flags))
		for f := range d.Flags {
			keys = append(keys, string(f))
		}
		sort.Strings(keys)
		b.WriteString("[")
		b.WriteString(strings.Join(keys, ","))
		b.WriteString("]")
	}
	b.WriteString(":")

	for _, block := range []struct {
		name string
		kind ArgKind
	}{
		{"FLAGS", Flag},
		{"OPTPARAMS", OptParam},
		{"PARAMS", Param},
	} {
		args := d.argsOfKind(block.kind)
		b.WriteString(" ")
		b.WriteString(block.name)
		b.WriteString(":[")
		for i, a := range args {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(serializeArg(a))
		}
		b.WriteString("]")
	}

	return b.String()
}

func serializeArg(a ArgDescriptor) string {
	var parts []string
	if a.Short != "" {
		parts = append(parts, "short:"+a.Short)
	}
	if a.Long != "" {
		parts = append(parts, "long:"+a.Long)
	}
	if a.hasType {
		parts = append(parts, "type:"+a.Value.Type.String())
	}
	if a.hasSize {
		parts = append(parts, "size:"+a.Value.Size.String())
	}
	if a.Value.Splittable {
		parts = append(parts, "splittable")
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Equal reports whether two descriptors are structurally equivalent,
// ignoring attribute-order and command-flag-order differences.
func Equal(a, b *CommandDescriptor) bool {
	if a.CommandName != b.CommandName {
		return false
	}
	if len(a.Flags) != len(b.Flags) {
		return false
	}
	for k, v := range a.Flags {
		if b.Flags[k] != v {
			return false
		}
	}
	if len(a.Args) != len(b.Args) {
		return false
	}
	for i := range a.Args {
		if !argEqual(a.Args[i], b.Args[i]) {
			return false
		}
	}
	return true
}

func argEqual(a, b ArgDescriptor) bool {
	return a.Kind == b.Kind && a.Short == b.Short && a.Long == b.Long &&
		a.hasType == b.hasType && a.hasSize == b.hasSize &&
		a.Value.Type == b.Value.Type && a.Value.Size == b.Value.Size &&
		a.Value.Splittable == b.Value.Splittable
}
