// SPDX-License-Identifier: MPL-2.0

package annotation

import "fmt"

// validate enforces the rules of spec.md §4.1, supplemented by the
// overload-set validation in original_source/shell/src/annotations2/cmd_parser.rs
// (at most one splittable argument, no duplicate short/long names).
func validate(d *CommandDescriptor) error {
	seenNames := make(map[string]bool)
	splittableCount := 0

	for i := range d.Args {
		a := &d.Args[i]

		switch a.Kind {
		case Flag:
			if a.hasType || a.hasSize {
				return fmt.Errorf("a Flag must not carry a type/size value_spec")
			}
			if a.Short == "" && a.Long == "" {
				return fmt.Errorf("a Flag must have at least one of short/long")
			}
		case OptParam:
			if a.Short == "" && a.Long == "" {
				return fmt.Errorf("an OptParam must have at least one of short/long")
			}
			if !a.hasType || !a.hasSize {
				return fmt.Errorf("an OptParam requires both type and size")
			}
		case Param:
			if !a.hasType || !a.hasSize {
				return fmt.Errorf("a Param requires both type and size")
			}
		}

		if a.Value.Size.Kind == SizeList && a.Value.Size.Sep == 0 {
			return fmt.Errorf("list size requires a single-character separator")
		}

		if a.Value.Splittable && isSizeOne(a.Value.Size) {
			return fmt.Errorf("an argument of size 1 cannot be splittable")
		}

		if a.Value.Splittable {
			splittableCount++
		}

		for _, name := range []string{a.Short, a.Long} {
			if name == "" {
				continue
			}
			if seenNames[name] {
				return fmt.Errorf("duplicate short/long name %q within descriptor", name)
			}
			seenNames[name] = true
		}
	}

	if splittableCount > 1 {
		return fmt.Errorf("at most one ArgDescriptor may be splittable, found %d", splittableCount)
	}

	return nil
}

// isSizeOne reports whether size consumes exactly one token: SizeOne
// outright, or SizeExact with N == 1. A splittable argument of either
// shape has nothing to split (original_source/shell/src/annotations2/cmd_parser.rs
// "Cannot have splittable command with size 1").
func isSizeOne(s Size) bool {
	return s.Kind == SizeOne || (s.Kind == SizeExact && s.N == 1)
}
