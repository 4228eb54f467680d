// SPDX-License-Identifier: MPL-2.0

// Package annotation parses the declarative annotation grammar (one
// CommandDescriptor per non-blank line of an annotation file) into typed
// command descriptors consumed by the invocation parser.
package annotation

import "fmt"

type (
	// ValueType is the type assigned to a parsed argument's value.
	ValueType int

	// SizeKind distinguishes the shape a value_spec's size can take.
	SizeKind int

	// ArgKind distinguishes the three ArgDescriptor shapes.
	ArgKind int

	// CommandFlag is one of the command-level annotation flags.
	CommandFlag string
)

const (
	// InputFile marks a value as a path the command reads from.
	InputFile ValueType = iota
	// OutputFile marks a value as a path the command writes to.
	OutputFile
	// Str marks a value as an opaque string.
	Str
)

func (t ValueType) String() string {
	switch t {
	case InputFile:
		return "input_file"
	case OutputFile:
		return "output_file"
	case Str:
		return "str"
	default:
		return "unknown"
	}
}

const (
	// SizeOne consumes exactly one token.
	SizeOne SizeKind = iota
	// SizeExact consumes exactly N tokens.
	SizeExact
	// SizeList consumes a variable number of tokens, split on Sep.
	SizeList
)

const (
	// Flag is a bare on/off switch; never carries a ValueSpec.
	Flag ArgKind = iota
	// OptParam is a named option that takes a value.
	OptParam
	// Param is a positional argument.
	Param
)

const (
	// NeedsCurrentDir marks a command as relying on the client's cwd implicitly.
	NeedsCurrentDir CommandFlag = "needs_current_dir"
	// SplittableAcrossInput marks a command as safe to run as parallel clones over a split stdin.
	SplittableAcrossInput CommandFlag = "splittable_across_input"
	// FiltersInput marks a command whose output is typically smaller than its input.
	FiltersInput CommandFlag = "filters_input"
	// LongArgsSingleDash marks a command whose long options use a single leading dash.
	LongArgsSingleDash CommandFlag = "long_args_single_dash"
	// ReadsStdin marks a command as accepting piped input.
	ReadsStdin CommandFlag = "reads_stdin"
)

// ValidCommandFlags lists every flag keyword recognized inside a descriptor's flaglist.
var ValidCommandFlags = map[CommandFlag]bool{
	NeedsCurrentDir:        true,
	SplittableAcrossInput:  true,
	FiltersInput:           true,
	LongArgsSingleDash:     true,
	ReadsStdin:             true,
}

type (
	// Size is the size component of a ValueSpec.
	Size struct {
		Kind SizeKind
		N    int  // valid when Kind == SizeExact
		Sep  rune // valid when Kind == SizeList
	}

	// ValueSpec describes the type and shape of an argument's value.
	ValueSpec struct {
		Type       ValueType
		Size       Size
		Splittable bool
	}

	// ArgDescriptor is one Flag, OptParam, or Param entry of a CommandDescriptor.
	ArgDescriptor struct {
		Kind  ArgKind
		Short string // single character, empty if unset
		Long  string // identifier, empty if unset
		Value ValueSpec

		// hasType/hasSize record whether the "type:"/"size:" attributes were
		// present in the source line, independent of ValueSpec's zero values
		// (ValueType(0) == InputFile, so absence can't be inferred from Value alone).
		hasType bool
		hasSize bool
	}

	// CommandDescriptor is one parsed annotation entry.
	CommandDescriptor struct {
		CommandName string
		Flags       map[CommandFlag]bool
		Args        []ArgDescriptor
	}
)

// HasFlag reports whether the descriptor carries the given command-level flag.
func (d *CommandDescriptor) HasFlag(f CommandFlag) bool {
	return d.Flags[f]
}

// FlagArgs returns the descriptor's Flag-kind arguments in declared order.
func (d *CommandDescriptor) FlagArgs() []ArgDescriptor {
	return d.argsOfKind(Flag)
}

// OptParamArgs returns the descriptor's OptParam-kind arguments in declared order.
func (d *CommandDescriptor) OptParamArgs() []ArgDescriptor {
	return d.argsOfKind(OptParam)
}

// ParamArgs returns the descriptor's Param-kind arguments in declared order.
func (d *CommandDescriptor) ParamArgs() []ArgDescriptor {
	return d.argsOfKind(Param)
}

func (d *CommandDescriptor) argsOfKind(k ArgKind) []ArgDescriptor {
	var out []ArgDescriptor
	for _, a := range d.Args {
		if a.Kind == k {
			out = append(out, a)
		}
	}
	return out
}

func (s Size) String() string {
	switch s.Kind {
	case SizeOne:
		return "1"
	case SizeExact:
		return fmt.Sprintf("specific_size(%d)", s.N)
	case SizeList:
		return fmt.Sprintf("list(list_separator:(%c))", s.Sep)
	default:
		return "unknown"
	}
}
