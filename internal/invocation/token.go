// SPDX-License-Identifier: MPL-2.0

// Package invocation re-parses a concrete shell-stage invocation through
// the matching CommandDescriptor overload (annotation.Table) to assign a
// TokenType to every argument token (spec.md §4.2).
package invocation

import "posh/internal/annotation"

// TokenKind is the TokenType variant of spec.md §3.
type TokenKind int

const (
	// FlagKind is an assigned Flag token.
	FlagKind TokenKind = iota
	// OptParamKeyKind is an assigned OptParam key token.
	OptParamKeyKind
	// StrKind is an opaque string value.
	StrKind
	// InputFileKind is a value typed as an input file path.
	InputFileKind
	// OutputFileKind is a value typed as an output file path.
	OutputFileKind
	// ListSepKind marks a value produced by splitting a single shell token
	// on a non-space list separator (spec.md §3). The sub-values live in
	// Token.Values; this kind tags the token so downstream consumers know
	// to look there instead of at Raw alone.
	ListSepKind
	// UnknownKind marks a token C2 could not classify. Match never
	// returns it: an unclassifiable token fails the attempt instead.
	UnknownKind
)

// Token is one shell-level lexeme plus its assigned TokenType.
type Token struct {
	// Raw is the original shell-level token text.
	Raw string
	// Kind is the assigned TokenType.
	Kind TokenKind
	// Name is the matched Flag/OptParam's name (long if present, else short),
	// set only when Kind == FlagKind || Kind == OptParamKeyKind.
	Name string
	// Type is the value's ValueType, meaningful for StrKind/InputFileKind/OutputFileKind/ListSepKind.
	Type annotation.ValueType
	// Values holds the token's typed value(s). Exactly one element except
	// for ListSepKind, where Raw was split on a non-space separator.
	Values []string
	// Splittable mirrors the matched ArgDescriptor's Value.Splittable, so
	// C5 can find the splittable argument's tokens without re-matching.
	Splittable bool
}
