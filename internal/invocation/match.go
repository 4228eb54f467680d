// SPDX-License-Identifier: MPL-2.0

package invocation

import (
	"strings"

	"posh/internal/annotation"
)

// Match re-parses tokens (the stage's argv with the command name already
// stripped) against an overload set, trying each descriptor in source
// order and accepting the first total assignment (spec.md §4.2).
//
// Match is pure: the same (overloads, tokens) input always yields the same
// output (spec.md §8 "Overload determinism").
func Match(overloads []*annotation.CommandDescriptor, tokens []string) ([]Token, *annotation.CommandDescriptor, error) {
	if len(overloads) == 0 {
		return nil, nil, &NoMatchError{CommandName: "", Attempts: nil}
	}

	var attempts []error
	for _, d := range overloads {
		toks, err := matchOne(d, tokens)
		if err == nil {
			return toks, d, nil
		}
		attempts = append(attempts, err)
	}
	return nil, nil, &NoMatchError{CommandName: overloads[0].CommandName, Attempts: attempts}
}

type lookupTables struct {
	byLong  map[string]*annotation.ArgDescriptor
	byShort map[string]*annotation.ArgDescriptor
}

func buildLookupTables(d *annotation.CommandDescriptor) *lookupTables {
	t := &lookupTables{byLong: make(map[string]*annotation.ArgDescriptor), byShort: make(map[string]*annotation.ArgDescriptor)}
	for i := range d.Args {
		a := &d.Args[i]
		if a.Kind == annotation.Param {
			continue
		}
		if a.Long != "" {
			t.byLong[a.Long] = a
		}
		if a.Short != "" {
			t.byShort[a.Short] = a
		}
	}
	return t
}

// lookupKey implements spec.md §4.2 step 1, plus the single-dash
// long-name-first order documented in SPEC_FULL.md's supplemented
// features (grounded on original_source's check_matches_long_option).
func (t *lookupTables) lookupKey(tok string, longArgSingleDash bool) *annotation.ArgDescriptor {
	switch {
	case strings.HasPrefix(tok, "--"):
		return t.byLong[tok[2:]]
	case strings.HasPrefix(tok, "-"):
		name := tok[1:]
		if longArgSingleDash {
			if a := t.byLong[name]; a != nil {
				return a
			}
			return t.byShort[name]
		}
		return t.byShort[name]
	default:
		return nil
	}
}

func (t *lookupTables) isRecognizedKey(tok string, longArgSingleDash bool) bool {
	return t.lookupKey(tok, longArgSingleDash) != nil
}

func matchOne(d *annotation.CommandDescriptor, tokens []string) ([]Token, error) {
	tables := buildLookupTables(d)
	longArgSingleDash := d.HasFlag(annotation.LongArgsSingleDash)
	params := d.ParamArgs()

	var out []Token
	pos := 0
	paramIdx := 0

	for pos < len(tokens) {
		tok := tokens[pos]

		if arg := tables.lookupKey(tok, longArgSingleDash); arg != nil {
			name := argName(arg)
			switch arg.Kind {
			case annotation.Flag:
				out = append(out, Token{Raw: tok, Kind: FlagKind, Name: name})
				pos++
			case annotation.OptParam:
				toks, consumed, err := consumeValueBlock(tokens, pos+1, arg.Value, tables, longArgSingleDash)
				if err != nil {
					return nil, err
				}
				out = append(out, Token{Raw: tok, Kind: OptParamKeyKind, Name: name})
				out = append(out, toks...)
				pos += 1 + consumed
			}
			continue
		}

		// A dash-prefixed token that names no flag/optparam of this
		// descriptor is an unannotated flag, not a positional value.
		if len(tok) > 1 && strings.HasPrefix(tok, "-") {
			return nil, &UnknownArgumentError{Token: tok, Pos: pos}
		}

		if paramIdx < len(params) {
			param := &params[paramIdx]
			toks, consumed, err := consumeValueBlock(tokens, pos, param.Value, tables, longArgSingleDash)
			if err != nil {
				return nil, err
			}
			out = append(out, toks...)
			pos += consumed
			paramIdx++
			continue
		}

		return nil, &UnknownArgumentError{Token: tok, Pos: pos}
	}

	if paramIdx != len(params) {
		missing := params[paramIdx]
		return nil, &TooFewValuesError{Arg: paramLabel(&missing), Wanted: 1, Got: 0}
	}

	return out, nil
}

func argName(a *annotation.ArgDescriptor) string {
	if a.Long != "" {
		return a.Long
	}
	return a.Short
}

func paramLabel(a *annotation.ArgDescriptor) string {
	return "positional param of type " + a.Value.Type.String()
}

// consumeValueBlock implements spec.md §4.2's "Value block consumption".
// It returns the typed tokens produced and how many raw tokens were consumed.
func consumeValueBlock(tokens []string, pos int, vs annotation.ValueSpec, tables *lookupTables, longArgSingleDash bool) ([]Token, int, error) {
	kind := kindForType(vs.Type)

	switch vs.Size.Kind {
	case annotation.SizeOne:
		if pos >= len(tokens) {
			return nil, 0, &TooFewValuesError{Arg: vs.Type.String(), Wanted: 1, Got: 0}
		}
		return []Token{newValueToken(tokens[pos], kind, vs.Type, vs.Splittable)}, 1, nil

	case annotation.SizeExact:
		n := vs.Size.N
		if pos+n > len(tokens) {
			return nil, 0, &TooFewValuesError{Arg: vs.Type.String(), Wanted: n, Got: len(tokens) - pos}
		}
		toks := make([]Token, n)
		for i := 0; i < n; i++ {
			toks[i] = newValueToken(tokens[pos+i], kind, vs.Type, vs.Splittable)
		}
		return toks, n, nil

	case annotation.SizeList:
		if vs.Size.Sep == ' ' {
			end := pos
			for end < len(tokens) && !tables.isRecognizedKey(tokens[end], longArgSingleDash) {
				end++
			}
			if end == pos {
				return nil, 0, &TooFewValuesError{Arg: vs.Type.String(), Wanted: 1, Got: 0}
			}
			toks := make([]Token, end-pos)
			for i := pos; i < end; i++ {
				toks[i-pos] = newValueToken(tokens[i], kind, vs.Type, vs.Splittable)
			}
			return toks, end - pos, nil
		}

		if pos >= len(tokens) {
			return nil, 0, &TooFewValuesError{Arg: vs.Type.String(), Wanted: 1, Got: 0}
		}
		raw := tokens[pos]
		values := strings.Split(raw, string(vs.Size.Sep))
		return []Token{{
			Raw:        raw,
			Kind:       ListSepKind,
			Type:       vs.Type,
			Values:     values,
			Splittable: vs.Splittable,
		}}, 1, nil
	}

	return nil, 0, &UnknownArgumentError{Token: tokens[pos], Pos: pos}
}

func newValueToken(raw string, kind TokenKind, t annotation.ValueType, splittable bool) Token {
	return Token{Raw: raw, Kind: kind, Type: t, Values: []string{raw}, Splittable: splittable}
}

func kindForType(t annotation.ValueType) TokenKind {
	switch t {
	case annotation.InputFile:
		return InputFileKind
	case annotation.OutputFile:
		return OutputFileKind
	default:
		return StrKind
	}
}
