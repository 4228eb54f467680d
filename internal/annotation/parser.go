// SPDX-License-Identifier: MPL-2.0

package annotation

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLine parses one non-blank, non-comment annotation line into a
// CommandDescriptor. lineNo is used only to decorate returned errors.
func ParseLine(line string, lineNo int) (*CommandDescriptor, error) {
	sc := newScanner(line)
	desc, err := parseDescriptor(sc)
	if err != nil {
		return nil, &BadAnnotationError{Line: lineNo, Source: line, Reason: err.Error()}
	}
	if err := validate(desc); err != nil {
		return nil, &BadAnnotationError{Line: lineNo, Source: line, Reason: err.Error()}
	}
	return desc, nil
}

func parseDescriptor(sc *scanner) (*CommandDescriptor, error) {
	raw := sc.readUntilAny("[:")
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return nil, fmt.Errorf("missing command name")
	}

	flags := make(map[CommandFlag]bool)
	sc.skipWS()
	if sc.peek() == '[' {
		sc.next()
		for {
			sc.skipWS()
			kw := sc.readIdent()
			if kw == "" {
				return nil, fmt.Errorf("expected flag keyword, got %q", sc.remainder())
			}
			fk := CommandFlag(kw)
			if !ValidCommandFlags[fk] {
				return nil, fmt.Errorf("unknown command flag %q", kw)
			}
			flags[fk] = true
			sc.skipWS()
			if sc.peek() == ',' {
				sc.next()
				continue
			}
			break
		}
		if err := sc.expect(']'); err != nil {
			return nil, err
		}
	}

	if err := sc.expect(':'); err != nil {
		return nil, err
	}

	var args []ArgDescriptor
	for {
		sc.skipWS()
		if sc.eof() {
			break
		}
		blockName := sc.readIdent()
		if blockName == "" {
			return nil, fmt.Errorf("expected FLAGS/OPTPARAMS/PARAMS, got %q", sc.remainder())
		}
		kind, err := kindForBlock(blockName)
		if err != nil {
			return nil, err
		}
		if err := sc.expect(':'); err != nil {
			return nil, err
		}
		if err := sc.expect('['); err != nil {
			return nil, err
		}
		sc.skipWS()
		if sc.peek() != ']' {
			for {
				if err := sc.expect('('); err != nil {
					return nil, err
				}
				arg, err := parseArg(sc, kind)
				if err != nil {
					return nil, err
				}
				if err := sc.expect(')'); err != nil {
					return nil, err
				}
				args = append(args, arg)
				sc.skipWS()
				if sc.peek() == ',' {
					sc.next()
					continue
				}
				break
			}
		}
		if err := sc.expect(']'); err != nil {
			return nil, err
		}
	}

	return &CommandDescriptor{CommandName: name, Flags: flags, Args: args}, nil
}

func kindForBlock(name string) (ArgKind, error) {
	switch name {
	case "FLAGS":
		return Flag, nil
	case "OPTPARAMS":
		return OptParam, nil
	case "PARAMS":
		return Param, nil
	default:
		return 0, fmt.Errorf("unknown argument block %q", name)
	}
}

func parseArg(sc *scanner, kind ArgKind) (ArgDescriptor, error) {
	arg := ArgDescriptor{Kind: kind}
	var hasType, hasSize bool

	for {
		sc.skipWS()
		if sc.peek() == ')' {
			break
		}
		key := sc.readIdent()
		if key == "" {
			return arg, fmt.Errorf("expected attribute, got %q", sc.remainder())
		}
		if key == "splittable" {
			arg.Value.Splittable = true
		} else {
			if err := sc.expect(':'); err != nil {
				return arg, err
			}
			sc.skipWS()
			switch key {
			case "short":
				arg.Short = sc.readWhile(func(b byte) bool { return b != ',' && b != ')' })
			case "long":
				arg.Long = sc.readIdent()
			case "type":
				t := sc.readIdent()
				vt, err := parseValueType(t)
				if err != nil {
					return arg, err
				}
				arg.Value.Type = vt
				hasType = true
			case "size":
				sz, err := parseSize(sc)
				if err != nil {
					return arg, err
				}
				arg.Value.Size = sz
				hasSize = true
			case "list_separator":
				sep, err := parseParenChar(sc)
				if err != nil {
					return arg, err
				}
				arg.Value.Size = Size{Kind: SizeList, Sep: sep}
				hasSize = true
			default:
				return arg, fmt.Errorf("unknown attribute %q", key)
			}
		}
		sc.skipWS()
		if sc.peek() == ',' {
			sc.next()
			continue
		}
		break
	}

	arg.hasType, arg.hasSize = hasType, hasSize
	return arg, nil
}

func parseValueType(t string) (ValueType, error) {
	switch t {
	case "input_file":
		return InputFile, nil
	case "output_file":
		return OutputFile, nil
	case "str":
		return Str, nil
	default:
		return 0, fmt.Errorf("unknown value type %q", t)
	}
}

func parseSize(sc *scanner) (Size, error) {
	sc.skipWS()
	if isDigit(sc.peek()) {
		numStr := sc.readWhile(isDigit)
		if numStr != "1" {
			return Size{}, fmt.Errorf("bare numeric size must be 1, got %q", numStr)
		}
		return Size{Kind: SizeOne}, nil
	}

	ident := sc.readIdent()
	switch ident {
	case "specific_size":
		if err := sc.expect('('); err != nil {
			return Size{}, err
		}
		sc.skipWS()
		numStr := sc.readWhile(isDigit)
		n, err := strconv.Atoi(numStr)
		if err != nil || n < 1 {
			return Size{}, fmt.Errorf("invalid specific_size value %q", numStr)
		}
		if err := sc.expect(')'); err != nil {
			return Size{}, err
		}
		return Size{Kind: SizeExact, N: n}, nil
	case "list":
		if err := sc.expect('('); err != nil {
			return Size{}, err
		}
		sc.skipWS()
		key := sc.readIdent()
		if key != "list_separator" {
			return Size{}, fmt.Errorf("expected list_separator in list(), got %q", key)
		}
		if err := sc.expect(':'); err != nil {
			return Size{}, err
		}
		sep, err := parseParenChar(sc)
		if err != nil {
			return Size{}, err
		}
		if err := sc.expect(')'); err != nil {
			return Size{}, err
		}
		return Size{Kind: SizeList, Sep: sep}, nil
	default:
		return Size{}, fmt.Errorf("unknown size specifier %q", ident)
	}
}

// parseParenChar parses "(" char ")" and returns the single character.
func parseParenChar(sc *scanner) (rune, error) {
	if err := sc.expect('('); err != nil {
		return 0, err
	}
	if sc.eof() {
		return 0, fmt.Errorf("expected separator character, got <eof>")
	}
	ch := sc.next()
	if err := sc.expect(')'); err != nil {
		return 0, err
	}
	return rune(ch), nil
}
