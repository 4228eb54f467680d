// SPDX-License-Identifier: MPL-2.0

package shellparse

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ParseLine parses one line of input against the grammar in spec.md §4.4,
// grounded on invowk's use of mvdan.cc/sh/v3/syntax to tokenize POSIX
// command lines (internal/runtime/virtual.go): the AST does the quoting
// and redirection work, and this function rejects every node shape the
// restricted grammar doesn't admit instead of hand-rolling a tokenizer.
func ParseLine(line string) (*Line, error) {
	f, err := syntax.NewParser().Parse(strings.NewReader(line), "line")
	if err != nil {
		return nil, &ShellParseError{Source: line, Reason: err.Error()}
	}

	out := &Line{}
	for _, stmt := range f.Stmts {
		s, err := parseTopStmt(line, stmt)
		if err != nil {
			return nil, err
		}
		out.Stmts = append(out.Stmts, s)
	}
	return out, nil
}

// parseTopStmt parses one `export | pipeline` alternative.
func parseTopStmt(src string, stmt *syntax.Stmt) (Stmt, error) {
	if err := rejectModifiers(src, stmt); err != nil {
		return Stmt{}, err
	}

	if decl, ok := stmt.Cmd.(*syntax.DeclClause); ok && decl.Variant != nil && decl.Variant.Value == "export" {
		if len(decl.Args) != 1 || decl.Args[0].Name == nil || decl.Args[0].Naked || len(stmt.Redirs) != 0 {
			return Stmt{}, &ShellParseError{Source: src, Reason: "export takes exactly one ident=word argument"}
		}
		value := ""
		if decl.Args[0].Value != nil {
			v, err := litWord(src, decl.Args[0].Value)
			if err != nil {
				return Stmt{}, err
			}
			value = v
		}
		return Stmt{Kind: ExportStmt, Export: Export{Name: decl.Args[0].Name.Value, Value: value}}, nil
	}

	if call, ok := stmt.Cmd.(*syntax.CallExpr); ok {
		if exp, isExport, err := tryParseExport(src, stmt, call); err != nil {
			return Stmt{}, err
		} else if isExport {
			return Stmt{Kind: ExportStmt, Export: exp}, nil
		}
	}

	stages, err := collectStages(src, stmt)
	if err != nil {
		return Stmt{}, err
	}
	return Stmt{Kind: PipelineStmt, Pipeline: Pipeline{Stages: stages}}, nil
}

// tryParseExport recognizes `export ident "=" word` as a bare CallExpr
// whose first argument literal is "export" and second is "ident=word".
func tryParseExport(src string, stmt *syntax.Stmt, call *syntax.CallExpr) (Export, bool, error) {
	if len(call.Assigns) != 0 {
		return Export{}, false, &ShellParseError{Source: src, Reason: "bare assignment is not permitted; use export"}
	}
	if len(call.Args) == 0 {
		return Export{}, false, nil
	}
	head, err := litWord(src, call.Args[0])
	if err != nil || head != "export" {
		return Export{}, false, nil
	}
	if len(call.Args) != 2 {
		return Export{}, false, &ShellParseError{Source: src, Reason: "export takes exactly one ident=word argument"}
	}
	if len(stmt.Redirs) != 0 {
		return Export{}, false, &ShellParseError{Source: src, Reason: "export does not accept redirections"}
	}
	body, err := litWord(src, call.Args[1])
	if err != nil {
		return Export{}, false, err
	}
	name, value, ok := strings.Cut(body, "=")
	if !ok || name == "" {
		return Export{}, false, &ShellParseError{Source: src, Reason: "export requires ident=word"}
	}
	if !isValidIdent(name) {
		return Export{}, false, &ShellParseError{Source: src, Reason: "export name \"" + name + "\" is not a valid identifier"}
	}
	return Export{Name: name, Value: value}, true, nil
}

// collectStages flattens a left-associative chain of pipe BinaryCmds into
// an ordered list of Stage values.
func collectStages(src string, stmt *syntax.Stmt) ([]Stage, error) {
	if err := rejectModifiers(src, stmt); err != nil {
		return nil, err
	}

	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		st, err := parseStage(src, stmt, cmd)
		if err != nil {
			return nil, err
		}
		return []Stage{st}, nil

	case *syntax.BinaryCmd:
		if cmd.Op != syntax.Pipe {
			return nil, &ShellParseError{Source: src, Reason: "only \"|\" pipelines are permitted, not \"" + cmd.Op.String() + "\""}
		}
		left, err := collectStages(src, cmd.X)
		if err != nil {
			return nil, err
		}
		right, err := collectStages(src, cmd.Y)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil

	default:
		return nil, &ShellParseError{Source: src, Reason: "construct not permitted in a pipeline stage"}
	}
}

// parseStage builds a Stage from a leaf CallExpr, converting its
// redirections and rejecting anything outside word+ redir*.
func parseStage(src string, stmt *syntax.Stmt, call *syntax.CallExpr) (Stage, error) {
	if len(call.Assigns) != 0 {
		return Stage{}, &ShellParseError{Source: src, Reason: "environment assignment prefix is not permitted on a stage"}
	}
	if len(call.Args) == 0 {
		return Stage{}, &ShellParseError{Source: src, Reason: "empty pipeline stage"}
	}

	words := make([]string, 0, len(call.Args))
	for _, w := range call.Args {
		lit, err := litWord(src, w)
		if err != nil {
			return Stage{}, err
		}
		if containsGlobMeta(w) {
			return Stage{}, &ShellParseError{Source: src, Reason: "glob patterns are not permitted: " + lit}
		}
		words = append(words, lit)
	}

	redirs, err := parseRedirs(src, stmt.Redirs)
	if err != nil {
		return Stage{}, err
	}

	return Stage{Words: words, Redirs: redirs}, nil
}

func parseRedirs(src string, in []*syntax.Redirect) ([]Redir, error) {
	var kinds = map[RedirKind]bool{}
	out := make([]Redir, 0, len(in))
	for _, r := range in {
		var kind RedirKind
		switch r.Op {
		case syntax.RdrIn:
			kind = RedirIn
		case syntax.RdrOut:
			if r.N != nil {
				if r.N.Value != "2" {
					return nil, &ShellParseError{Source: src, Reason: "only fd 2 may be redirected explicitly"}
				}
				kind = RedirErrOut
			} else {
				kind = RedirOut
			}
		default:
			return nil, &ShellParseError{Source: src, Reason: "redirection operator \"" + r.Op.String() + "\" is not permitted"}
		}
		if kinds[kind] {
			return nil, &ShellParseError{Source: src, Reason: "duplicate " + kind.String() + " redirection on one stage"}
		}
		kinds[kind] = true

		target, err := litWord(src, r.Word)
		if err != nil {
			return nil, err
		}
		out = append(out, Redir{Kind: kind, Target: target})
	}
	return out, nil
}

// rejectModifiers rejects statement-level modifiers the grammar has no
// production for: negation, backgrounding, coprocesses.
func rejectModifiers(src string, stmt *syntax.Stmt) error {
	if stmt.Negated {
		return &ShellParseError{Source: src, Reason: "\"!\" negation is not permitted"}
	}
	if stmt.Background {
		return &ShellParseError{Source: src, Reason: "background (\"&\") jobs are not permitted"}
	}
	if stmt.Coprocess {
		return &ShellParseError{Source: src, Reason: "coprocesses are not permitted"}
	}
	return nil
}

// litWord requires w to be a bareword or a single-/double-quoted string
// with no expansions (command substitution, parameter expansion,
// arithmetic), per the grammar's `word` production.
func litWord(src string, w *syntax.Word) (string, error) {
	if w == nil {
		return "", &ShellParseError{Source: src, Reason: "missing word"}
	}
	var sb strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", &ShellParseError{Source: src, Reason: "expansions are not permitted inside a word"}
				}
				sb.WriteString(lit.Value)
			}
		default:
			return "", &ShellParseError{Source: src, Reason: "expansions are not permitted inside a word"}
		}
	}
	return sb.String(), nil
}

// containsGlobMeta reports whether any unquoted literal part of w
// contains a glob metacharacter. Quoted parts are exempt since their
// contents are literal data, not pattern syntax.
func containsGlobMeta(w *syntax.Word) bool {
	for _, part := range w.Parts {
		lit, ok := part.(*syntax.Lit)
		if !ok {
			continue
		}
		if strings.ContainsAny(lit.Value, "*?[") {
			return true
		}
	}
	return false
}

func isValidIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
