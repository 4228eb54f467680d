// SPDX-License-Identifier: MPL-2.0

// Package shellparse parses the restricted shell-pipeline grammar of
// spec.md §4.4 on top of mvdan.cc/sh/v3/syntax's POSIX tokenizer, rather
// than hand-rolling quoting and redirection rules.
package shellparse

// RedirKind identifies which of the three permitted redirection forms a
// Redir expresses.
type RedirKind int

const (
	RedirIn     RedirKind = iota // "<word"
	RedirOut                     // ">word"
	RedirErrOut                  // "2>word"
)

func (k RedirKind) String() string {
	switch k {
	case RedirIn:
		return "<"
	case RedirOut:
		return ">"
	case RedirErrOut:
		return "2>"
	default:
		return "?"
	}
}

// Redir is one redirection attached to a Stage.
type Redir struct {
	Kind   RedirKind
	Target string
}

// Stage is one `word+ redir*` production: a command name, its arguments,
// and the redirections attached at this point in the pipeline.
type Stage struct {
	Words  []string
	Redirs []Redir
}

// Pipeline is a `stage ("|" stage)*` production.
type Pipeline struct {
	Stages []Stage
}

// Export is an `export ident "=" word` production. It mutates the shell's
// environment map and spawns no stage (spec.md §4.4).
type Export struct {
	Name  string
	Value string
}

// StmtKind distinguishes the two alternatives of `export | pipeline`.
type StmtKind int

const (
	ExportStmt StmtKind = iota
	PipelineStmt
)

// Stmt is one top-level alternative of the `line` production, as they
// appear in source order (statements are ";"-separated).
type Stmt struct {
	Kind     StmtKind
	Export   Export
	Pipeline Pipeline
}

// Line is a full `line ::= (export | pipeline) (";" line)?` parse result.
type Line struct {
	Stmts []Stmt
}
