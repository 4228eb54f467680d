// SPDX-License-Identifier: MPL-2.0

// Package pipeline is the compiler gluing C1-C6 together: it turns one
// shell line into the ExecutionGraph(s) internal/dispatcher runs,
// threading the session's exported environment and working directory
// across export statements and successive lines (spec.md §4).
package pipeline

import (
	"posh/internal/annotation"
	"posh/internal/execgraph"
	"posh/internal/invocation"
	"posh/internal/mount"
	"posh/internal/scheduler"
	"posh/internal/shellparse"
)

// Compiler holds the configuration that is fixed for a client process's
// whole lifetime: the annotation table, mount table/link hints, the
// splitting factor, and how to resolve a proxy's local filesystem root.
type Compiler struct {
	Annotations *annotation.Table
	Mount       *mount.Config
	ProxyRoot   execgraph.ProxyRoot
	SplitFactor int
}

// NewCompiler builds a Compiler from the loaded annotation and mount
// configuration (spec.md §6's --annotations_file/--mount_file).
func NewCompiler(ann *annotation.Table, mnt *mount.Config, proxyRoot execgraph.ProxyRoot, splitFactor int) *Compiler {
	return &Compiler{Annotations: ann, Mount: mnt, ProxyRoot: proxyRoot, SplitFactor: splitFactor}
}

// Compile parses one shell line and lowers every pipeline statement it
// contains into an ExecutionGraph, in source order; export statements
// mutate and are folded into the returned environment instead of
// producing a graph.
func (c *Compiler) Compile(line, cwd string, env map[string]string) ([]*execgraph.Graph, map[string]string, error) {
	parsed, err := shellparse.ParseLine(line)
	if err != nil {
		return nil, env, err
	}

	nextEnv := make(map[string]string, len(env))
	for k, v := range env {
		nextEnv[k] = v
	}

	cwdRes := c.Mount.Table.Resolve(cwd, cwd)

	var graphs []*execgraph.Graph
	for _, stmt := range parsed.Stmts {
		switch stmt.Kind {
		case shellparse.ExportStmt:
			nextEnv[stmt.Export.Name] = stmt.Export.Value
		case shellparse.PipelineStmt:
			g, err := c.compilePipeline(stmt.Pipeline, cwd, cwdRes, nextEnv)
			if err != nil {
				return nil, nextEnv, err
			}
			graphs = append(graphs, g)
		}
	}
	return graphs, nextEnv, nil
}

func (c *Compiler) compilePipeline(p shellparse.Pipeline, cwd string, cwdRes mount.Resolution, env map[string]string) (*execgraph.Graph, error) {
	specs := make([]scheduler.StageSpec, len(p.Stages))
	argvs := make([][]string, len(p.Stages))
	fileArgs := make([][]execgraph.FileArgRef, len(p.Stages))
	needsCwd := make([]bool, len(p.Stages))
	redirs := make([][]execgraph.RedirInput, len(p.Stages))

	for i, stage := range p.Stages {
		spec, fa, ncd, err := c.analyzeStage(i, stage, cwd)
		if err != nil {
			return nil, err
		}
		specs[i] = spec
		argvs[i] = stage.Words
		fileArgs[i] = fa
		needsCwd[i] = ncd
		redirs[i] = resolveRedirs(c.Mount.Table, stage.Redirs, cwd)
	}

	sched := scheduler.New(c.Mount.Table, c.Mount.Links, c.SplitFactor)
	plan := sched.Schedule(specs, cwdRes)

	stageInputs := make([]execgraph.StageInput, len(p.Stages))
	for i := range p.Stages {
		stageInputs[i] = execgraph.StageInput{
			StageID:         i,
			Argv:            argvs[i],
			FileArgs:        fileArgs[i],
			Placement:       plan.Placements[i],
			NeedsCurrentDir: needsCwd[i],
			Redirs:          redirs[i],
		}
	}

	return execgraph.NewBuilder().Build(stageInputs, env, cwdRes, c.ProxyRoot)
}

// analyzeStage re-parses one stage's argv through the invocation matcher
// (C2) and turns its typed tokens into the scheduler's file-aware view
// (C5) plus the FileArgRefs the execution graph builder (C6) needs to
// rewrite file-typed arguments. A command with no matching annotation
// overload is not a fatal error: it is pinned to Client per
// scheduler.StageSpec.Matched's documented convention (spec.md §4.2's
// "NoMatch" outcome), passed through with its argv untouched.
func (c *Compiler) analyzeStage(id int, stage shellparse.Stage, cwd string) (scheduler.StageSpec, []execgraph.FileArgRef, bool, error) {
	spec := scheduler.StageSpec{ID: id}
	if len(stage.Words) == 0 {
		return spec, nil, false, nil
	}

	overloads := c.Annotations.Lookup(stage.Words[0])
	tokens, desc, err := invocation.Match(overloads, stage.Words[1:])
	if err != nil {
		spec.Matched = false
		return spec, nil, false, nil
	}
	spec.Matched = true
	spec.NeedsCurrentDir = desc.HasFlag(annotation.NeedsCurrentDir)
	spec.FiltersInput = desc.HasFlag(annotation.FiltersInput)
	spec.SplittableAcrossInput = desc.HasFlag(annotation.SplittableAcrossInput)

	var fileArgs []execgraph.FileArgRef
	for i, tok := range tokens {
		argvIndex := i + 1 // +1: tokens correspond to stage.Words[1:]
		switch tok.Kind {
		case invocation.InputFileKind:
			res := c.Mount.Table.Resolve(tok.Raw, cwd)
			spec.InputFiles = append(spec.InputFiles, scheduler.FileRef{Path: tok.Raw, Resolution: res, Splittable: tok.Splittable})
			fileArgs = append(fileArgs, execgraph.FileArgRef{ArgvIndex: argvIndex, Resolution: res, Splittable: tok.Splittable})
		case invocation.OutputFileKind:
			res := c.Mount.Table.Resolve(tok.Raw, cwd)
			spec.OutputFiles = append(spec.OutputFiles, scheduler.FileRef{Path: tok.Raw, Resolution: res, Splittable: tok.Splittable})
			fileArgs = append(fileArgs, execgraph.FileArgRef{ArgvIndex: argvIndex, Resolution: res, Splittable: tok.Splittable})
		case invocation.ListSepKind:
			// A list-separated token holds several paths packed into one
			// argv word; each still counts toward the admissible-set
			// computation, but rewriting a single argv word's embedded
			// paths individually is not supported, so no FileArgRef is
			// added for it — the word is passed through as written.
			if tok.Type == annotation.InputFile || tok.Type == annotation.OutputFile {
				for _, v := range tok.Values {
					res := c.Mount.Table.Resolve(v, cwd)
					ref := scheduler.FileRef{Path: v, Resolution: res, Splittable: tok.Splittable}
					if tok.Type == annotation.InputFile {
						spec.InputFiles = append(spec.InputFiles, ref)
					} else {
						spec.OutputFiles = append(spec.OutputFiles, ref)
					}
				}
			}
		}
	}
	return spec, fileArgs, spec.NeedsCurrentDir, nil
}

func resolveRedirs(tbl *mount.Table, in []shellparse.Redir, cwd string) []execgraph.RedirInput {
	out := make([]execgraph.RedirInput, len(in))
	for i, r := range in {
		out[i] = execgraph.RedirInput{Kind: r.Kind, Resolution: tbl.Resolve(r.Target, cwd)}
	}
	return out
}
