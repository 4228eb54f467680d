// SPDX-License-Identifier: MPL-2.0

package execgraph

import (
	"path/filepath"

	"github.com/google/uuid"

	"posh/internal/mount"
	"posh/internal/scheduler"
	"posh/internal/shellparse"
)

// FileArgRef marks one argv element of a StageInput as a file path that
// must be rewritten to its execution location's view (spec.md §4.6).
type FileArgRef struct {
	ArgvIndex  int
	Resolution mount.Resolution
	// Splittable marks an argv word that came from a descriptor-flagged
	// splittable file argument (spec.md §4.5 "Splitting"): when the stage
	// is cloned across several owning proxies, each clone keeps only the
	// splittable words it owns and drops the rest, instead of every clone
	// re-running over the whole file list.
	Splittable bool
}

// RedirInput is one stage redirection together with its mount resolution.
type RedirInput struct {
	Kind       shellparse.RedirKind
	Resolution mount.Resolution
}

// StageInput is everything the builder needs for one pipeline stage: its
// placement from C5, its argv and file-typed argument positions from
// C1/C2, and its redirections from C4.
type StageInput struct {
	StageID         int
	Argv            []string
	FileArgs        []FileArgRef
	Placement       scheduler.Placement
	NeedsCurrentDir bool
	Redirs          []RedirInput
}

// ProxyRoot resolves a proxy's local filesystem root for the mount it
// serves — the directory configured by that proxy's own `--folder` flag
// (spec.md §6), distinct from the client_mount_prefix the client sees.
type ProxyRoot func(ip string) string

// Builder lowers StageInputs into a Graph.
type Builder struct {
	nextID NodeID
}

// NewBuilder returns a fresh Builder with an empty node-id counter.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) allocID() NodeID {
	id := b.nextID
	b.nextID++
	return id
}

// Build lowers stages (in pipeline order) plus the shell's exported
// environment into a Graph, per spec.md §4.6.
func (b *Builder) Build(stages []StageInput, env map[string]string, cwdRes mount.Resolution, proxyRoot ProxyRoot) (*Graph, error) {
	g := &Graph{}

	// stageOutputs[i] holds the node(s) whose stdout feeds stage i+1's stdin.
	stageOutputs := make([][]NodeID, len(stages))

	for i, st := range stages {
		var producerIDs []NodeID

		if st.Placement.Split() {
			clones := make([]NodeID, 0, len(st.Placement.Clones))
			for _, loc := range st.Placement.Clones {
				cloneArgv, cloneFileArgs := cloneArgsFor(st.Argv, st.FileArgs, loc)
				cloneSt := st
				cloneSt.Argv = cloneArgv
				cloneSt.FileArgs = cloneFileArgs
				pn := b.newProcessNode(cloneSt, loc, env, cwdRes, proxyRoot)
				g.ProcessNodes = append(g.ProcessNodes, pn)
				clones = append(clones, pn.ID)
			}
			agg := AggregatorNode{
				ID:         b.allocID(),
				Location:   mount.Client(),
				CloneOrder: clones,
				LineFramed: isStdinSplit(st),
			}
			g.Aggregators = append(g.Aggregators, agg)
			for _, cloneID := range clones {
				g.Edges = append(g.Edges, b.edge(cloneID, FDStdout, agg.ID, FDStdin, cloneLoc(g, cloneID), agg.Location))
			}
			producerIDs = []NodeID{agg.ID}
		} else {
			pn := b.newProcessNode(st, st.Placement.Location, env, cwdRes, proxyRoot)
			g.ProcessNodes = append(g.ProcessNodes, pn)
			producerIDs = []NodeID{pn.ID}
		}

		if i > 0 {
			for _, upstream := range stageOutputs[i-1] {
				upLoc, _ := g.NodeLocation(upstream)
				for _, down := range producerIDs {
					downLoc, _ := g.NodeLocation(down)
					g.Edges = append(g.Edges, b.edge(upstream, FDStdout, down, FDStdin, upLoc, downLoc))
				}
			}
		}

		stageOutputs[i] = producerIDs
		b.wireRedirs(g, st, producerIDs, proxyRoot)
	}
	if len(stages) > 0 {
		g.FinalNodes = stageOutputs[len(stages)-1]
	}

	if err := checkWellFormed(g); err != nil {
		return nil, err
	}
	return g, nil
}

// isStdinSplit reports whether a split stage was split on stdin rather
// than on a file-list argument: a file-arg split always has at least one
// FileArgRef naming the split argument.
func isStdinSplit(st StageInput) bool {
	return len(st.Placement.Clones) > 0 && len(st.FileArgs) == 0
}

// cloneArgsFor partitions a split stage's argv for one clone: a
// splittable file argument's argv word is kept only for the clone that
// owns it and dropped from every other clone's argv entirely, so
// `cat /m1/a.txt /m2/b.txt` with clones on 10.0.0.1 and 10.0.0.2 lowers
// to `cat a.txt` and `cat b.txt` rather than both clones re-running the
// full list (spec.md §8 scenario 4's byte-preservation property). A
// non-splittable file argument is kept for every clone unchanged.
func cloneArgsFor(argv []string, fileArgs []FileArgRef, loc mount.Location) ([]string, []FileArgRef) {
	drop := make(map[int]bool)
	for _, f := range fileArgs {
		if f.Splittable && !f.Resolution.Location.Equal(loc) {
			drop[f.ArgvIndex] = true
		}
	}
	if len(drop) == 0 {
		return argv, fileArgs
	}

	out := make([]string, 0, len(argv)-len(drop))
	remap := make(map[int]int, len(argv))
	for i, w := range argv {
		if drop[i] {
			continue
		}
		remap[i] = len(out)
		out = append(out, w)
	}

	kept := make([]FileArgRef, 0, len(fileArgs))
	for _, f := range fileArgs {
		if drop[f.ArgvIndex] {
			continue
		}
		kept = append(kept, FileArgRef{ArgvIndex: remap[f.ArgvIndex], Resolution: f.Resolution, Splittable: f.Splittable})
	}
	return out, kept
}

func cloneLoc(g *Graph, id NodeID) mount.Location {
	loc, _ := g.NodeLocation(id)
	return loc
}

func (b *Builder) newProcessNode(st StageInput, loc mount.Location, env map[string]string, cwdRes mount.Resolution, proxyRoot ProxyRoot) ProcessNode {
	argv := rewriteArgv(st.Argv, st.FileArgs, loc, proxyRoot)
	nodeEnv := make(map[string]string, len(env)+1)
	for k, v := range env {
		nodeEnv[k] = v
	}
	if st.NeedsCurrentDir && !loc.IsClient() {
		nodeEnv["PWD"] = remoteView(cwdRes, loc, proxyRoot)
	}
	return ProcessNode{ID: b.allocID(), StageID: st.StageID, Location: loc, Argv: argv, Env: nodeEnv}
}

// rewriteArgv implements spec.md §4.6's path-rewriting rule: file
// arguments become the proxy-local view when the node runs on a proxy,
// and are left as canonical client paths when it runs on Client.
func rewriteArgv(argv []string, fileArgs []FileArgRef, loc mount.Location, proxyRoot ProxyRoot) []string {
	out := make([]string, len(argv))
	copy(out, argv)
	for _, f := range fileArgs {
		if f.ArgvIndex < 0 || f.ArgvIndex >= len(out) {
			continue
		}
		out[f.ArgvIndex] = remoteView(f.Resolution, loc, proxyRoot)
	}
	return out
}

// remoteView renders a resolved path the way the node at loc would see it:
// its own proxy-local mount root joined with the remote suffix when loc is
// the proxy owning the file, or the canonical client path otherwise.
func remoteView(res mount.Resolution, loc mount.Location, proxyRoot ProxyRoot) string {
	if loc.IsClient() {
		return res.Canonical
	}
	if !res.Local && res.Location.Equal(loc) {
		return filepath.Join(proxyRoot(loc.IP()), res.RemoteSuffix)
	}
	return res.Canonical
}

func (b *Builder) wireRedirs(g *Graph, st StageInput, producerIDs []NodeID, proxyRoot ProxyRoot) {
	for _, r := range st.Redirs {
		loc := mount.Client()
		if !r.Resolution.Local {
			loc = r.Resolution.Location
		}
		fn := FileNode{ID: b.allocID(), Location: loc, Path: remoteView(r.Resolution, loc, proxyRoot), Write: r.Kind != shellparse.RedirIn}
		g.FileNodes = append(g.FileNodes, fn)

		for _, pid := range producerIDs {
			procLoc, _ := g.NodeLocation(pid)
			switch r.Kind {
			case shellparse.RedirIn:
				g.Edges = append(g.Edges, b.edge(fn.ID, FDStdout, pid, FDStdin, fn.Location, procLoc))
			case shellparse.RedirOut:
				g.Edges = append(g.Edges, b.edge(pid, FDStdout, fn.ID, FDStdin, procLoc, fn.Location))
			case shellparse.RedirErrOut:
				g.Edges = append(g.Edges, b.edge(pid, FDStderr, fn.ID, FDStdin, procLoc, fn.Location))
			}
		}
	}
}

func (b *Builder) edge(src NodeID, srcFD FD, dst NodeID, dstFD FD, srcLoc, dstLoc mount.Location) StreamEdge {
	transport := Transport{Kind: LocalPipe}
	if !srcLoc.Equal(dstLoc) {
		transport = Transport{Kind: Tcp, ConnectionID: uuid.New()}
	}
	return StreamEdge{ID: b.allocID(), Src: src, SrcFD: srcFD, Dst: dst, DstFD: dstFD, Transport: transport}
}
