// SPDX-License-Identifier: MPL-2.0

package dispatcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"posh/internal/execgraph"
	"posh/internal/procexec"
	"posh/internal/wire"
)

// ProxyDialer opens a control connection to the proxy at ip, per the
// client's mount configuration and --runtime_port (spec.md §6).
type ProxyDialer func(ctx context.Context, ip string) (net.Conn, error)

// Result is the outcome of one pipeline run.
type Result struct {
	// ExitCode is the pipeline's own exit code: the last stage's exit
	// code, POSIX convention (spec.md §4.7).
	ExitCode  int
	NodeExits map[execgraph.NodeID]int
}

// Dispatcher is the client-side Runtime Dispatcher (C7).
type Dispatcher struct {
	dial   ProxyDialer
	logger *log.Logger
}

// New returns a Dispatcher that reaches proxies through dial.
func New(dial ProxyDialer, logger *log.Logger) *Dispatcher {
	return &Dispatcher{dial: dial, logger: logger}
}

// proxyConn bundles one proxy's control connection with the ack it sent.
type proxyConn struct {
	conn net.Conn
	ack  wire.SubgraphAck
}

// localPipes wires every LocalPipe edge between two Client-local nodes
// up front, before any node starts, so that a consumer spawned before
// its producer still has a reader waiting for it.
type localPipes struct {
	in  map[execgraph.NodeID]*io.PipeReader
	out map[execgraph.NodeID]*io.PipeWriter
}

func newLocalPipes(g *execgraph.Graph) *localPipes {
	lp := &localPipes{in: map[execgraph.NodeID]*io.PipeReader{}, out: map[execgraph.NodeID]*io.PipeWriter{}}
	for _, e := range g.Edges {
		if e.Transport.Kind != execgraph.LocalPipe {
			continue
		}
		pr, pw := io.Pipe()
		lp.in[e.Dst] = pr
		lp.out[e.Src] = pw
	}
	return lp
}

// Run executes g to completion: every proxy subgraph is shipped and
// awaited, every Client-local node is spawned directly, and every
// StreamEdge is wired per spec.md §4.6/§5.
func (d *Dispatcher) Run(ctx context.Context, g *execgraph.Graph) (*Result, error) {
	pipelineID := uuid.New()
	d.logger.Debug("dispatching pipeline", "pipeline_id", pipelineID, "proxies", proxyIPs(g))

	listeners, clientPorts, err := openClientUpstreamListeners(g)
	if err != nil {
		return nil, err
	}
	defer closeAll(listeners)

	proxies, err := d.openProxyConns(ctx, pipelineID, g, clientPorts)
	if err != nil {
		d.logger.Error("failed to reach proxy", "err", err)
		return nil, err
	}
	defer func() {
		for _, pc := range proxies {
			_ = pc.conn.Close()
		}
	}()

	lp := newLocalPipes(g)
	grp, gctx := errgroup.WithContext(ctx)
	exits := &sync.Map{}

	for _, id := range clientLocalNodeIDs(g) {
		id := id
		switch {
		case g.IsProcessNode(id):
			grp.Go(func() error { return d.runClientProcess(gctx, g, id, pipelineID, lp, listeners, proxies, exits) })
		case g.IsAggregator(id):
			grp.Go(func() error { return d.runAggregator(gctx, g, id, pipelineID, lp, listeners, proxies, exits) })
		case g.IsFileNode(id):
			grp.Go(func() error { return d.runClientFile(g, id, pipelineID, lp, listeners, proxies) })
		}
	}

	go func() {
		<-gctx.Done()
		for _, pc := range proxies {
			_ = wire.WriteFrame(pc.conn, wire.KindCancelPipeline, wire.CancelPipeline{PipelineID: pipelineID})
		}
	}()

	for ip, pc := range proxies {
		ip, pc := ip, pc
		grp.Go(func() error { return awaitProxyResult(pc, exits, ip) })
	}

	if err := grp.Wait(); err != nil {
		d.logger.Error("pipeline aborted", "pipeline_id", pipelineID, "err", err)
		return nil, err
	}
	result := buildResult(g, exits)
	d.logger.Debug("pipeline finished", "pipeline_id", pipelineID, "exit_code", result.ExitCode)
	return result, nil
}

func (d *Dispatcher) openProxyConns(ctx context.Context, pipelineID uuid.UUID, g *execgraph.Graph, clientPorts map[uuid.UUID]int) (map[string]*proxyConn, error) {
	proxies := make(map[string]*proxyConn)
	for _, ip := range proxyIPs(g) {
		conn, err := d.dial(ctx, ip)
		if err != nil {
			return nil, &ProxyUnreachableError{IP: ip, Err: err}
		}
		req := buildSubgraphRequest(pipelineID, g, ip, clientPorts)
		if err := wire.WriteFrame(conn, wire.KindSubgraphRequest, req); err != nil {
			return nil, &ProxyUnreachableError{IP: ip, Err: err}
		}
		kind, payload, err := wire.ReadFrame(conn)
		if err != nil || kind != wire.KindSubgraphAck {
			return nil, &ProxyUnreachableError{IP: ip, Err: fmt.Errorf("expected SubgraphAck, got kind=%v err=%v", kind, err)}
		}
		var ack wire.SubgraphAck
		if err := wire.Decode(payload, &ack); err != nil {
			return nil, &ProxyUnreachableError{IP: ip, Err: err}
		}
		proxies[ip] = &proxyConn{conn: conn, ack: ack}
	}
	return proxies, nil
}

func buildResult(g *execgraph.Graph, exits *sync.Map) *Result {
	nodeExits := make(map[execgraph.NodeID]int)
	exits.Range(func(k, v any) bool {
		nodeExits[k.(execgraph.NodeID)] = v.(int)
		return true
	})
	code := 0
	if last, ok := g.LastStageNodeID(); ok {
		code = nodeExits[last]
	}
	return &Result{ExitCode: code, NodeExits: nodeExits}
}

func awaitProxyResult(pc *proxyConn, exits *sync.Map, ip string) error {
	kind, payload, err := wire.ReadFrame(pc.conn)
	if err != nil {
		return &ProxyUnreachableError{IP: ip, Err: err}
	}
	if kind != wire.KindPipelineResult {
		return &ProxyUnreachableError{IP: ip, Err: fmt.Errorf("expected PipelineResult, got kind=%v", kind)}
	}
	var result wire.PipelineResult
	if err := wire.Decode(payload, &result); err != nil {
		return &ProxyUnreachableError{IP: ip, Err: err}
	}
	for _, e := range result.Exits {
		exits.Store(e.NodeID, e.ExitCode)
	}
	return nil
}

// openClientUpstreamListeners pre-opens the Tcp listeners for edges
// where the client is upstream, so their ports can ride along in the
// SubgraphRequest sent to the downstream proxy (spec.md §6).
func openClientUpstreamListeners(g *execgraph.Graph) (map[uuid.UUID]net.Listener, map[uuid.UUID]int, error) {
	listeners := make(map[uuid.UUID]net.Listener)
	ports := make(map[uuid.UUID]int)
	for _, e := range clientUpstreamEdges(g) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			closeAll(listeners)
			return nil, nil, fmt.Errorf("dispatcher: listen for edge %d: %w", e.ID, err)
		}
		listeners[e.Transport.ConnectionID] = ln
		ports[e.Transport.ConnectionID] = ln.Addr().(*net.TCPAddr).Port
	}
	return listeners, ports, nil
}

func closeAll(listeners map[uuid.UUID]net.Listener) {
	for _, ln := range listeners {
		_ = ln.Close()
	}
}

// runClientProcess starts one Client-located ProcessNode, wiring its
// stdin and stdout against whichever edges name it as an endpoint.
func (d *Dispatcher) runClientProcess(ctx context.Context, g *execgraph.Graph, id execgraph.NodeID, pipelineID uuid.UUID, lp *localPipes, listeners map[uuid.UUID]net.Listener, proxies map[string]*proxyConn, exits *sync.Map) error {
	node := g.ProcessNode(id)
	stdin, err := stdinFor(g, id, pipelineID, lp, listeners, proxies)
	if err != nil {
		return err
	}
	stdout, closeOut, err := stdoutFor(g, id, pipelineID, lp, listeners, proxies)
	if err != nil {
		return err
	}

	h, err := procexec.Start(ctx, node.Argv, node.Env, "", stdin, stdout, os.Stderr)
	if err != nil {
		return err
	}
	code := h.Wait()
	exits.Store(id, code)
	if closeOut != nil {
		closeOut()
	}
	return nil
}

// runClientFile opens a FileNode's backing file and forwards it against
// the single edge that connects it to a process node.
func (d *Dispatcher) runClientFile(g *execgraph.Graph, id execgraph.NodeID, pipelineID uuid.UUID, lp *localPipes, listeners map[uuid.UUID]net.Listener, proxies map[string]*proxyConn) error {
	fn := g.FileNode(id)
	if fn.Write {
		f, err := os.Create(fn.Path)
		if err != nil {
			return fmt.Errorf("dispatcher: open %s for write: %w", fn.Path, err)
		}
		defer f.Close()
		src, err := stdinFor(g, id, pipelineID, lp, listeners, proxies)
		if err != nil {
			return err
		}
		return procexec.CopyUntilEOF(f, src)
	}
	f, err := os.Open(fn.Path)
	if err != nil {
		return fmt.Errorf("dispatcher: open %s for read: %w", fn.Path, err)
	}
	defer f.Close()
	dst, closeOut, err := stdoutFor(g, id, pipelineID, lp, listeners, proxies)
	if err != nil {
		return err
	}
	defer func() {
		if closeOut != nil {
			closeOut()
		}
	}()
	return procexec.CopyUntilEOF(dst, f)
}

// runAggregator reassembles a split stage's clones in CloneOrder,
// concatenating each clone's full output before moving to the next
// (spec.md §5 "Ordering guarantees").
func (d *Dispatcher) runAggregator(ctx context.Context, g *execgraph.Graph, id execgraph.NodeID, pipelineID uuid.UUID, lp *localPipes, listeners map[uuid.UUID]net.Listener, proxies map[string]*proxyConn, exits *sync.Map) error {
	agg := g.AggregatorNode(id)
	dst, closeOut, err := stdoutFor(g, id, pipelineID, lp, listeners, proxies)
	if err != nil {
		return err
	}
	defer func() {
		if closeOut != nil {
			closeOut()
		}
	}()

	for _, cloneID := range agg.CloneOrder {
		src, err := dialCloneSource(g, cloneID, id, pipelineID, proxies)
		if err != nil {
			return err
		}
		if err := procexec.CopyUntilEOF(dst, src); err != nil {
			return err
		}
		_ = src.Close()
	}
	exits.Store(id, 0)
	return nil
}

// dialCloneSource connects to the proxy hosting cloneID and returns the
// stream carrying its stdout, for the edge from cloneID into aggID.
func dialCloneSource(g *execgraph.Graph, cloneID, aggID execgraph.NodeID, pipelineID uuid.UUID, proxies map[string]*proxyConn) (net.Conn, error) {
	e := g.EdgeBetween(cloneID, aggID)
	if e == nil {
		return nil, fmt.Errorf("dispatcher: no edge from clone %d to aggregator %d", cloneID, aggID)
	}
	loc, _ := g.NodeLocation(cloneID)
	pc, ok := proxies[loc.IP()]
	if !ok {
		return nil, fmt.Errorf("dispatcher: no control connection for proxy %s", loc.IP())
	}
	return dialEdge(loc.IP(), pc, pipelineID, e.Transport.ConnectionID)
}

func dialEdge(ip string, pc *proxyConn, pipelineID, connID uuid.UUID) (net.Conn, error) {
	port, ok := pc.ack.Ports[connID]
	if !ok {
		return nil, fmt.Errorf("dispatcher: proxy %s did not ack a port for connection %s", ip, connID)
	}
	conn, err := net.Dial("tcp", net.JoinHostPort(ip, fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, &ProxyUnreachableError{IP: ip, Err: err}
	}
	key := wire.NewStreamKey(pipelineID, connID)
	if _, err := conn.Write(key[:]); err != nil {
		return nil, err
	}
	return conn, nil
}

func acceptEdge(ln net.Listener, expected wire.StreamKey) (net.Conn, error) {
	conn, err := ln.Accept()
	if err != nil {
		return nil, err
	}
	var key [wire.StreamKeySize]byte
	if _, err := io.ReadFull(conn, key[:]); err != nil {
		return nil, err
	}
	if wire.StreamKey(key) != expected {
		_ = conn.Close()
		return nil, fmt.Errorf("dispatcher: stream key mismatch on accepted connection")
	}
	return conn, nil
}

// stdinFor returns the stdin source for the Client-local node id: the
// precomputed LocalPipe reader, a dial against a proxy over Tcp, or
// os.Stdin when id has no producer (the pipeline's first stage).
func stdinFor(g *execgraph.Graph, id execgraph.NodeID, pipelineID uuid.UUID, lp *localPipes, listeners map[uuid.UUID]net.Listener, proxies map[string]*proxyConn) (io.Reader, error) {
	if r, ok := lp.in[id]; ok {
		return r, nil
	}
	e := g.IncomingEdge(id)
	if e == nil {
		return os.Stdin, nil
	}
	if e.Transport.Kind != execgraph.Tcp {
		return os.Stdin, nil
	}
	srcLoc, _ := g.NodeLocation(e.Src)
	if srcLoc.IsClient() {
		// Unreachable for a well-formed graph: a Tcp edge always differs
		// in location across its two ends, and id (Client) is the Dst.
		return os.Stdin, nil
	}
	pc, ok := proxies[srcLoc.IP()]
	if !ok {
		return nil, fmt.Errorf("dispatcher: no control connection for proxy %s", srcLoc.IP())
	}
	return dialEdge(srcLoc.IP(), pc, pipelineID, e.Transport.ConnectionID)
}

// stdoutFor returns the stdout sink for the Client-local node id and an
// optional closer to run once the producer is done writing. When id has
// no consumer (the pipeline's last stage), the sink is the dispatcher's
// own os.Stdout and the closer is nil.
func stdoutFor(g *execgraph.Graph, id execgraph.NodeID, pipelineID uuid.UUID, lp *localPipes, listeners map[uuid.UUID]net.Listener, proxies map[string]*proxyConn) (io.Writer, func(), error) {
	if w, ok := lp.out[id]; ok {
		return w, func() { _ = w.Close() }, nil
	}
	e := g.OutgoingEdge(id)
	if e == nil {
		return os.Stdout, nil, nil
	}
	if e.Transport.Kind != execgraph.Tcp {
		return os.Stdout, nil, nil
	}
	dstLoc, _ := g.NodeLocation(e.Dst)
	if dstLoc.IsClient() {
		// Unreachable for a well-formed graph: id (Client) is the Src of
		// a Tcp edge, so its Dst cannot also be Client.
		return os.Stdout, nil, nil
	}
	// id (Client) is upstream of a remote proxy: per spec.md §4.6 the
	// upstream side opens the listening socket, already done in
	// openClientUpstreamListeners; the proxy dials in using the port
	// this pre-opened listener contributed to the SubgraphRequest.
	ln, ok := listeners[e.Transport.ConnectionID]
	if !ok {
		return nil, nil, fmt.Errorf("dispatcher: no pre-opened listener for edge %d", e.ID)
	}
	conn, err := acceptEdge(ln, wire.NewStreamKey(pipelineID, e.Transport.ConnectionID))
	if err != nil {
		return nil, nil, err
	}
	return conn, func() { _ = conn.Close() }, nil
}
