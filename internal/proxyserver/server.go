// SPDX-License-Identifier: MPL-2.0

// Package proxyserver is the proxy-side control server of spec.md §6:
// it accepts the dispatcher's control connections, execs the
// ProcessNodes and opens the FileNodes its SubgraphRequest names, wires
// every StreamEdge that touches its subgraph, and reports back exit
// codes.
package proxyserver

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"posh/internal/execgraph"
	"posh/internal/procexec"
	"posh/internal/wire"
)

// Config holds a proxy server's immutable configuration (spec.md §6's
// server CLI: --folder, --ip_address, --tmpfile, --runtime_port).
type Config struct {
	// IPAddress is this proxy's identity in the mount table — not
	// necessarily the address it binds to, since a proxy may sit behind
	// NAT relative to the client.
	IPAddress string
	// Folder is the directory this proxy serves — the root every
	// NodeSpec and FileSpec path is relative to once rewritten by the
	// client's execgraph.Builder.
	Folder string
	// TmpFile is a scratch file path the proxy may use for intermediate
	// buffering (spec.md §6).
	TmpFile string
	// Port is the control port to bind; 0 selects the default.
	Port int
}

// DefaultRuntimePort is the control port bound when --runtime_port is
// not given (spec.md §6).
const DefaultRuntimePort = 1235

// Server is a single-use proxy control server; create a new Server to
// restart after Stop.
type Server struct {
	cfg    Config
	logger *log.Logger

	running atomic.Bool
	ln      net.Listener
	wg      sync.WaitGroup
}

// New returns a Server that has not yet started listening.
func New(cfg Config, logger *log.Logger) *Server {
	if cfg.Port == 0 {
		cfg.Port = DefaultRuntimePort
	}
	return &Server{cfg: cfg, logger: logger}
}

// Start binds the control port and accepts connections until ctx is
// cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("proxyserver: already running")
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("proxyserver: listen: %w", err)
	}
	s.ln = ln
	s.logger.Info("proxy server listening", "addr", ln.Addr().String(), "folder", s.cfg.Folder)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("proxyserver: accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.handleConn(ctx, conn); err != nil {
				s.logger.Error("control connection failed", "err", err)
			}
		}()
	}
}

// Stop closes the listener, causing Start's accept loop to return.
func (s *Server) Stop() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// handleConn services exactly one pipeline's SubgraphRequest end to
// end: ack, exec, wire, report.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	kind, payload, err := wire.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("proxyserver: read request: %w", err)
	}
	if kind != wire.KindSubgraphRequest {
		return fmt.Errorf("proxyserver: expected SubgraphRequest, got %v", kind)
	}
	var req wire.SubgraphRequest
	if err := wire.Decode(payload, &req); err != nil {
		return fmt.Errorf("proxyserver: decode request: %w", err)
	}
	s.logger.Debug("subgraph request", "pipeline_id", req.PipelineID, "nodes", len(req.Nodes), "files", len(req.Files))

	clientHost, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		clientHost = conn.RemoteAddr().String()
	}

	sg, err := newSubgraph(s.cfg, req, clientHost)
	if err != nil {
		return err
	}
	defer sg.closeListeners()

	ack := wire.SubgraphAck{PipelineID: req.PipelineID, Ports: sg.listenerPorts()}
	if err := wire.WriteFrame(conn, wire.KindSubgraphAck, ack); err != nil {
		return fmt.Errorf("proxyserver: write ack: %w", err)
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.watchForCancel(conn, req.PipelineID, cancel)

	result := sg.run(cancelCtx)
	result.PipelineID = req.PipelineID
	return wire.WriteFrame(conn, wire.KindPipelineResult, result)
}

// watchForCancel blocks reading further frames off conn; a
// CancelPipeline for this pipeline invokes cancel, which propagates
// into every procexec.Handle's context and triggers the
// SIGTERM-then-SIGKILL grace period (spec.md §5).
func (s *Server) watchForCancel(conn net.Conn, pipelineID uuid.UUID, cancel context.CancelFunc) {
	for {
		kind, payload, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		if kind != wire.KindCancelPipeline {
			continue
		}
		var c wire.CancelPipeline
		if err := wire.Decode(payload, &c); err == nil && c.PipelineID == pipelineID {
			s.logger.Info("cancelling pipeline", "pipeline_id", pipelineID)
			cancel()
			return
		}
	}
}

// subgraph is one decoded SubgraphRequest together with the listeners
// it opened for the edges where this proxy is the Tcp upstream.
type subgraph struct {
	cfg        Config
	req        wire.SubgraphRequest
	clientHost string
	listeners  map[uuid.UUID]net.Listener
}

func newSubgraph(cfg Config, req wire.SubgraphRequest, clientHost string) (*subgraph, error) {
	sg := &subgraph{cfg: cfg, req: req, clientHost: clientHost, listeners: map[uuid.UUID]net.Listener{}}
	for _, e := range req.Edges {
		if e.Local || !e.SrcIsLocal {
			continue
		}
		ln, err := net.Listen("tcp", ":0")
		if err != nil {
			sg.closeListeners()
			return nil, fmt.Errorf("proxyserver: listen for edge src=%d: %w", e.Src, err)
		}
		sg.listeners[e.ConnectionID] = ln
	}
	return sg, nil
}

func (sg *subgraph) closeListeners() {
	for _, ln := range sg.listeners {
		_ = ln.Close()
	}
}

func (sg *subgraph) listenerPorts() map[uuid.UUID]int {
	ports := make(map[uuid.UUID]int, len(sg.listeners))
	for id, ln := range sg.listeners {
		ports[id] = ln.Addr().(*net.TCPAddr).Port
	}
	return ports
}

// run execs every NodeSpec and opens every FileSpec in req, wires their
// stdio against the edges, and waits for completion.
func (sg *subgraph) run(ctx context.Context) wire.PipelineResult {
	grp, gctx := errgroup.WithContext(ctx)
	exits := &sync.Map{}
	lp := newLocalPipes(sg.req.Edges)

	for _, n := range sg.req.Nodes {
		n := n
		grp.Go(func() error { return sg.runNode(gctx, n, lp, exits) })
	}
	for _, f := range sg.req.Files {
		f := f
		grp.Go(func() error { return sg.runFile(f, lp) })
	}

	if err := grp.Wait(); err != nil {
		sg.logFailure(err)
	}

	result := wire.PipelineResult{}
	exits.Range(func(k, v any) bool {
		result.Exits = append(result.Exits, wire.NodeExit{NodeID: k.(execgraph.NodeID), ExitCode: v.(int)})
		return true
	})
	return result
}

func (sg *subgraph) logFailure(err error) {
	_ = err // a dead forwarder or failed exec still lets every other node drain; the exit list reports what ran.
}

func (sg *subgraph) runNode(ctx context.Context, n wire.NodeSpec, lp *localPipes, exits *sync.Map) error {
	stdin, err := sg.stdinFor(n.ID, lp)
	if err != nil {
		return err
	}
	stdout, closeOut, err := sg.stdoutFor(n.ID, lp)
	if err != nil {
		return err
	}
	h, err := procexec.Start(ctx, n.Argv, n.Env, sg.cfg.Folder, stdin, stdout, os.Stderr)
	if err != nil {
		return err
	}
	code := h.Wait()
	exits.Store(n.ID, code)
	if closeOut != nil {
		closeOut()
	}
	return nil
}

func (sg *subgraph) runFile(f wire.FileSpec, lp *localPipes) error {
	if f.Write {
		file, err := os.Create(f.Path)
		if err != nil {
			return fmt.Errorf("proxyserver: open %s for write: %w", f.Path, err)
		}
		defer file.Close()
		src, err := sg.stdinFor(f.ID, lp)
		if err != nil {
			return err
		}
		return procexec.CopyUntilEOF(file, src)
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("proxyserver: open %s for read: %w", f.Path, err)
	}
	defer file.Close()
	dst, closeOut, err := sg.stdoutFor(f.ID, lp)
	if err != nil {
		return err
	}
	if closeOut != nil {
		defer closeOut()
	}
	return procexec.CopyUntilEOF(dst, file)
}
