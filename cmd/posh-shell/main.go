// SPDX-License-Identifier: MPL-2.0

// Command posh-shell is POSH's interactive prompt: a plain line-editing
// loop that compiles and runs one line at a time against the same
// mount/annotation configuration as posh (spec.md §6). Rich terminal
// rendering is out of scope (spec.md §1); this is a bufio.Scanner loop.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"posh/internal/clientcfg"
	"posh/internal/dispatcher"
	"posh/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := &cobra.Command{
		Use:   "posh-shell",
		Short: "Interactive POSH prompt",
		Args:  cobra.NoArgs,
	}
	flags := clientcfg.Register(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 3
	}

	logger, err := flags.Logger("posh-shell")
	if err != nil {
		fmt.Fprintln(os.Stderr, "posh-shell:", err)
		return 3
	}
	annotations, err := flags.LoadAnnotations()
	if err != nil {
		fmt.Fprintln(os.Stderr, "posh-shell:", err)
		return 2
	}
	mountCfg, err := flags.LoadMount()
	if err != nil {
		fmt.Fprintln(os.Stderr, "posh-shell:", err)
		return 2
	}
	cwd, err := flags.ResolvePwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "posh-shell:", err)
		return 3
	}

	proxyRoot := func(ip string) string { return mountCfg.TmpDirs[ip] }
	compiler := pipeline.NewCompiler(annotations, mountCfg, proxyRoot, flags.SplittingFactor)
	d := dispatcher.New(dialerFor(flags.RuntimePort), logger)

	return repl(compiler, d, cwd)
}

func repl(compiler *pipeline.Compiler, d *dispatcher.Dispatcher, cwd string) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	env := map[string]string{}
	lastCode := 0
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Fprint(os.Stdout, "posh> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancelled := make(chan struct{})
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-cancelled:
			}
		}()

		lastCode = runLine(ctx, compiler, d, line, cwd, &env)
		close(cancelled)
		cancel()
	}
	return lastCode
}

func runLine(ctx context.Context, compiler *pipeline.Compiler, d *dispatcher.Dispatcher, line, cwd string, env *map[string]string) int {
	graphs, nextEnv, err := compiler.Compile(line, cwd, *env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "posh-shell:", err)
		return 3
	}
	*env = nextEnv

	code := 0
	for _, g := range graphs {
		result, err := d.Run(ctx, g)
		if err != nil {
			var unreachable *dispatcher.ProxyUnreachableError
			switch {
			case errors.As(err, &unreachable):
				fmt.Fprintln(os.Stderr, "posh-shell:", err)
				code = 4
			case errors.Is(err, context.Canceled):
				code = 130
			default:
				fmt.Fprintln(os.Stderr, "posh-shell:", err)
				code = 1
			}
			return code
		}
		code = result.ExitCode
	}
	return code
}

func dialerFor(port int) dispatcher.ProxyDialer {
	return func(ctx context.Context, ip string) (net.Conn, error) {
		d := net.Dialer{Timeout: 10 * time.Second}
		return d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", ip, port))
	}
}
