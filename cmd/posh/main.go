// SPDX-License-Identifier: MPL-2.0

// Command posh runs a POSH script file to completion (spec.md §6).
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
	var scriptPath string

	rootCmd := &cobra.Command{
		Use:   "posh <script_path>",
		Short: "Run a POSH script against the configured mount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scriptPath = args[0]
			return nil
		},
	}
	flags := clientcfg.Register(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 3
	}

	data, err := os.ReadFile(scriptPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "posh:", err)
		return 3
	}

	return runScript(flags, string(data))
}

func runScript(flags *clientcfg.Flags, script string) int {
	logger, err := flags.Logger("posh")
	if err != nil {
		fmt.Fprintln(os.Stderr, "posh:", err)
		return 3
	}

	annotations, err := flags.LoadAnnotations()
	if err != nil {
		fmt.Fprintln(os.Stderr, "posh:", err)
		return 2
	}
	mountCfg, err := flags.LoadMount()
	if err != nil {
		fmt.Fprintln(os.Stderr, "posh:", err)
		return 2
	}
	cwd, err := flags.ResolvePwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "posh:", err)
		return 3
	}

	proxyRoot := func(ip string) string { return mountCfg.TmpDirs[ip] }
	compiler := pipeline.NewCompiler(annotations, mountCfg, proxyRoot, flags.SplittingFactor)
	dialer := dialerFor(flags.RuntimePort)
	d := dispatcher.New(dialer, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	env := map[string]string{}
	lastCode := 0
	for _, line := range splitStatements(script) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		graphs, nextEnv, err := compiler.Compile(line, cwd, env)
		if err != nil {
			fmt.Fprintln(os.Stderr, "posh:", err)
			return 3
		}
		env = nextEnv

		for _, g := range graphs {
			result, err := d.Run(ctx, g)
			if err != nil {
				return exitCodeForError(err)
			}
			lastCode = result.ExitCode
		}
	}
	return lastCode
}

func exitCodeForError(err error) int {
	var unreachable *dispatcher.ProxyUnreachableError
	if errors.As(err, &unreachable) {
		return 4
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}

// splitStatements breaks a script file into lines, each parsed
// independently by shellparse.ParseLine — POSH scripts are one
// statement-sequence per physical line, not a continued program.
func splitStatements(script string) []string {
	sc := bufio.NewScanner(strings.NewReader(script))
	var lines []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func dialerFor(port int) dispatcher.ProxyDialer {
	return func(ctx context.Context, ip string) (net.Conn, error) {
		d := net.Dialer{Timeout: 10 * time.Second}
		return d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", ip, port))
	}
}
