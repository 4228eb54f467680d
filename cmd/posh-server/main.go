// SPDX-License-Identifier: MPL-2.0

// Command posh-server is the proxy-side control server (spec.md §6): it
// binds a control port and services SubgraphRequests against a single
// served directory (--folder).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"posh/internal/proxyserver"
	"posh/pkg/poshlog"
)

func main() {
	os.Exit(run())
}

func run() int {
	var cfg proxyserver.Config
	var tracingLevel string

	rootCmd := &cobra.Command{
		Use:   "posh-server",
		Short: "POSH proxy control server",
		Args:  cobra.NoArgs,
	}
	rootCmd.Flags().StringVar(&cfg.IPAddress, "ip_address", "", "this proxy's identity in the mount table")
	rootCmd.Flags().StringVar(&cfg.Folder, "folder", "", "directory this proxy serves")
	rootCmd.Flags().StringVar(&cfg.TmpFile, "tmpfile", "", "scratch file for intermediate buffering")
	rootCmd.Flags().IntVar(&cfg.Port, "runtime_port", proxyserver.DefaultRuntimePort, "control port to bind")
	rootCmd.Flags().StringVar(&tracingLevel, "tracing_level", "none", "log level: none, error, info, or debug")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 3
	}
	if cfg.IPAddress == "" || cfg.Folder == "" {
		fmt.Fprintln(os.Stderr, "posh-server: --ip_address and --folder are required")
		return 3
	}

	level, err := poshlog.ParseLevel(tracingLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "posh-server:", err)
		return 3
	}
	logger := poshlog.New(os.Stderr, "posh-server", level)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	server := proxyserver.New(cfg, logger)
	if err := server.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "posh-server:", err)
		return 4
	}
	return 130
}
