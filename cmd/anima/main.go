// Package main is the CLI entry point for the ANIMA gateway.
//
// ANIMA sits between chat surfaces and an agent runtime: it accepts
// messages over a hardened socket, runs them (optionally inside a
// sandboxed container), and streams run progress back to every
// connected surface as an ordered event feed.
//
// # Basic Usage
//
// Start the gateway:
//
//	anima serve --config anima.yaml
//
// Chat against a running gateway:
//
//	anima chat --url ws://127.0.0.1:8787/ws --session main
//
// Inspect the container argv a sandbox policy compiles to:
//
//	anima sandbox-args --config anima.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "anima",
		Short:         "ANIMA agent gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("ANIMA_CONFIG"), "path to config file (yaml or json5)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newSandboxArgsCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
