// Command bur is the Bur language CLI: run and compile local scripts,
// drive a REPL, publish/inspect/roll back modules in the durable
// registry, and run a long-lived daemon exposing the gRPC runtime and
// a Prometheus /metrics endpoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	outputFormat string
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bur",
		Short: "Bur language runtime CLI",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a bur config file (YAML)")
	root.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, wide, json, yaml")

	root.AddCommand(newRunCmd())
	root.AddCommand(newCompileCmd())
	root.AddCommand(newReplCmd())
	root.AddCommand(newModuleCmd())
	root.AddCommand(newServeCmd())
	return root
}
