package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oriys/bur/internal/runtime"
)

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive Bur REPL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl()
		},
	}
}

// runRepl shares one Runtime (and so one object/string pool) across
// every line entered, each compiled and executed as its own module so
// a typo on one line never corrupts a previous line's bindings.
func runRepl() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loader, err := buildSourceLoader(context.Background(), cfg, ".")
	if err != nil {
		return err
	}
	rt := runtime.New(runtimeConfig(cfg), loader)
	defer rt.Close()

	fmt.Println("bur repl — Ctrl-D to exit")
	scanner := bufio.NewScanner(os.Stdin)
	line := 0
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return nil
		}
		src := scanner.Text()
		if src == "" {
			continue
		}
		line++
		path := fmt.Sprintf("<repl:%d>", line)
		result, err := rt.Run(path, src)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		fmt.Printf("%s = %s\n", result.Kind(), result.String())
	}
}
