package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/bur/internal/output"
	"github.com/oriys/bur/internal/runtime"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file.bur>",
		Short: "Compile and execute a Bur script, printing its export value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(args[0])
		},
	}
	return cmd
}

func runFile(file string) error {
	src, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("bur run: reading %q: %w", file, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loader, err := buildSourceLoader(context.Background(), cfg, filepath.Dir(file))
	if err != nil {
		return err
	}

	rt := runtime.New(runtimeConfig(cfg), loader)
	defer rt.Close()

	path := filepath.Base(file)
	start := time.Now()
	result, err := rt.Run(path, string(src))
	elapsed := time.Since(start)

	p := output.NewPrinter(output.ParseFormat(outputFormat))
	if err != nil {
		p.PrintExecuteResult(output.ExecuteResult{
			Path:       path,
			Success:    false,
			Error:      err.Error(),
			DurationMs: elapsed.Milliseconds(),
		})
		return fmt.Errorf("bur run: %w", err)
	}
	return p.PrintExecuteResult(output.ExecuteResult{
		Path:       path,
		Success:    true,
		Kind:       result.Kind().String(),
		Result:     result.String(),
		DurationMs: elapsed.Milliseconds(),
	})
}
