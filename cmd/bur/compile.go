package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/oriys/bur/internal/lang/ast"
	"github.com/oriys/bur/internal/lang/compiler"
	"github.com/oriys/bur/internal/lang/token"
)

func newCompileCmd() *cobra.Command {
	var disasm bool
	cmd := &cobra.Command{
		Use:   "compile <file.bur>",
		Short: "Compile a Bur script to bytecode without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return compileFile(args[0], disasm)
		},
	}
	cmd.Flags().BoolVar(&disasm, "disasm", false, "print the compiled module's disassembly")
	return cmd
}

func compileFile(file string, disasm bool) error {
	src, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("bur compile: reading %q: %w", file, err)
	}
	path := filepath.Base(file)

	scanner := token.New(string(src))
	prog, err := ast.Parse(scanner)
	if err != nil {
		return fmt.Errorf("bur compile: parsing %q: %w", path, err)
	}
	module, err := compiler.Compile(prog, path)
	if err != nil {
		return fmt.Errorf("bur compile: %w", err)
	}

	if disasm {
		fmt.Print(module.Disassemble())
		return nil
	}
	fmt.Printf("compiled %q: init + %d function(s)\n", path, len(module.Funcs))
	return nil
}
