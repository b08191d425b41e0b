package bytecode

import (
	"fmt"
	"strings"
)

// Function is one compiled callable: its own instruction stream plus
// the names of its declared parameters, in order. A Function has no
// constant table — constants are inline instruction operands — and
// holds no closure data, which lives in the VM's context chain, so
// cloning a CompiledModule for a second concurrent execution is cheap.
type Function struct {
	Name       string
	Params     []string
	Code       []Instruction
	IsMethod   bool // true if declared inside a class body, takes an implicit `this`
}

// Disassemble renders the function's instruction stream, one per line.
func (f *Function) Disassemble() string {
	var b strings.Builder
	fmt.Fprintf(&b, "function %s(%s):\n", f.Name, strings.Join(f.Params, ", "))
	for i, instr := range f.Code {
		fmt.Fprintf(&b, "  %4d  %s\n", i, instr)
	}
	return b.String()
}

// CompiledModule is the relocatable output of compiling one module's
// AST: an init-function instruction stream (imports, class/function
// setup, and top-level statements, in that order) plus every declared
// function/method, addressed by index from PushFunction instructions.
type CompiledModule struct {
	Path  string
	Init  Function
	Funcs []Function
}

// Disassemble renders the whole module: the init function followed by
// entry of Funcs, in index order.
func (m *CompiledModule) Disassemble() string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %q\n", m.Path)
	b.WriteString(m.Init.Disassemble())
	for _, fn := range m.Funcs {
		b.WriteString(fn.Disassemble())
	}
	return b.String()
}

// Function looks up a declared function by index, as referenced by a
// PushFunction instruction's Index operand.
func (m *CompiledModule) Function(index uint32) (*Function, error) {
	if int(index) >= len(m.Funcs) {
		return nil, fmt.Errorf("bytecode: function index %d out of range (module %q has %d functions)", index, m.Path, len(m.Funcs))
	}
	return &m.Funcs[index], nil
}
