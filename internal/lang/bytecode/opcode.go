// Package bytecode defines Bur's compiled instruction format: the
// Instruction/OpCode pair the compiler emits and the VM dispatches,
// plus the CompiledModule/Function container a module's compiled form
// is packaged into.
package bytecode

import "fmt"

// OpCode is a single bytecode operation.
type OpCode uint8

const (
	SetSlice OpCode = iota // operand: SourceSlice — attributes the following instructions to a source range for error reporting

	PushVariable  // operand: StringOperand(name)
	PushException // pushes the currently held exception
	PushThis      // pushes the current "this" value
	PushPrototype // pops a value, pushes its prototype
	StoreProtorype

	PushConstInt    // operand: IntOperand
	PushConstFloat  // operand: FloatOperand
	PushConstBool   // operand: BoolOperand
	PushConstString // operand: StringOperand
	PushFunction    // operand: IndexOperand into CompiledModule.Funcs
	PushNewObject
	PushNewArray // operand: IndexOperand(initial_size)

	PushConstNone

	StoreVariable      // operand: StringOperand(name)
	InitVariable       // operand: StringOperand(name)
	MarkVariableConst  // operand: StringOperand(name)

	// Invoke stack shape, bottom to top: <params...> <this?> <function>.
	// Function is always topmost (popped first); `this` is popped next
	// only when ThisCall is set; the param_count values below that are
	// popped last and un-reversed to restore left-to-right order.
	Invoke // operand: InvokeOperand{ParamCount, ThisCall}

	PushContext
	PopContext

	PushIndex  // stack, bottom to top: <object> <index>
	StoreIndex // stack, bottom to top: <object> <index> <value>

	Dupe
	Pop
	Throw
	Return

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpGe
	OpLe
	OpGt
	OpLt
	OpEq
	OpNe
	OpOr
	OpAnd
	OpUnaryAdd
	OpUnarySub
	OpUnaryNot

	ProtoEq
	ProtoNe

	Jump      // operand: IndexOperand(location)
	JumpTrue  // operand: IndexOperand(location)
	JumpFalse // operand: IndexOperand(location)

	PushCatch // operand: IndexOperand(location)
	PopCatch

	Import // operand: StringOperand(path) — only valid in a module's init function
	Export // operand: StringOperand(name)

	TempBreak    // compiler-internal placeholder; never valid at execution time
	TempContinue // compiler-internal placeholder; never valid at execution time
)

var opcodeNames = [...]string{
	"SetSlice",
	"PushVariable", "PushException", "PushThis", "PushPrototype", "StoreProtorype",
	"PushConstInt", "PushConstFloat", "PushConstBool", "PushConstString", "PushFunction",
	"PushNewObject", "PushNewArray",
	"PushConstNone",
	"StoreVariable", "InitVariable", "MarkVariableConst",
	"Invoke",
	"PushContext", "PopContext",
	"PushIndex", "StoreIndex",
	"Dupe", "Pop", "Throw", "Return",
	"OpAdd", "OpSub", "OpMul", "OpDiv", "OpRem",
	"OpGe", "OpLe", "OpGt", "OpLt", "OpEq", "OpNe", "OpOr", "OpAnd",
	"OpUnaryAdd", "OpUnarySub", "OpUnaryNot",
	"ProtoEq", "ProtoNe",
	"Jump", "JumpTrue", "JumpFalse",
	"PushCatch", "PopCatch",
	"Import", "Export",
	"TempBreak", "TempContinue",
}

func (op OpCode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("OpCode(%d)", op)
}

// SourceSlice attributes an instruction range to a byte span in the
// original source, for error messages and stack traces.
type SourceSlice struct {
	Start, End uint32
	Line       uint32
}

// InvokeOperand is the operand shape for Invoke.
type InvokeOperand struct {
	ParamCount uint32
	ThisCall   bool
}

// Instruction is one bytecode operation plus its operand. Exactly one
// of the typed fields is meaningful, selected by Op; unused fields are
// simply zero. This flat-struct shape (rather than an interface per
// opcode) keeps the instruction stream one contiguous slice, matching
// how the compiler emits and the VM walks it by integer index.
type Instruction struct {
	Op     OpCode
	Str    string
	Int    int64
	Float  float64
	Bool   bool
	Index  uint32
	Slice  SourceSlice
	Invoke InvokeOperand
}

func (i Instruction) String() string {
	switch i.Op {
	case PushVariable, StoreVariable, InitVariable, MarkVariableConst, PushConstString, Import, Export:
		return fmt.Sprintf("%-18s %q", i.Op, i.Str)
	case PushConstInt:
		return fmt.Sprintf("%-18s %d", i.Op, i.Int)
	case PushConstFloat:
		return fmt.Sprintf("%-18s %g", i.Op, i.Float)
	case PushConstBool:
		return fmt.Sprintf("%-18s %t", i.Op, i.Bool)
	case PushFunction, PushNewArray, Jump, JumpTrue, JumpFalse, PushCatch:
		return fmt.Sprintf("%-18s %d", i.Op, i.Index)
	case Invoke:
		return fmt.Sprintf("%-18s params=%d this_call=%t", i.Op, i.Invoke.ParamCount, i.Invoke.ThisCall)
	case SetSlice:
		return fmt.Sprintf("%-18s [%d:%d] line %d", i.Op, i.Slice.Start, i.Slice.End, i.Slice.Line)
	default:
		return i.Op.String()
	}
}
