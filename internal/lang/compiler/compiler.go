// Package compiler lowers a parsed Bur AST (internal/lang/ast) into a
// bytecode.CompiledModule: an init-function instruction stream
// (imports, then class setup, then function declarations, then every
// other top-level statement, in that order — spec.md §4.3) plus every
// declared function/method/closure, addressed by index.
package compiler

import (
	"context"
	"time"

	"github.com/oriys/bur/internal/lang/ast"
	"github.com/oriys/bur/internal/lang/bytecode"
	"github.com/oriys/bur/internal/lang/token"
	"github.com/oriys/bur/internal/metrics"
	"github.com/oriys/bur/internal/observability"
)

// Compile lowers prog into a CompiledModule for the module at path,
// recording its duration and outcome to the "bur.compile" span and to
// metrics.Global under the module's path.
func Compile(prog *ast.Program, path string) (module *bytecode.CompiledModule, err error) {
	_, span := observability.StartSpan(context.Background(), "bur.compile",
		observability.AttrModulePath.String(path))
	start := time.Now()
	defer func() {
		observability.SetSpanError(span, err)
		if err == nil {
			observability.SetSpanOK(span)
		}
		span.End()
		metrics.Global().RecordCompile(path, time.Since(start).Milliseconds(), err == nil)
	}()

	module, err = compile(prog, path)
	return module, err
}

func compile(prog *ast.Program, path string) (*bytecode.CompiledModule, error) {
	c := &compilerState{module: &bytecode.CompiledModule{Path: path}}

	init := &funcCompiler{c: c, isInit: true}

	for _, imp := range prog.Imports {
		init.emit(bytecode.Instruction{Op: bytecode.Import, Str: imp.Path}, imp.Span())
		name := imp.As
		if name == "" {
			name = imp.Path
		}
		init.emit(bytecode.Instruction{Op: bytecode.InitVariable, Str: name}, imp.Span())
		init.emit(bytecode.Instruction{Op: bytecode.StoreVariable, Str: name}, imp.Span())
	}

	for _, cls := range prog.Classes {
		if err := init.compileClass(cls); err != nil {
			return nil, err
		}
	}

	for _, fn := range prog.Functions {
		if err := init.compileFuncDecl(fn); err != nil {
			return nil, err
		}
	}

	for _, stmt := range prog.Body {
		if err := init.compileStmt(stmt); err != nil {
			return nil, err
		}
	}

	c.module.Init = bytecode.Function{Name: "<init>", Code: init.code}
	return c.module, nil
}

// compilerState is shared by every funcCompiler lowering the same module.
type compilerState struct {
	module *bytecode.CompiledModule
}

func (c *compilerState) addFunction(fn bytecode.Function) uint32 {
	idx := uint32(len(c.module.Funcs))
	c.module.Funcs = append(c.module.Funcs, fn)
	return idx
}

// loopPatch tracks the jump instructions a break/continue inside the
// current loop left behind, so the loop's compiler can patch them once
// it knows the loop's header and exit instruction locations. baseDepth
// is the funcCompiler's ctxDepth at the point the loop's own scopes
// begin; break/continue must unwind the context chain back down to
// exactly that depth before jumping, since they may fire from inside
// arbitrarily nested if/try blocks within the loop body.
type loopPatch struct {
	breaks    []int
	continues []int
	baseDepth int
}

// funcCompiler emits one function's instruction stream. TempBreak and
// TempContinue (spec.md's placeholder opcodes) are emitted eagerly and
// rewritten to concrete Jump instructions once their enclosing loop's
// boundaries are known — never left in the output, matching the
// opcode doc's "an error should be thrown if come across during
// execution" contract.
type funcCompiler struct {
	c        *compilerState
	code     []bytecode.Instruction
	loops    []*loopPatch
	ctxDepth int  // number of PushContext not yet matched by a PopContext
	isInit   bool // compiling the module's top-level init function body, not a nested func/method/closure
}

func (f *funcCompiler) emit(instr bytecode.Instruction, slice token.Slice) int {
	f.code = append(f.code, bytecode.Instruction{Op: bytecode.SetSlice, Slice: bytecode.SourceSlice{
		Start: slice.Start, End: slice.End, Line: slice.Line,
	}})
	idx := len(f.code)
	f.code = append(f.code, instr)
	return idx
}

func (f *funcCompiler) here() uint32 { return uint32(len(f.code)) }

func (f *funcCompiler) patchJump(at int, target uint32) {
	f.code[at].Index = target
}

// pushCtx/popCtx wrap every block-scoped PushContext/PopContext pair so
// ctxDepth always reflects exactly how many contexts are open at the
// current point in the instruction stream, regardless of how deeply
// if/while/try/for-each nest.
func (f *funcCompiler) pushCtx(slice token.Slice) {
	f.emit(bytecode.Instruction{Op: bytecode.PushContext}, slice)
	f.ctxDepth++
}

func (f *funcCompiler) popCtx(slice token.Slice) {
	f.emit(bytecode.Instruction{Op: bytecode.PopContext}, slice)
	f.ctxDepth--
}

func (f *funcCompiler) compileClass(cls *ast.ClassDecl) error {
	ctor := &funcCompiler{c: f.c}
	slice := cls.Span()

	ctor.emit(bytecode.Instruction{Op: bytecode.PushNewObject}, slice)
	ctor.emit(bytecode.Instruction{Op: bytecode.InitVariable, Str: "self"}, slice)
	ctor.emit(bytecode.Instruction{Op: bytecode.StoreVariable, Str: "self"}, slice)

	if cls.Parent != nil {
		ctor.emit(bytecode.Instruction{Op: bytecode.PushVariable, Str: "self"}, slice)
		if err := ctor.compileExpr(cls.Parent); err != nil {
			return err
		}
		ctor.emit(bytecode.Instruction{Op: bytecode.StoreProtorype}, slice)
	}

	for _, field := range cls.Fields {
		ctor.emit(bytecode.Instruction{Op: bytecode.PushVariable, Str: "self"}, field.Span())
		ctor.emit(bytecode.Instruction{Op: bytecode.PushConstString, Str: field.Name}, field.Span())
		if field.Value != nil {
			if err := ctor.compileExpr(field.Value); err != nil {
				return err
			}
		} else {
			ctor.emit(bytecode.Instruction{Op: bytecode.PushConstNone}, field.Span())
		}
		ctor.emit(bytecode.Instruction{Op: bytecode.StoreIndex}, field.Span())
	}

	for _, m := range cls.Methods {
		idx, err := f.compileFunction(m)
		if err != nil {
			return err
		}
		ctor.emit(bytecode.Instruction{Op: bytecode.PushVariable, Str: "self"}, m.Span())
		ctor.emit(bytecode.Instruction{Op: bytecode.PushConstString, Str: m.Name}, m.Span())
		ctor.emit(bytecode.Instruction{Op: bytecode.PushFunction, Index: idx}, m.Span())
		ctor.emit(bytecode.Instruction{Op: bytecode.StoreIndex}, m.Span())
	}

	ctor.emit(bytecode.Instruction{Op: bytecode.PushVariable, Str: "self"}, slice)
	ctor.emit(bytecode.Instruction{Op: bytecode.Return}, slice)

	ctorIdx := f.c.addFunction(bytecode.Function{Name: cls.Name, Code: ctor.code})

	f.emit(bytecode.Instruction{Op: bytecode.InitVariable, Str: cls.Name}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.PushFunction, Index: ctorIdx}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.StoreVariable, Str: cls.Name}, slice)
	return nil
}

func (f *funcCompiler) compileFuncDecl(fn *ast.FuncDecl) error {
	idx, err := f.compileFunction(fn)
	if err != nil {
		return err
	}
	slice := fn.Span()
	f.emit(bytecode.Instruction{Op: bytecode.InitVariable, Str: fn.Name}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.PushFunction, Index: idx}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.StoreVariable, Str: fn.Name}, slice)
	return nil
}

// compileFunction lowers a function body (shared by top-level funcs,
// methods, and closures) and registers it on the module, returning its
// function-table index.
func (f *funcCompiler) compileFunction(fn *ast.FuncDecl) (uint32, error) {
	body := &funcCompiler{c: f.c}
	body.emit(bytecode.Instruction{Op: bytecode.PushContext}, fn.Span())
	for _, p := range fn.Params {
		body.emit(bytecode.Instruction{Op: bytecode.InitVariable, Str: p}, fn.Span())
		body.emit(bytecode.Instruction{Op: bytecode.StoreVariable, Str: p}, fn.Span())
	}
	for _, stmt := range fn.Body {
		if err := body.compileStmt(stmt); err != nil {
			return 0, err
		}
	}
	body.emit(bytecode.Instruction{Op: bytecode.PushConstNone}, fn.Span())
	body.emit(bytecode.Instruction{Op: bytecode.Return}, fn.Span())
	body.emit(bytecode.Instruction{Op: bytecode.PopContext}, fn.Span())

	return f.c.addFunction(bytecode.Function{
		Name:     fn.Name,
		Params:   fn.Params,
		Code:     body.code,
		IsMethod: fn.IsMethod,
	}), nil
}

func (f *funcCompiler) compileFuncLit(lit *ast.FuncLitExpr) (uint32, error) {
	return f.compileFunction(&ast.FuncDecl{Params: lit.Params, Body: lit.Body})
}

func (f *funcCompiler) compileStmt(stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		if err := f.compileExpr(s.X); err != nil {
			return err
		}
		f.emit(bytecode.Instruction{Op: bytecode.Pop}, s.Span())
		return nil

	case *ast.VarDecl:
		f.emit(bytecode.Instruction{Op: bytecode.InitVariable, Str: s.Name}, s.Span())
		if s.Value != nil {
			if err := f.compileExpr(s.Value); err != nil {
				return err
			}
		} else {
			f.emit(bytecode.Instruction{Op: bytecode.PushConstNone}, s.Span())
		}
		f.emit(bytecode.Instruction{Op: bytecode.StoreVariable, Str: s.Name}, s.Span())
		if s.Const {
			f.emit(bytecode.Instruction{Op: bytecode.MarkVariableConst, Str: s.Name}, s.Span())
		}
		return nil

	case *ast.Assign:
		return f.compileAssign(s)

	case *ast.IfStmt:
		return f.compileIf(s)

	case *ast.WhileStmt:
		return f.compileWhile(s)

	case *ast.ForEachStmt:
		return f.compileForEach(s)

	case *ast.TryStmt:
		return f.compileTry(s)

	case *ast.ReturnStmt:
		if s.Value != nil {
			if err := f.compileExpr(s.Value); err != nil {
				return err
			}
		} else {
			f.emit(bytecode.Instruction{Op: bytecode.PushConstNone}, s.Span())
		}
		f.emit(bytecode.Instruction{Op: bytecode.Return}, s.Span())
		return nil

	case *ast.BreakStmt:
		if len(f.loops) == 0 {
			return kindErrf(KindIllegalBreak, s.Span(), "break outside of a loop")
		}
		lp := f.loops[len(f.loops)-1]
		for d := f.ctxDepth; d > lp.baseDepth; d-- {
			f.emit(bytecode.Instruction{Op: bytecode.PopContext}, s.Span())
		}
		idx := f.emit(bytecode.Instruction{Op: bytecode.TempBreak}, s.Span())
		lp.breaks = append(lp.breaks, idx)
		return nil

	case *ast.ContinueStmt:
		if len(f.loops) == 0 {
			return kindErrf(KindIllegalContinue, s.Span(), "continue outside of a loop")
		}
		lp := f.loops[len(f.loops)-1]
		for d := f.ctxDepth; d > lp.baseDepth; d-- {
			f.emit(bytecode.Instruction{Op: bytecode.PopContext}, s.Span())
		}
		idx := f.emit(bytecode.Instruction{Op: bytecode.TempContinue}, s.Span())
		lp.continues = append(lp.continues, idx)
		return nil

	case *ast.ThrowStmt:
		if err := f.compileExpr(s.Value); err != nil {
			return err
		}
		f.emit(bytecode.Instruction{Op: bytecode.Throw}, s.Span())
		return nil

	case *ast.ExportStmt:
		if !f.isInit {
			return kindErrf(KindIllegalExport, s.Span(), "export is only valid at the module's top-level init scope")
		}
		if err := f.compileExpr(s.Value); err != nil {
			return err
		}
		f.emit(bytecode.Instruction{Op: bytecode.Export, Str: s.Name}, s.Span())
		return nil

	case *ast.FuncDecl:
		return f.compileFuncDecl(s)

	case *ast.ClassDecl:
		return f.compileClass(s)

	case *ast.ImportStmt:
		return errf(s.Span(), "import is only valid as a module top-level statement")

	default:
		return errf(stmt.Span(), "compiler: unhandled statement node %T", stmt)
	}
}

func (f *funcCompiler) compileIf(s *ast.IfStmt) error {
	if err := f.compileExpr(s.Cond); err != nil {
		return err
	}
	jumpFalse := f.emit(bytecode.Instruction{Op: bytecode.JumpFalse}, s.Span())

	f.pushCtx(s.Span())
	for _, st := range s.Then {
		if err := f.compileStmt(st); err != nil {
			return err
		}
	}
	f.popCtx(s.Span())

	if s.Else == nil {
		f.patchJump(jumpFalse, f.here())
		return nil
	}

	jumpEnd := f.emit(bytecode.Instruction{Op: bytecode.Jump}, s.Span())
	f.patchJump(jumpFalse, f.here())

	f.pushCtx(s.Span())
	for _, st := range s.Else {
		if err := f.compileStmt(st); err != nil {
			return err
		}
	}
	f.popCtx(s.Span())

	f.patchJump(jumpEnd, f.here())
	return nil
}

func (f *funcCompiler) compileWhile(s *ast.WhileStmt) error {
	lp := &loopPatch{baseDepth: f.ctxDepth}
	f.loops = append(f.loops, lp)
	defer func() { f.loops = f.loops[:len(f.loops)-1] }()

	header := f.here()
	if err := f.compileExpr(s.Cond); err != nil {
		return err
	}
	var exitJump int
	if s.Until {
		exitJump = f.emit(bytecode.Instruction{Op: bytecode.JumpTrue}, s.Span())
	} else {
		exitJump = f.emit(bytecode.Instruction{Op: bytecode.JumpFalse}, s.Span())
	}

	f.pushCtx(s.Span())
	for _, st := range s.Body {
		if err := f.compileStmt(st); err != nil {
			return err
		}
	}
	f.popCtx(s.Span())

	f.emit(bytecode.Instruction{Op: bytecode.Jump, Index: header}, s.Span())
	end := f.here()
	f.patchJump(exitJump, end)

	for _, b := range lp.breaks {
		f.code[b] = bytecode.Instruction{Op: bytecode.Jump, Index: end}
	}
	for _, c := range lp.continues {
		f.code[c] = bytecode.Instruction{Op: bytecode.Jump, Index: header}
	}
	return nil
}

// compileForEach desugars into two compiler-generated variables — a
// value binding holding the iterable and an index counter — per
// spec.md §4.3: the header tests `index < value.length`, the body
// binds the element by indexing the value, and the increment block
// advances the index and loops back to the header.
func (f *funcCompiler) compileForEach(s *ast.ForEachStmt) error {
	slice := s.Span()
	valueVar := "__each_" + s.ElementName + "_value__"
	indexVar := "__each_" + s.ElementName + "_index__"

	lp := &loopPatch{baseDepth: f.ctxDepth}
	f.loops = append(f.loops, lp)
	defer func() { f.loops = f.loops[:len(f.loops)-1] }()

	f.pushCtx(slice)

	f.emit(bytecode.Instruction{Op: bytecode.InitVariable, Str: valueVar}, slice)
	if err := f.compileExpr(s.Iterable); err != nil {
		return err
	}
	f.emit(bytecode.Instruction{Op: bytecode.StoreVariable, Str: valueVar}, slice)

	f.emit(bytecode.Instruction{Op: bytecode.InitVariable, Str: indexVar}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.PushConstInt, Int: 0}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.StoreVariable, Str: indexVar}, slice)

	header := f.here()
	f.emit(bytecode.Instruction{Op: bytecode.PushVariable, Str: indexVar}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.PushVariable, Str: valueVar}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.PushConstString, Str: "length"}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.PushIndex}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.OpLt}, slice)
	exitJump := f.emit(bytecode.Instruction{Op: bytecode.JumpFalse}, slice)

	f.pushCtx(slice)
	f.emit(bytecode.Instruction{Op: bytecode.InitVariable, Str: s.ElementName}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.PushVariable, Str: valueVar}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.PushVariable, Str: indexVar}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.PushIndex}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.StoreVariable, Str: s.ElementName}, slice)

	for _, st := range s.Body {
		if err := f.compileStmt(st); err != nil {
			return err
		}
	}
	f.popCtx(slice)

	incr := f.here()
	f.emit(bytecode.Instruction{Op: bytecode.PushVariable, Str: indexVar}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.PushConstInt, Int: 1}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.OpAdd}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.StoreVariable, Str: indexVar}, slice)
	f.emit(bytecode.Instruction{Op: bytecode.Jump, Index: header}, slice)
	end := f.here()
	f.patchJump(exitJump, end)
	f.popCtx(slice)

	exit := f.here()
	for _, b := range lp.breaks {
		f.code[b] = bytecode.Instruction{Op: bytecode.Jump, Index: exit}
	}
	for _, c := range lp.continues {
		f.code[c] = bytecode.Instruction{Op: bytecode.Jump, Index: incr}
	}
	return nil
}

func (f *funcCompiler) compileTry(s *ast.TryStmt) error {
	slice := s.Span()
	pushCatch := f.emit(bytecode.Instruction{Op: bytecode.PushCatch}, slice)

	f.pushCtx(slice)
	for _, st := range s.Try {
		if err := f.compileStmt(st); err != nil {
			return err
		}
	}
	f.popCtx(slice)
	f.emit(bytecode.Instruction{Op: bytecode.PopCatch}, slice)
	jumpEnd := f.emit(bytecode.Instruction{Op: bytecode.Jump}, slice)

	catchStart := f.here()
	f.patchJump(pushCatch, catchStart)

	f.pushCtx(slice)
	if s.CatchName != "" {
		f.emit(bytecode.Instruction{Op: bytecode.InitVariable, Str: s.CatchName}, slice)
		f.emit(bytecode.Instruction{Op: bytecode.PushException}, slice)
		f.emit(bytecode.Instruction{Op: bytecode.StoreVariable, Str: s.CatchName}, slice)
	}
	for _, st := range s.Catch {
		if err := f.compileStmt(st); err != nil {
			return err
		}
	}
	f.popCtx(slice)

	f.patchJump(jumpEnd, f.here())
	return nil
}
