package compiler

import (
	"github.com/oriys/bur/internal/lang/ast"
	"github.com/oriys/bur/internal/lang/bytecode"
)

func binOp(op ast.BinaryOp) bytecode.OpCode {
	switch op {
	case ast.OpAdd:
		return bytecode.OpAdd
	case ast.OpSub:
		return bytecode.OpSub
	case ast.OpMul:
		return bytecode.OpMul
	case ast.OpDiv:
		return bytecode.OpDiv
	case ast.OpRem:
		return bytecode.OpRem
	case ast.OpGe:
		return bytecode.OpGe
	case ast.OpLe:
		return bytecode.OpLe
	case ast.OpGt:
		return bytecode.OpGt
	case ast.OpLt:
		return bytecode.OpLt
	case ast.OpEq:
		return bytecode.OpEq
	case ast.OpNe:
		return bytecode.OpNe
	default:
		panic("compiler: unknown binary op")
	}
}

func (f *funcCompiler) compileExpr(expr ast.Expr) error {
	slice := expr.Span()
	switch e := expr.(type) {
	case *ast.IntLit:
		f.emit(bytecode.Instruction{Op: bytecode.PushConstInt, Int: e.Value}, slice)
		return nil
	case *ast.FloatLit:
		f.emit(bytecode.Instruction{Op: bytecode.PushConstFloat, Float: e.Value}, slice)
		return nil
	case *ast.BoolLit:
		f.emit(bytecode.Instruction{Op: bytecode.PushConstBool, Bool: e.Value}, slice)
		return nil
	case *ast.StringLit:
		f.emit(bytecode.Instruction{Op: bytecode.PushConstString, Str: e.Value}, slice)
		return nil
	case *ast.NoneLit:
		f.emit(bytecode.Instruction{Op: bytecode.PushConstNone}, slice)
		return nil
	case *ast.ThisExpr:
		f.emit(bytecode.Instruction{Op: bytecode.PushThis}, slice)
		return nil
	case *ast.Ident:
		f.emit(bytecode.Instruction{Op: bytecode.PushVariable, Str: e.Name}, slice)
		return nil

	case *ast.BinaryExpr:
		if err := f.compileExpr(e.Left); err != nil {
			return err
		}
		if err := f.compileExpr(e.Right); err != nil {
			return err
		}
		f.emit(bytecode.Instruction{Op: binOp(e.Op)}, slice)
		return nil

	case *ast.UnaryExpr:
		if err := f.compileExpr(e.X); err != nil {
			return err
		}
		switch e.Op {
		case ast.UnaryAdd:
			f.emit(bytecode.Instruction{Op: bytecode.OpUnaryAdd}, slice)
		case ast.UnarySub:
			f.emit(bytecode.Instruction{Op: bytecode.OpUnarySub}, slice)
		case ast.UnaryNot:
			f.emit(bytecode.Instruction{Op: bytecode.OpUnaryNot}, slice)
		}
		return nil

	case *ast.LogicalExpr:
		// Bur's and/or are eager: both sides are always evaluated, no
		// conditional jump is emitted (spec.md §4.3).
		if err := f.compileExpr(e.Left); err != nil {
			return err
		}
		if err := f.compileExpr(e.Right); err != nil {
			return err
		}
		if e.Or {
			f.emit(bytecode.Instruction{Op: bytecode.OpOr}, slice)
		} else {
			f.emit(bytecode.Instruction{Op: bytecode.OpAnd}, slice)
		}
		return nil

	case *ast.ProtoCompareExpr:
		if err := f.compileExpr(e.Left); err != nil {
			return err
		}
		if err := f.compileExpr(e.Right); err != nil {
			return err
		}
		if e.Not {
			f.emit(bytecode.Instruction{Op: bytecode.ProtoNe}, slice)
		} else {
			f.emit(bytecode.Instruction{Op: bytecode.ProtoEq}, slice)
		}
		return nil

	case *ast.AccessExpr:
		return f.compileAccessRead(e)

	case *ast.NewObjectExpr:
		f.emit(bytecode.Instruction{Op: bytecode.PushNewObject}, slice)
		return nil

	case *ast.NewArrayExpr:
		f.emit(bytecode.Instruction{Op: bytecode.PushNewArray, Index: uint32(len(e.Elements))}, slice)
		for i, el := range e.Elements {
			f.emit(bytecode.Instruction{Op: bytecode.Dupe}, slice)
			f.emit(bytecode.Instruction{Op: bytecode.PushConstInt, Int: int64(i)}, slice)
			if err := f.compileExpr(el); err != nil {
				return err
			}
			f.emit(bytecode.Instruction{Op: bytecode.StoreIndex}, slice)
		}
		return nil

	case *ast.FuncLitExpr:
		idx, err := f.compileFuncLit(e)
		if err != nil {
			return err
		}
		f.emit(bytecode.Instruction{Op: bytecode.PushFunction, Index: idx}, slice)
		return nil

	default:
		return errf(slice, "compiler: unhandled expression node %T", expr)
	}
}

// compileAccessRead lowers an AccessExpr in value-producing (rvalue)
// position: member read, indexed read, prototype read, or invocation.
func (f *funcCompiler) compileAccessRead(e *ast.AccessExpr) error {
	slice := e.Span()
	switch e.Kind {
	case ast.AccessIdent:
		if err := f.compileExpr(e.BaseExpr); err != nil {
			return err
		}
		f.emit(bytecode.Instruction{Op: bytecode.PushConstString, Str: e.Name}, slice)
		f.emit(bytecode.Instruction{Op: bytecode.PushIndex}, slice)
		return nil

	case ast.AccessIndex:
		if err := f.compileExpr(e.BaseExpr); err != nil {
			return err
		}
		if err := f.compileExpr(e.Index); err != nil {
			return err
		}
		f.emit(bytecode.Instruction{Op: bytecode.PushIndex}, slice)
		return nil

	case ast.AccessPrototype:
		if err := f.compileExpr(e.BaseExpr); err != nil {
			return err
		}
		f.emit(bytecode.Instruction{Op: bytecode.PushPrototype}, slice)
		return nil

	case ast.AccessInvoke:
		for _, arg := range e.Args {
			if err := f.compileExpr(arg); err != nil {
				return err
			}
		}
		if e.ThisCall {
			// base.method(args): BaseExpr is itself the AccessIdent/AccessIndex
			// member expression; evaluate its base once, dupe it to keep a
			// `this` copy, then perform the member lookup for the function.
			member, ok := e.BaseExpr.(*ast.AccessExpr)
			if !ok {
				return errf(slice, "compiler: this-call invoke requires a member-access callee")
			}
			if err := f.compileExpr(member.BaseExpr); err != nil {
				return err
			}
			f.emit(bytecode.Instruction{Op: bytecode.Dupe}, slice)
			switch member.Kind {
			case ast.AccessIdent:
				f.emit(bytecode.Instruction{Op: bytecode.PushConstString, Str: member.Name}, slice)
			case ast.AccessIndex:
				if err := f.compileExpr(member.Index); err != nil {
					return err
				}
			default:
				return errf(slice, "compiler: unsupported this-call member kind")
			}
			f.emit(bytecode.Instruction{Op: bytecode.PushIndex}, slice)
		} else {
			if err := f.compileExpr(e.BaseExpr); err != nil {
				return err
			}
		}
		f.emit(bytecode.Instruction{Op: bytecode.Invoke, Invoke: bytecode.InvokeOperand{
			ParamCount: uint32(len(e.Args)),
			ThisCall:   e.ThisCall,
		}}, slice)
		return nil

	default:
		return errf(slice, "compiler: unknown access kind")
	}
}

// compileAssign lowers an Assign statement, implementing the three
// specialized access-chain compound-assignment patterns from spec.md
// §4.3 (base.x = v, base[k] = v, base.prototype = v as terminal
// assignment) plus a plain-identifier fallback; any other target
// shape falls through to a general arm-by-arm error since this
// reference grammar's only assignable l-values are identifiers and
// access chains.
func (f *funcCompiler) compileAssign(a *ast.Assign) error {
	slice := a.Span()
	switch t := a.Target.(type) {
	case *ast.Ident:
		if err := f.compileExpr(a.Value); err != nil {
			return err
		}
		f.emit(bytecode.Instruction{Op: bytecode.StoreVariable, Str: t.Name}, slice)
		return nil

	case *ast.AccessExpr:
		switch t.Kind {
		case ast.AccessIdent:
			if err := f.compileExpr(t.BaseExpr); err != nil {
				return err
			}
			f.emit(bytecode.Instruction{Op: bytecode.PushConstString, Str: t.Name}, slice)
			if err := f.compileExpr(a.Value); err != nil {
				return err
			}
			f.emit(bytecode.Instruction{Op: bytecode.StoreIndex}, slice)
			return nil

		case ast.AccessIndex:
			if err := f.compileExpr(t.BaseExpr); err != nil {
				return err
			}
			if err := f.compileExpr(t.Index); err != nil {
				return err
			}
			if err := f.compileExpr(a.Value); err != nil {
				return err
			}
			f.emit(bytecode.Instruction{Op: bytecode.StoreIndex}, slice)
			return nil

		case ast.AccessPrototype:
			if err := f.compileExpr(t.BaseExpr); err != nil {
				return err
			}
			if err := f.compileExpr(a.Value); err != nil {
				return err
			}
			f.emit(bytecode.Instruction{Op: bytecode.StoreProtorype}, slice)
			return nil

		default:
			return kindErrf(KindIllegalAssignment, slice, "compiler: invalid assignment target (cannot assign to a call expression)")
		}

	default:
		return kindErrf(KindIllegalAssignment, slice, "compiler: invalid assignment target %T", a.Target)
	}
}
