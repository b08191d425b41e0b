// Package vm executes a CompiledModule: a stack machine dispatching
// bytecode.Instruction over a chain of call frames, each with its own
// value stack, variable-context chain, and catch stack. Property
// access, arithmetic, and exception unwinding are implemented in
// property.go, numeric.go, and errors.go respectively; this file owns
// the frame lifecycle and the instruction dispatch loop itself.
package vm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oriys/bur/internal/lang/bytecode"
	"github.com/oriys/bur/internal/lang/stringpool"
	"github.com/oriys/bur/internal/lang/value"
	"github.com/oriys/bur/internal/metrics"
	"github.com/oriys/bur/internal/observability"
)

// machine is one module execution: the shared pools, the live frame
// stack, and the currently-held exception (set only while a catch
// block is executing, per spec.md's get_exception contract).
type machine struct {
	sp       *stringpool.Pool
	pool     *value.ObjectPool
	importer Importer

	frames []*frame

	exports value.ObjectRef

	currentException value.Value
	currentSlice      bytecode.SourceSlice

	getIndexKey stringpool.Ref
	setIndexKey stringpool.Ref

	lastReturn value.Value
}

func newMachine(sp *stringpool.Pool, pool *value.ObjectPool, importer Importer) *machine {
	return &machine{
		sp:                sp,
		pool:              pool,
		importer:          importer,
		currentException:  value.Uninitialized,
		getIndexKey:       sp.Acquire("__get_index__"),
		setIndexKey:       sp.Acquire("__set_index__"),
	}
}

// Execute runs a module's init function to completion and returns its
// export object. sp and pool are shared across every module executed
// against the same Runtime; importer resolves `import` statements,
// which are only valid inside a module's init function. Its duration
// and outcome are recorded to the "bur.execute" span and to
// metrics.Global under the module's path; an error that is a thrown
// guest value unwinding past init is additionally counted as an
// uncaught throw.
func Execute(module *bytecode.CompiledModule, sp *stringpool.Pool, pool *value.ObjectPool, importer Importer) (result value.Value, err error) {
	_, span := observability.StartSpan(context.Background(), "bur.execute",
		observability.AttrModulePath.String(module.Path))
	start := time.Now()
	defer func() {
		observability.SetSpanError(span, err)
		if err == nil {
			observability.SetSpanOK(span)
		} else if _, ok := err.(*GuestError); ok {
			metrics.Global().RecordUncaughtThrow(module.Path)
		}
		span.End()
		metrics.Global().RecordExecute(module.Path, time.Since(start).Milliseconds(), err == nil)
	}()

	m := newMachine(sp, pool, importer)
	m.exports = pool.NewObject()

	init := &frame{
		module: module,
		code:   module.Init.Code,
		chain:  []*scope{newScope()},
		this:   value.None,
	}
	m.frames = []*frame{init}

	for !(len(m.frames) == 1 && init.pc >= len(init.code)) {
		stepErr := m.step()
		if stepErr == nil {
			continue
		}
		if errors.Is(stepErr, errUnwound) {
			continue
		}
		err = stepErr
		return value.None, err
	}

	init.teardownOwnScopes()
	result = value.Obj(m.exports)
	return result, nil
}

// step executes the instruction at the top frame's program counter,
// advancing it by one before dispatch so jump targets always name an
// absolute instruction index rather than a relative offset.
func (m *machine) step() error {
	cur := m.frames[len(m.frames)-1]
	if cur.pc >= len(cur.code) {
		return internalf("instruction pointer ran off the end of a function body")
	}
	instr := cur.code[cur.pc]
	cur.pc++

	switch instr.Op {
	case bytecode.SetSlice:
		m.currentSlice = instr.Slice

	case bytecode.PushConstInt:
		cur.push(value.Int(instr.Int))
	case bytecode.PushConstFloat:
		cur.push(value.Float(instr.Float))
	case bytecode.PushConstBool:
		cur.push(value.Bool(instr.Bool))
	case bytecode.PushConstString:
		cur.push(value.Str(m.sp.Acquire(instr.Str)))
	case bytecode.PushConstNone:
		cur.push(value.None)

	case bytecode.PushThis:
		cur.push(cloneIfOwned(cur.this))
	case bytecode.PushException:
		cur.push(cloneIfOwned(m.currentException))

	case bytecode.PushVariable:
		slot, ok := cur.lookup(instr.Str)
		if !ok {
			return internalf("reference to undeclared variable %q", instr.Str)
		}
		cur.push(cloneIfOwned(slot.value))

	case bytecode.InitVariable:
		cur.declare(instr.Str)

	case bytecode.StoreVariable:
		v, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing StoreVariable")
		}
		slot, ok := cur.lookup(instr.Str)
		if !ok {
			return internalf("assignment to undeclared variable %q", instr.Str)
		}
		if slot.isConst {
			dropIfObject(v)
			return m.raise("cannot assign to constant " + instr.Str)
		}
		old := slot.value
		slot.value = v
		dropIfObject(old)

	case bytecode.MarkVariableConst:
		slot, ok := cur.lookup(instr.Str)
		if !ok {
			return internalf("mark-const of undeclared variable %q", instr.Str)
		}
		slot.isConst = true

	case bytecode.PushPrototype:
		v, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing PushPrototype")
		}
		proto := value.None
		if v.Kind() == value.KindObject {
			obj := v.AsObject().Deref()
			if obj == nil {
				return internalf("prototype read on a freed object")
			}
			proto = obj.Prototype()
		}
		cur.push(cloneIfOwned(proto))
		dropIfObject(v)

	case bytecode.StoreProtorype:
		newProto, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing StoreProtorype")
		}
		objVal, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing StoreProtorype")
		}
		if objVal.Kind() != value.KindObject {
			dropIfObject(newProto)
			dropIfObject(objVal)
			return m.raise("cannot set a prototype on a " + objVal.TypeName())
		}
		obj := objVal.AsObject().Deref()
		if obj == nil {
			return internalf("prototype write on a freed object")
		}
		old := obj.Prototype()
		obj.SetPrototype(newProto)
		dropIfObject(old)
		dropIfObject(objVal)

	case bytecode.PushNewObject:
		cur.push(value.Obj(m.pool.NewObject()))

	case bytecode.PushNewArray:
		cur.push(m.newArray(instr.Index))

	case bytecode.PushFunction:
		bf, err := cur.module.Function(instr.Index)
		if err != nil {
			return err
		}
		fn := &value.Function{
			ModuleRef: cur.module,
			FuncIndex: instr.Index,
			Captured:  cur.captureChain(),
			Name:      bf.Name,
		}
		cur.push(value.Fn(fn))

	case bytecode.Invoke:
		return m.execInvoke(cur, instr)

	case bytecode.PushContext:
		cur.pushScope()
	case bytecode.PopContext:
		cur.popScope()

	case bytecode.PushIndex:
		idx, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing PushIndex")
		}
		obj, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing PushIndex")
		}
		result, err := m.getProperty(obj, idx)
		dropIfObject(idx)
		dropIfObject(obj)
		if err != nil {
			return err
		}
		cur.push(result)

	case bytecode.StoreIndex:
		val, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing StoreIndex")
		}
		idx, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing StoreIndex")
		}
		objv, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing StoreIndex")
		}
		err := m.setProperty(objv, idx, val)
		dropIfObject(idx)
		dropIfObject(objv)
		if err != nil {
			return err
		}

	case bytecode.Dupe:
		v, ok := cur.peek()
		if !ok {
			return internalf("stack underflow executing Dupe")
		}
		cur.push(cloneIfOwned(v))

	case bytecode.Pop:
		v, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing Pop")
		}
		dropIfObject(v)

	case bytecode.Throw:
		v, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing Throw")
		}
		return m.doThrow(v)

	case bytecode.Return:
		return m.execReturn(cur)

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpRem:
		return m.execArith(cur, instr.Op)

	case bytecode.OpGe, bytecode.OpLe, bytecode.OpGt, bytecode.OpLt:
		return m.execCompare(cur, instr.Op)

	case bytecode.OpEq:
		b, ok1 := cur.pop()
		a, ok2 := cur.pop()
		if !ok1 || !ok2 {
			return internalf("stack underflow executing OpEq")
		}
		res := equalValues(a, b)
		dropIfObject(a)
		dropIfObject(b)
		cur.push(value.Bool(res))

	case bytecode.OpNe:
		b, ok1 := cur.pop()
		a, ok2 := cur.pop()
		if !ok1 || !ok2 {
			return internalf("stack underflow executing OpNe")
		}
		res := !equalValues(a, b)
		dropIfObject(a)
		dropIfObject(b)
		cur.push(value.Bool(res))

	case bytecode.OpOr:
		b, ok1 := cur.pop()
		a, ok2 := cur.pop()
		if !ok1 || !ok2 {
			return internalf("stack underflow executing OpOr")
		}
		res := a.Truthy() || b.Truthy()
		dropIfObject(a)
		dropIfObject(b)
		cur.push(value.Bool(res))

	case bytecode.OpAnd:
		b, ok1 := cur.pop()
		a, ok2 := cur.pop()
		if !ok1 || !ok2 {
			return internalf("stack underflow executing OpAnd")
		}
		res := a.Truthy() && b.Truthy()
		dropIfObject(a)
		dropIfObject(b)
		cur.push(value.Bool(res))

	case bytecode.OpUnaryAdd:
		v, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing OpUnaryAdd")
		}
		if v.Kind() != value.KindInt && v.Kind() != value.KindFloat {
			t := v.TypeName()
			dropIfObject(v)
			return m.raise("unary '+' requires a numeric operand, got " + t)
		}
		cur.push(v)

	case bytecode.OpUnarySub:
		v, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing OpUnarySub")
		}
		neg, ok2 := unaryMinus(v)
		if !ok2 {
			t := v.TypeName()
			dropIfObject(v)
			return m.raise("unary '-' requires a numeric operand, got " + t)
		}
		cur.push(neg)

	case bytecode.OpUnaryNot:
		v, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing OpUnaryNot")
		}
		res := !v.Truthy()
		dropIfObject(v)
		cur.push(value.Bool(res))

	case bytecode.ProtoEq, bytecode.ProtoNe:
		b, ok1 := cur.pop()
		a, ok2 := cur.pop()
		if !ok1 || !ok2 {
			return internalf("stack underflow executing ProtoEq/ProtoNe")
		}
		same := protoIdentical(a, b)
		if instr.Op == bytecode.ProtoNe {
			same = !same
		}
		dropIfObject(a)
		dropIfObject(b)
		cur.push(value.Bool(same))

	case bytecode.Jump:
		cur.pc = int(instr.Index)

	case bytecode.JumpTrue:
		v, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing JumpTrue")
		}
		taken := v.Truthy()
		dropIfObject(v)
		if taken {
			cur.pc = int(instr.Index)
		}

	case bytecode.JumpFalse:
		v, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing JumpFalse")
		}
		taken := v.Truthy()
		dropIfObject(v)
		if !taken {
			cur.pc = int(instr.Index)
		}

	case bytecode.PushCatch:
		cur.catches = append(cur.catches, catchEntry{
			target:     instr.Index,
			ctxDepth:   len(cur.chain),
			stackDepth: len(cur.stack),
		})

	case bytecode.PopCatch:
		if n := len(cur.catches); n > 0 {
			cur.catches = cur.catches[:n-1]
		}

	case bytecode.Import:
		if m.importer == nil {
			metrics.Global().RecordImport(instr.Str, false)
			return m.raise("no module loader is configured")
		}
		_, importSpan := observability.StartSpan(context.Background(), "bur.import",
			observability.AttrModulePath.String(instr.Str))
		v, err := m.importer.Import(instr.Str)
		observability.SetSpanError(importSpan, err)
		if err == nil {
			observability.SetSpanOK(importSpan)
		}
		importSpan.End()
		metrics.Global().RecordImport(instr.Str, err == nil)
		if err != nil {
			return m.raise(fmt.Sprintf("import %q failed: %v", instr.Str, err))
		}
		cur.push(v)

	case bytecode.Export:
		v, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing Export")
		}
		exportsObj := m.exports.Deref()
		if exportsObj == nil {
			return internalf("module export object was freed mid-execution")
		}
		// Set only retains key when appending a new property; on an
		// update it keeps the already-stored key and just swaps the
		// slot, so our reference must be dropped ourselves in that case.
		key := m.sp.Acquire(instr.Str)
		old, existed := exportsObj.Get(key)
		exportsObj.Set(key, value.PlainSlot(v))
		if existed {
			if old.Kind == value.SlotValue {
				dropIfObject(old.Val)
			}
			key.Drop()
		}

	case bytecode.TempBreak, bytecode.TempContinue:
		return internalf("unpatched %s reached execution", instr.Op)

	default:
		return internalf("unhandled opcode %s", instr.Op)
	}
	return nil
}

func (m *machine) execArith(cur *frame, op bytecode.OpCode) error {
	b, ok1 := cur.pop()
	a, ok2 := cur.pop()
	if !ok1 || !ok2 {
		return internalf("stack underflow executing %s", op)
	}
	sym, err := arithSymbol(op)
	if err != nil {
		return err
	}
	result, rerr := m.arith(sym, a, b)
	dropIfObject(a)
	dropIfObject(b)
	if rerr != nil {
		return rerr
	}
	cur.push(result)
	return nil
}

func (m *machine) execCompare(cur *frame, op bytecode.OpCode) error {
	b, ok1 := cur.pop()
	a, ok2 := cur.pop()
	if !ok1 || !ok2 {
		return internalf("stack underflow executing %s", op)
	}
	sym, err := compareSymbol(op)
	if err != nil {
		return err
	}
	result, rerr := m.compare(sym, a, b)
	dropIfObject(a)
	dropIfObject(b)
	if rerr != nil {
		return rerr
	}
	cur.push(result)
	return nil
}

func arithSymbol(op bytecode.OpCode) (string, error) {
	switch op {
	case bytecode.OpAdd:
		return "+", nil
	case bytecode.OpSub:
		return "-", nil
	case bytecode.OpMul:
		return "*", nil
	case bytecode.OpDiv:
		return "/", nil
	case bytecode.OpRem:
		return "%", nil
	default:
		return "", internalf("not an arithmetic opcode: %s", op)
	}
}

func compareSymbol(op bytecode.OpCode) (string, error) {
	switch op {
	case bytecode.OpGe:
		return ">=", nil
	case bytecode.OpLe:
		return "<=", nil
	case bytecode.OpGt:
		return ">", nil
	case bytecode.OpLt:
		return "<", nil
	default:
		return "", internalf("not a comparison opcode: %s", op)
	}
}

// execInvoke implements the Invoke opcode: pop the function, then
// `this` if ThisCall, then ParamCount arguments (naturally in reverse
// order as they come off the stack), restoring left-to-right order
// before handing them to call.
func (m *machine) execInvoke(cur *frame, instr bytecode.Instruction) error {
	fnVal, ok := cur.pop()
	if !ok {
		return internalf("stack underflow executing Invoke (function)")
	}

	this := value.None
	if instr.Invoke.ThisCall {
		v, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing Invoke (this)")
		}
		this = v
	}

	n := int(instr.Invoke.ParamCount)
	args := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, ok := cur.pop()
		if !ok {
			return internalf("stack underflow executing Invoke (arguments)")
		}
		args[i] = v
	}

	result, err := m.call(fnVal, this, args)
	dropIfObject(fnVal)
	if err != nil {
		return err
	}
	cur.push(result)
	return nil
}

// call dispatches a value.Value of KindFunction or KindNative with the
// given `this` and left-to-right args, taking ownership of both: a
// bytecode function binds them into its new frame (dropped at that
// frame's teardown), a native's Invoke is expected to do the same.
func (m *machine) call(fnVal value.Value, this value.Value, args []value.Value) (value.Value, error) {
	switch fnVal.Kind() {
	case value.KindFunction:
		fn := fnVal.AsFunction()
		if fn == nil {
			dropOwned(this, args)
			return value.None, internalf("invocation of a nil function value")
		}
		fr, err := m.makeFrame(fn, this, args)
		if err != nil {
			return value.None, err
		}
		calleeIndex := len(m.frames)
		m.frames = append(m.frames, fr)
		return m.runUntil(calleeIndex)

	case value.KindNative:
		callable, ok := fnVal.AsNative().(value.NativeCallable)
		if !ok {
			dropOwned(this, args)
			return value.None, m.raise(fnVal.TypeName() + " is not callable")
		}
		return callable.Invoke(this, args)

	default:
		dropOwned(this, args)
		return value.None, m.raise("cannot invoke a " + fnVal.TypeName())
	}
}

func dropOwned(this value.Value, args []value.Value) {
	dropIfObject(this)
	for _, a := range args {
		dropIfObject(a)
	}
}

// makeFrame builds the callee's frame: its context chain starts as a
// copy of the closure's captured chain (shared *scope pointers) plus
// one fresh scope this call owns, seeded with args pushed so the
// first param-binding StoreVariable in the compiled body pops the
// first argument — see frame.go's push/pop ordering.
func (m *machine) makeFrame(fn *value.Function, this value.Value, args []value.Value) (*frame, error) {
	module, ok := fn.ModuleRef.(*bytecode.CompiledModule)
	if !ok || module == nil {
		dropOwned(this, args)
		return nil, internalf("function value has no compiled module reference")
	}
	bf, err := module.Function(fn.FuncIndex)
	if err != nil {
		dropOwned(this, args)
		return nil, err
	}
	if len(args) != len(bf.Params) {
		name := bf.Name
		if name == "" {
			name = "<anonymous>"
		}
		got := len(args)
		want := len(bf.Params)
		dropOwned(this, args)
		return nil, m.raise(fmt.Sprintf("%s() expects %d argument(s), got %d", name, want, got))
	}

	var chain []*scope
	if captured, ok := fn.Captured.([]*scope); ok {
		chain = make([]*scope, len(captured), len(captured)+1)
		copy(chain, captured)
	}
	capturedLen := len(chain)
	chain = append(chain, newScope())

	fr := &frame{
		module:      module,
		code:        bf.Code,
		chain:       chain,
		capturedLen: capturedLen,
		this:        this,
	}
	for i := len(args) - 1; i >= 0; i-- {
		fr.push(args[i])
	}
	return fr, nil
}

func (m *machine) execReturn(cur *frame) error {
	v, ok := cur.pop()
	if !ok {
		v = value.None
	}
	cur.truncateStack(0)
	cur.teardownOwnScopes()
	dropIfObject(cur.this)
	m.frames = m.frames[:len(m.frames)-1]
	m.lastReturn = v
	return nil
}

// runUntil drives step() until the frame pushed at calleeIndex (and
// everything above it) is gone, returning its Return value. If an
// unwind lands above calleeIndex (a catch inside the callee's own call
// tree) it keeps looping; if the unwind reaches calleeIndex or below
// (the callee itself was thrown past), it propagates errUnwound to its
// own caller, which performs the identical check one level up.
func (m *machine) runUntil(calleeIndex int) (value.Value, error) {
	for len(m.frames) > calleeIndex {
		err := m.step()
		if err == nil {
			continue
		}
		if errors.Is(err, errUnwound) {
			if len(m.frames) > calleeIndex {
				continue
			}
			return value.None, errUnwound
		}
		return value.None, err
	}
	return m.lastReturn, nil
}

// doThrow searches the frame stack top-down for a live catch, resuming
// there if found; otherwise it tears down every frame and returns a
// terminal *GuestError. It mutates m.frames exactly once per throw, so
// every nested runUntil sees the same post-unwind stack.
func (m *machine) doThrow(thrown value.Value) error {
	for len(m.frames) > 0 {
		cur := m.frames[len(m.frames)-1]
		if n := len(cur.catches); n > 0 {
			c := cur.catches[n-1]
			cur.catches = cur.catches[:n-1]
			cur.truncateStack(c.stackDepth)
			cur.truncateScopes(c.ctxDepth)
			cur.pc = int(c.target)
			old := m.currentException
			m.currentException = thrown
			dropIfObject(old)
			return errUnwound
		}
		cur.truncateStack(0)
		cur.teardownOwnScopes()
		dropIfObject(cur.this)
		m.frames = m.frames[:len(m.frames)-1]
	}
	return &GuestError{Value: thrown, Slice: m.currentSlice}
}

// raise interns msg as a guest String and throws it, the VM's own
// route to reporting a runtime-detected guest-facing failure (a bad
// operand type, an arity mismatch, division by zero) through the exact
// same catchable path as a guest `throw` statement.
func (m *machine) raise(msg string) error {
	return m.doThrow(value.Str(m.sp.Acquire(msg)))
}
