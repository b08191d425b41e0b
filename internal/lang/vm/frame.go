package vm

import (
	"github.com/oriys/bur/internal/lang/bytecode"
	"github.com/oriys/bur/internal/lang/value"
)

// varSlot is one named binding: its current value and whether
// MarkVariableConst has sealed it against further StoreVariable calls.
type varSlot struct {
	value   value.Value
	isConst bool
}

// scope is one entry in a context chain: an unordered set of bindings
// introduced by a single PushContext. A frame-owned scope is torn down
// (dropping any object/string bindings it holds) once its matching
// PopContext runs or the frame itself returns — unless some PushFunction
// captured it into a closure along the way, in which case it is simply
// detached and its bindings left alone, since a closure may read or
// mutate them long after this frame is gone (DESIGN.md's shared-capture
// decision means a captured scope's lifetime is no longer tied to any
// one frame; this trades a reference leak on an escaping closure's
// captured locals for correctness).
type scope struct {
	vars     map[string]*varSlot
	captured bool
}

func newScope() *scope { return &scope{vars: make(map[string]*varSlot)} }

// catchEntry is one entry on a frame's catch stack: where to resume,
// and the context/value-stack depths to unwind back to first.
type catchEntry struct {
	target     uint32
	ctxDepth   int
	stackDepth int
}

// frame is one live call: a function's own instruction stream, program
// counter, value stack, context chain, and catch stack. capturedLen is
// the length of the chain's closure-shared prefix — only scopes beyond
// it are torn down (and their object bindings dropped) when the frame
// exits, whether by Return or by an unwinding Throw.
type frame struct {
	module      *bytecode.CompiledModule
	code        []bytecode.Instruction
	pc          int
	stack       []value.Value
	chain       []*scope
	capturedLen int
	this        value.Value
	catches     []catchEntry
}

func (f *frame) push(v value.Value) { f.stack = append(f.stack, v) }

func (f *frame) pop() (value.Value, bool) {
	n := len(f.stack)
	if n == 0 {
		return value.None, false
	}
	v := f.stack[n-1]
	f.stack = f.stack[:n-1]
	return v, true
}

func (f *frame) peek() (value.Value, bool) {
	n := len(f.stack)
	if n == 0 {
		return value.None, false
	}
	return f.stack[n-1], true
}

// dropIfObject releases a Value's pool reference if it carries one —
// an object handle or an interned string — matching the VM-wide
// convention that discarding a value (Pop, truncating the stack on
// catch unwind, overwriting a variable slot, tearing down a scope)
// always drops whatever it references, while moving a value (a plain
// pop-then-store) never touches ref counts.
func dropIfObject(v value.Value) {
	switch v.Kind() {
	case value.KindObject:
		v.AsObject().Drop()
	case value.KindString:
		v.AsString().Drop()
	}
}

func (f *frame) pushScope() {
	f.chain = append(f.chain, newScope())
}

// popScope discards the innermost scope. A scope no closure captured
// has its object/string bindings dropped; a captured one is only
// detached from this chain, left intact for whatever closure still
// holds it.
func (f *frame) popScope() {
	n := len(f.chain)
	if n == 0 {
		return
	}
	s := f.chain[n-1]
	if !s.captured {
		for _, slot := range s.vars {
			dropIfObject(slot.value)
		}
	}
	f.chain = f.chain[:n-1]
}

// truncateScopes pops scopes down to depth, as a catch unwind does.
func (f *frame) truncateScopes(depth int) {
	for len(f.chain) > depth {
		f.popScope()
	}
}

// truncateStack discards stack values down to depth, dropping any
// object references among them, as a catch unwind does.
func (f *frame) truncateStack(depth int) {
	for len(f.stack) > depth {
		v, _ := f.pop()
		dropIfObject(v)
	}
}

// teardownOwnScopes drops every scope this frame pushed itself (beyond
// the closure-shared prefix it started with), called once when the
// frame exits via Return or, for a module's init frame, when it runs
// to the end of its code.
func (f *frame) teardownOwnScopes() {
	f.truncateScopes(f.capturedLen)
}

// captureChain snapshots the frame's current chain for a closure:
// every scope in it is marked captured (so no owning frame will ever
// drop its bindings out from under the closure) and the slice itself
// is copied so later PushContext/PopContext calls on this frame don't
// reach through into the closure's view.
func (f *frame) captureChain() []*scope {
	for _, s := range f.chain {
		s.captured = true
	}
	out := make([]*scope, len(f.chain))
	copy(out, f.chain)
	return out
}

// cloneIfOwned returns an independently-owned copy of v suitable for
// pushing onto a stack when v was read out of a persistent location
// (a variable slot, a property, an array element, `this`, the held
// exception) that keeps its own copy — as opposed to a plain stack
// pop, which transfers ownership and needs no clone.
func cloneIfOwned(v value.Value) value.Value {
	switch v.Kind() {
	case value.KindObject:
		return value.Obj(v.AsObject().CloneReference())
	case value.KindString:
		return value.Str(v.AsString().Clone())
	default:
		return v
	}
}

func (f *frame) lookup(name string) (*varSlot, bool) {
	for i := len(f.chain) - 1; i >= 0; i-- {
		if s, ok := f.chain[i].vars[name]; ok {
			return s, true
		}
	}
	return nil, false
}

func (f *frame) declare(name string) {
	top := f.chain[len(f.chain)-1]
	top.vars[name] = &varSlot{value: value.None}
}
