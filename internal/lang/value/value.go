// Package value defines Bur's guest-visible value algebra: the tagged
// union every bytecode instruction pushes, pops, and stores, plus the
// native-value escape hatch hosts use to expose Go functionality to
// guest code.
package value

import (
	"fmt"

	"github.com/oriys/bur/internal/lang/stringpool"
)

// Kind discriminates a Value's active variant.
type Kind uint8

const (
	// KindNone is the guest "null" value.
	KindNone Kind = iota
	// KindUninitialized marks a property slot that has not been
	// assigned on its own object and must fall through to the
	// prototype chain. It is distinct from KindNone: None is a real,
	// assigned value, Uninitialized is the absence of one.
	KindUninitialized
	KindBool
	KindInt
	KindFloat
	KindString
	KindObject
	KindFunction
	KindNative
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUninitialized:
		return "uninitialized"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindFunction:
		return "function"
	case KindNative:
		return "native"
	default:
		return "unknown"
	}
}

// ObjectRef is an owning, reference-counted handle to a live object in
// some ObjectPool. Cloning it (via ObjectPool.CloneReference, invoked
// implicitly whenever a Value carrying one is duplicated into a new
// slot) increments the pool's ref count for that slot; Drop decrements
// it. See objectpool.go for the pool this is a handle into.
type ObjectRef struct {
	pool  *ObjectPool
	index uint32
}

// Index exposes the raw pool slot index, e.g. for logging/metrics.
func (r ObjectRef) Index() uint32 { return r.index }

// Pool returns the owning pool, so callers can sanity-check that two
// references are not being mixed across independent runtimes.
func (r ObjectRef) Pool() *ObjectPool { return r.pool }

func (r ObjectRef) String() string { return fmt.Sprintf("object#%d", r.index) }

// Function is a compiled, possibly-closed-over callable. ModuleRef and
// FuncIndex locate the bytecode; Captured is the variable context
// chain in effect where the function literal was evaluated, shared by
// reference so mutations after closure creation remain visible to the
// closure (Open Question #4 in DESIGN.md).
type Function struct {
	ModuleRef interface{} // *bytecode.CompiledModule, kept as interface{} to avoid an import cycle between value and bytecode
	FuncIndex uint32
	Captured  interface{} // *vm.Context chain; same import-cycle rationale
	Name      string
}

// Native is the escape hatch a host uses to expose a Go-implemented
// callable or opaque handle to guest code. A plain opaque native value
// (e.g. a file handle) that only Go code touches implements just
// Native; one guest code may call also implements NativeCallable.
type Native interface {
	// TypeName identifies the native kind for diagnostics.
	TypeName() string
}

// NativeCallable is a Native that guest code may invoke directly. this
// is the receiver the call was dispatched against (None for a call
// with no receiver), matching the shape every guest-visible invocation
// path (Invoke, a GetSet accessor, or the __get_index__/__set_index__
// magic properties) threads through uniformly.
type NativeCallable interface {
	Native
	Invoke(this Value, args []Value) (Value, error)
}

// Value is Bur's tagged union. Zero value is KindNone.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	f      float64
	str    stringpool.Ref
	obj    ObjectRef
	fn     *Function
	native Native
}

// None is the canonical null value.
var None = Value{kind: KindNone}

// Uninitialized is the canonical "no own slot" sentinel.
var Uninitialized = Value{kind: KindUninitialized}

func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Int(i int64) Value          { return Value{kind: KindInt, i: i} }
func Float(f float64) Value      { return Value{kind: KindFloat, f: f} }
func Str(s stringpool.Ref) Value { return Value{kind: KindString, str: s} }
func Obj(o ObjectRef) Value      { return Value{kind: KindObject, obj: o} }
func Fn(f *Function) Value       { return Value{kind: KindFunction, fn: f} }
func NativeValue(n Native) Value { return Value{kind: KindNative, native: n} }

func (v Value) Kind() Kind             { return v.kind }
func (v Value) IsNone() bool           { return v.kind == KindNone }
func (v Value) IsUninitialized() bool  { return v.kind == KindUninitialized }
func (v Value) AsBool() bool           { return v.b }
func (v Value) AsInt() int64           { return v.i }
func (v Value) AsFloat() float64       { return v.f }
func (v Value) AsString() stringpool.Ref { return v.str }
func (v Value) AsObject() ObjectRef     { return v.obj }
func (v Value) AsFunction() *Function   { return v.fn }
func (v Value) AsNative() Native        { return v.native }

// Truthy implements Bur's boolean-coercion rule for `if`/`while`/`and`/`or`:
// none and false are falsy, every other value (including 0, 0.0, and
// the empty string) is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNone, KindUninitialized:
		return false
	case KindBool:
		return v.b
	default:
		return true
	}
}

// TypeName reports the guest-facing type name, used in error messages
// and by the `typeof`-equivalent native.
func (v Value) TypeName() string {
	if v.kind == KindNative && v.native != nil {
		return v.native.TypeName()
	}
	return v.kind.String()
}

func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "none"
	case KindUninitialized:
		return "<uninitialized>"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.str.Get()
	case KindObject:
		return v.obj.String()
	case KindFunction:
		if v.fn != nil && v.fn.Name != "" {
			return fmt.Sprintf("<function %s>", v.fn.Name)
		}
		return "<function>"
	case KindNative:
		return fmt.Sprintf("<native %s>", v.TypeName())
	default:
		return "<invalid>"
	}
}

// Slot is a single property value on an Object: either a plain stored
// Value, or a GetSet accessor pair invoked on read/write. Get and Set
// are themselves Values (ordinarily KindFunction or a callable native;
// Uninitialized marks the missing side of a write-only or read-only
// accessor).
type Slot struct {
	Kind SlotKind
	Val  Value
	Get  Value
	Set  Value
}

type SlotKind uint8

const (
	SlotValue SlotKind = iota
	SlotGetSet
)

// PlainSlot wraps v as a stored-value property slot.
func PlainSlot(v Value) Slot { return Slot{Kind: SlotValue, Val: v} }

// AccessorSlot builds a get/set property slot. Either accessor may be
// Uninitialized, meaning absent.
func AccessorSlot(get, set Value) Slot {
	return Slot{Kind: SlotGetSet, Get: get, Set: set}
}
