package vm

import (
	"github.com/oriys/bur/internal/lang/value"
)

// getProperty implements spec.md §4.2's get_property: a direct
// String-keyed slot (value or accessor) on this object wins; failing
// that, the "__get_index__" magic callable; failing that, the same
// lookup against the prototype, which rebinds `this` to the prototype
// itself for that nested step exactly as the spec's pseudocode does.
func (m *machine) getProperty(this value.Value, key value.Value) (value.Value, error) {
	if this.Kind() != value.KindObject {
		return value.Uninitialized, nil
	}
	obj := this.AsObject().Deref()
	if obj == nil {
		return value.None, internalf("property access on a freed object")
	}

	if key.Kind() == value.KindString {
		if slot, ok := obj.Get(key.AsString()); ok {
			switch slot.Kind {
			case value.SlotValue:
				if !slot.Val.IsUninitialized() {
					return cloneIfOwned(slot.Val), nil
				}
			case value.SlotGetSet:
				if !slot.Get.IsUninitialized() {
					return m.call(slot.Get, cloneIfOwned(this), []value.Value{cloneIfOwned(key)})
				}
			}
		}
	}

	if slot, ok := obj.Get(m.getIndexKey); ok && slot.Kind == value.SlotValue && !slot.Val.IsUninitialized() {
		result, err := m.call(slot.Val, cloneIfOwned(this), []value.Value{cloneIfOwned(key)})
		if err != nil {
			return value.None, err
		}
		if !result.IsUninitialized() {
			return result, nil
		}
	}

	proto := obj.Prototype()
	if proto.Kind() == value.KindObject {
		return m.getProperty(proto, key)
	}
	return value.Uninitialized, nil
}

// setProperty implements spec.md §4.2's set_property: trySetProperty
// walks the same direct-slot / magic-key / prototype search get uses;
// if nothing along that chain claims the write, a brand new
// insertion-ordered property is appended on the original receiver —
// "at the top level", never on an ancestor the search passed through.
func (m *machine) setProperty(this value.Value, key value.Value, val value.Value) error {
	if this.Kind() != value.KindObject {
		return m.raise("cannot set a property on a " + this.TypeName())
	}
	handled, err := m.trySetProperty(this, key, val)
	if err != nil {
		return err
	}
	if handled {
		return nil
	}
	obj := this.AsObject().Deref()
	if obj == nil {
		return internalf("property write on a freed object")
	}
	if key.Kind() != value.KindString {
		return m.raise("object property keys must be strings")
	}
	// A brand new property: Set retains this key reference permanently,
	// so it must be an independent clone, not the caller's own handle.
	obj.Set(key.AsString().Clone(), value.PlainSlot(val))
	return nil
}

func (m *machine) trySetProperty(this value.Value, key value.Value, val value.Value) (bool, error) {
	if this.Kind() != value.KindObject {
		return false, nil
	}
	obj := this.AsObject().Deref()
	if obj == nil {
		return false, internalf("property write on a freed object")
	}

	if key.Kind() == value.KindString {
		if slot, ok := obj.Get(key.AsString()); ok {
			switch slot.Kind {
			case value.SlotValue:
				old := slot.Val
				obj.Set(key.AsString(), value.PlainSlot(val))
				dropIfObject(old)
				return true, nil
			case value.SlotGetSet:
				if !slot.Set.IsUninitialized() {
					_, err := m.call(slot.Set, cloneIfOwned(this), []value.Value{cloneIfOwned(key), val})
					return err == nil, err
				}
			}
		}
	}

	if slot, ok := obj.Get(m.setIndexKey); ok && slot.Kind == value.SlotValue && !slot.Val.IsUninitialized() {
		_, err := m.call(slot.Val, cloneIfOwned(this), []value.Value{cloneIfOwned(key), val})
		return err == nil, err
	}

	proto := obj.Prototype()
	if proto.Kind() == value.KindObject {
		return m.trySetProperty(proto, key, val)
	}
	return false, nil
}

// arrayNative backs a PushNewArray object: its elements live in a Go
// slice rather than as ordinary properties, exposed to guest code
// entirely through the ordinary property protocol via the
// "__get_index__"/"__set_index__"/"length" slots newArray installs —
// property.go's get/set algorithm never special-cases arrays.
type arrayNative struct {
	elems []value.Value
}

func (a *arrayNative) TypeName() string { return "array" }

func (a *arrayNative) MarkChildren(mark func(value.Value)) {
	for _, v := range a.elems {
		mark(v)
	}
}

func (a *arrayNative) Cleanup() {
	for _, v := range a.elems {
		dropIfObject(v)
	}
	a.elems = nil
}

func arrayIndex(key value.Value, n int) (int, bool) {
	if key.Kind() != value.KindInt {
		return 0, false
	}
	i := int(key.AsInt())
	if i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

// arrayIndexGet/arrayIndexSet/arrayLengthGet are the NativeCallable
// values installed as an array's "__get_index__"/"__set_index__"/
// "length" slots — one small family of host-defined callables, the
// same shape the property protocol expects of any guest-visible
// getter/setter.
type arrayIndexGet struct{ a *arrayNative }

func (g *arrayIndexGet) TypeName() string { return "native-function" }
func (g *arrayIndexGet) Invoke(this value.Value, args []value.Value) (value.Value, error) {
	dropIfObject(this)
	if len(args) < 1 {
		return value.Uninitialized, nil
	}
	i, ok := arrayIndex(args[0], len(g.a.elems))
	dropIfObject(args[0])
	if !ok {
		return value.Uninitialized, nil
	}
	return cloneIfOwned(g.a.elems[i]), nil
}

type arrayIndexSet struct{ a *arrayNative }

func (s *arrayIndexSet) TypeName() string { return "native-function" }
func (s *arrayIndexSet) Invoke(this value.Value, args []value.Value) (value.Value, error) {
	dropIfObject(this)
	if len(args) < 2 {
		return value.None, nil
	}
	i, ok := arrayIndex(args[0], len(s.a.elems))
	dropIfObject(args[0])
	if !ok {
		dropIfObject(args[1])
		return value.None, nil
	}
	old := s.a.elems[i]
	s.a.elems[i] = args[1]
	dropIfObject(old)
	return value.None, nil
}

type arrayLengthGet struct{ a *arrayNative }

func (l *arrayLengthGet) TypeName() string { return "native-function" }
func (l *arrayLengthGet) Invoke(this value.Value, args []value.Value) (value.Value, error) {
	dropIfObject(this)
	for _, a := range args {
		dropIfObject(a)
	}
	return value.Int(int64(len(l.a.elems))), nil
}

// newArray allocates a fresh array object of the given size, every
// slot initialized to None, wired with the three native properties
// PushIndex/StoreIndex and the for-each desugaring rely on.
func (m *machine) newArray(size uint32) value.Value {
	elems := make([]value.Value, size)
	for i := range elems {
		elems[i] = value.None
	}
	native := &arrayNative{elems: elems}
	ref := m.pool.NewObject()
	obj := ref.Deref()
	obj.SetNative(native)
	obj.Set(m.getIndexKey.Clone(), value.PlainSlot(value.NativeValue(&arrayIndexGet{a: native})))
	obj.Set(m.setIndexKey.Clone(), value.PlainSlot(value.NativeValue(&arrayIndexSet{a: native})))
	obj.Set(m.sp.Acquire("length"), value.AccessorSlot(value.NativeValue(&arrayLengthGet{a: native}), value.Uninitialized))
	return value.Obj(ref)
}

func (m *machine) concatStrings(a, b value.Value) value.Value {
	s := a.AsString().Get() + b.AsString().Get()
	return value.Str(m.sp.Acquire(s))
}
