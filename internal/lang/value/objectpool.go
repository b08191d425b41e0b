// Cycle-safe reference-counted object heap. Grounded directly on the
// object pool this module's Rust original implements: ref counting
// handles the acyclic common case for free, and a mark-based sweep
// over the pool's own slot vector reclaims cycles without needing to
// understand any root outside the pool (value stack, variable
// contexts, catch stack, or host references) — see CollectGarbage.
//
// # Concurrency model
//
// One RWMutex guards the slot vector and free list; each slot's own
// RWMutex guards its Object pointer and ref count is atomic, so
// Clone/Drop don't need the pool-wide lock. A "finalize" set records
// indices mid-collection so a concurrent Drop of the last
// externally-visible reference to an object being collected can't
// race the sweep into double-freeing it.
//
// # Invariants
//
// - CollectGarbage never invokes a guest-visible getter, setter, or
//   native callback while holding the pool's write-side state: it only
//   inspects property-slot kinds, prototype values, and a native's
//   declared child references.
package value

import (
	"sync"
	"sync/atomic"

	"github.com/oriys/bur/internal/lang/stringpool"
)

// NativeObject is the heap-side contract a host-exposed native object
// must satisfy so the cycle collector can see through it and release
// any host resource it owns once finalized.
type NativeObject interface {
	Native
	// MarkChildren reports every Value this native holds that the
	// collector must traverse (e.g. a native list of guest values).
	MarkChildren(mark func(Value))
	// Cleanup releases any host-side resource. Called at most once,
	// strictly after the owning Object has been finalized.
	Cleanup()
}

type property struct {
	key  stringpool.Ref
	slot Slot
}

// Object is a prototypal guest object: an insertion-ordered property
// list, a prototype Value, and an optional native payload.
type Object struct {
	mu        sync.RWMutex
	order     []stringpool.Ref
	props     []property
	prototype Value
	native    NativeObject
}

func newObject() *Object { return &Object{prototype: None} }

// Get looks up a property directly on this object (no prototype walk
// — the VM performs that, since it must special-case Uninitialized).
func (o *Object) Get(key stringpool.Ref) (Slot, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, p := range o.props {
		if p.key.Equal(key) {
			return p.slot, true
		}
	}
	return Slot{}, false
}

// Set assigns a property, appending it in insertion order if new.
func (o *Object) Set(key stringpool.Ref, slot Slot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, p := range o.props {
		if p.key.Equal(key) {
			o.props[i].slot = slot
			return
		}
	}
	o.order = append(o.order, key)
	o.props = append(o.props, property{key: key, slot: slot})
}

// Keys returns property keys in insertion order.
func (o *Object) Keys() []stringpool.Ref {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]stringpool.Ref, len(o.order))
	copy(out, o.order)
	return out
}

// Prototype returns the object's prototype value.
func (o *Object) Prototype() Value {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.prototype
}

// SetPrototype assigns the object's prototype value.
func (o *Object) SetPrototype(v Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prototype = v
}

// Native returns the object's native payload, if any.
func (o *Object) Native() NativeObject {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.native
}

// SetNative attaches a native payload to the object.
func (o *Object) SetNative(n NativeObject) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.native = n
}

type objectSlot struct {
	mu       sync.RWMutex
	object   *Object // nil once freed
	refCount atomic.Int64
}

// ObjectPool is a reference-counted, cycle-collecting object heap.
type ObjectPool struct {
	finalizeMu sync.Mutex
	finalize   map[uint32]struct{}

	slotsMu     sync.RWMutex
	slots       []*objectSlot
	freeIndices []uint32
}

// NewObjectPool returns an empty object pool.
func NewObjectPool() *ObjectPool {
	return &ObjectPool{finalize: make(map[uint32]struct{})}
}

func (p *ObjectPool) emplace(build func() *Object) ObjectRef {
	p.slotsMu.Lock()
	if n := len(p.freeIndices); n > 0 {
		idx := p.freeIndices[n-1]
		p.freeIndices = p.freeIndices[:n-1]
		s := p.slots[idx]
		p.slotsMu.Unlock()

		s.refCount.Store(1)
		s.mu.Lock()
		s.object = build()
		s.mu.Unlock()
		return ObjectRef{pool: p, index: idx}
	}

	idx := uint32(len(p.slots))
	s := &objectSlot{object: build()}
	s.refCount.Store(1)
	p.slots = append(p.slots, s)
	p.slotsMu.Unlock()
	return ObjectRef{pool: p, index: idx}
}

// NewObject allocates a fresh, empty object and returns a reference to it.
func (p *ObjectPool) NewObject() ObjectRef {
	return p.emplace(newObject)
}

func (p *ObjectPool) slotAt(index uint32) *objectSlot {
	p.slotsMu.RLock()
	defer p.slotsMu.RUnlock()
	if int(index) >= len(p.slots) {
		return nil
	}
	return p.slots[index]
}

// Deref dereferences a reference, returning nil if the object has
// already been freed.
func (r ObjectRef) Deref() *Object {
	s := r.pool.slotAt(r.index)
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.object
}

// CloneReference increments the slot's ref count and returns an
// independently owned reference to the same object. The caller must
// Drop it separately; this is what a VM must call whenever it copies
// a Value of KindObject into a new stack slot, variable, or property.
func (r ObjectRef) CloneReference() ObjectRef {
	s := r.pool.slotAt(r.index)
	if s == nil {
		panic("value: clone of freed object reference")
	}
	s.refCount.Add(1)
	return ObjectRef{pool: r.pool, index: r.index}
}

// Drop releases this reference. A no-op if the object is mid-finalization.
func (r ObjectRef) Drop() {
	p := r.pool
	p.finalizeMu.Lock()
	_, finalizing := p.finalize[r.index]
	p.finalizeMu.Unlock()
	if finalizing {
		return
	}

	s := p.slotAt(r.index)
	if s == nil {
		return
	}
	s.refCount.Add(-1)
}

// RefCount reports the live reference count for diagnostics/tests.
func (r ObjectRef) RefCount() int64 {
	s := r.pool.slotAt(r.index)
	if s == nil {
		return 0
	}
	return s.refCount.Load()
}

// CollectGarbage runs mark-based cycle collection to a fixed point:
// repeatedly scanning every live slot, counting each slot's
// self-returning reference edges, and freeing any slot whose ref
// count does not exceed that count and that no kept slot reaches,
// until a full pass frees nothing.
func (p *ObjectPool) CollectGarbage() {
	for {
		var toDelete []uint32

		p.finalizeMu.Lock()
		p.slotsMu.RLock()
		n := len(p.slots)
		for base := 0; base < n; base++ {
			s := p.slots[base]
			if s == nil {
				continue
			}
			s.mu.RLock()
			live := s.object != nil
			s.mu.RUnlock()
			if !live {
				continue
			}

			cycleCount := p.markIndex(uint32(base), uint32(base), make(map[uint32]struct{}))
			refCount := s.refCount.Load()
			if refCount <= int64(cycleCount) {
				toDelete = append(toDelete, uint32(base))
				p.finalize[uint32(base)] = struct{}{}
			}
		}
		// Keep any candidate still reachable from a surviving object.
		reachable := make(map[uint32]struct{})
		for base := 0; base < n; base++ {
			if _, cand := p.finalize[uint32(base)]; !cand {
				p.markIndex(uint32(base), uint32(base), reachable)
			}
		}
		kept := toDelete[:0]
		for _, idx := range toDelete {
			if _, ok := reachable[idx]; ok {
				delete(p.finalize, idx)
			} else {
				kept = append(kept, idx)
			}
		}
		toDelete = kept
		p.slotsMu.RUnlock()
		p.finalizeMu.Unlock()

		for _, idx := range toDelete {
			s := p.slots[idx]
			s.mu.Lock()
			obj := s.object
			s.object = nil
			s.mu.Unlock()
			if obj != nil {
				if n := obj.Native(); n != nil {
					n.Cleanup()
				}
			}
		}

		p.finalizeMu.Lock()
		p.finalize = make(map[uint32]struct{})
		p.finalizeMu.Unlock()

		if len(toDelete) == 0 {
			return
		}

		p.slotsMu.Lock()
		for _, idx := range toDelete {
			p.freeIndices = append(p.freeIndices, idx)
		}
		p.slotsMu.Unlock()
	}
}

// markIndex performs the DFS used by CollectGarbage: visited tracks
// indices seen during this base object's walk; count accumulates once
// per edge that loops back to base itself.
func (p *ObjectPool) markIndex(base, index uint32, visited map[uint32]struct{}) int {
	visited[index] = struct{}{}

	s := p.slots[index]
	s.mu.RLock()
	obj := s.object
	s.mu.RUnlock()
	if obj == nil {
		return 0
	}

	count := 0
	mark := func(v Value) {
		if v.Kind() != KindObject {
			return
		}
		ref := v.AsObject()
		if ref.pool != p {
			panic("value: objects from different pools cannot intermingle")
		}
		count += p.markReference(base, ref.index, visited)
	}

	for _, key := range obj.Keys() {
		sl, ok := obj.Get(key)
		if !ok {
			continue
		}
		switch sl.Kind {
		case SlotValue:
			mark(sl.Val)
		case SlotGetSet:
			mark(sl.Get)
			mark(sl.Set)
		}
	}

	mark(obj.Prototype())

	if n := obj.Native(); n != nil {
		n.MarkChildren(mark)
	}

	return count
}

func (p *ObjectPool) markReference(base, index uint32, visited map[uint32]struct{}) int {
	if _, seen := visited[index]; seen {
		if index == base {
			return 1
		}
		return 0
	}
	return p.markIndex(base, index, visited)
}

// Len reports live (non-freed) object count, for metrics.
func (p *ObjectPool) Len() int {
	p.slotsMu.RLock()
	defer p.slotsMu.RUnlock()
	return len(p.slots) - len(p.freeIndices)
}

// FreeListDepth reports the number of reclaimed slots awaiting reuse,
// for metrics.
func (p *ObjectPool) FreeListDepth() int {
	p.slotsMu.RLock()
	defer p.slotsMu.RUnlock()
	return len(p.freeIndices)
}
