// Package stringpool implements Bur's interned string table: every
// guest string literal and every string produced at runtime is
// deduplicated into one pool slot, reference counted, and freed back
// to a free list once its last reference drops.
//
// # Design rationale
//
// Guest code constantly compares strings for equality (object keys,
// `==`, switch-like dispatch via access chains). Interning collapses
// that to an index comparison in the common case: two references
// acquired from the same pool for equal byte content land on the same
// slot. Cross-pool comparisons still work, falling back to a byte
// comparison, but are expected to be rare (one Runtime owns one pool).
//
// # Concurrency model
//
// A single mutex guards both the dedup map and the slot vector; the
// original this is grounded on uses two separate locks with no fixed
// acquisition order, which only happens to stay deadlock-free because
// every path takes `value_map` before `values`. We collapse the two
// into one lock to make that ordering structural rather than
// convention, and because `acquire`'s critical section always touches
// both together anyway.
//
// # Invariants
//
// - A slot's ref_count never reaches zero while any live Ref points at
//   it; dropping the last Ref frees the slot and removes it from the
//   dedup map in the same critical section.
// - `free_indices` entries always point at a nil slot; `acquire` never
//   reuses an index that is still occupied.
//
// # Failure behaviour
//
// Dropping a Ref whose slot is already nil (double-free, or a Ref
// obtained from a Pool that has since been discarded) is a silent
// no-op, matching the idempotent drop in the implementation this
// package is grounded on.
package stringpool

import "sync"

type slot struct {
	value    string
	refCount int
}

// Pool is a deduplicating, reference-counted string table.
type Pool struct {
	mu          sync.Mutex
	byValue     map[string]uint32
	slots       []*slot
	freeIndices []uint32
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{byValue: make(map[string]uint32)}
}

// Ref is a handle into a specific Pool slot. The zero value is not a
// valid Ref; always obtain one via Pool.Acquire or Ref.Clone.
type Ref struct {
	pool  *Pool
	index uint32
}

// Acquire interns s, returning a reference whose Drop must eventually
// be called to release it.
func (p *Pool) Acquire(s string) Ref {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.byValue[s]; ok {
		p.slots[idx].refCount++
		return Ref{pool: p, index: idx}
	}

	if n := len(p.freeIndices); n > 0 {
		idx := p.freeIndices[n-1]
		p.freeIndices = p.freeIndices[:n-1]
		p.slots[idx] = &slot{value: s, refCount: 1}
		p.byValue[s] = idx
		return Ref{pool: p, index: idx}
	}

	idx := uint32(len(p.slots))
	p.slots = append(p.slots, &slot{value: s, refCount: 1})
	p.byValue[s] = idx
	return Ref{pool: p, index: idx}
}

func (p *Pool) cloneReference(idx uint32) Ref {
	p.mu.Lock()
	defer p.mu.Unlock()

	sl := p.slots[idx]
	if sl == nil {
		panic("stringpool: clone of freed slot")
	}
	sl.refCount++
	return Ref{pool: p, index: idx}
}

func (p *Pool) get(idx uint32) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sl := p.slots[idx]
	if sl == nil {
		return "", false
	}
	return sl.value, true
}

func (p *Pool) dropReference(idx uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sl := p.slots[idx]
	if sl == nil {
		return
	}
	sl.refCount--
	if sl.refCount > 0 {
		return
	}
	delete(p.byValue, sl.value)
	p.slots[idx] = nil
	p.freeIndices = append(p.freeIndices, idx)
}

// Len reports the number of live (non-freed) slots, for metrics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots) - len(p.freeIndices)
}

// Get returns the interned string content.
func (r Ref) Get() string {
	s, ok := r.pool.get(r.index)
	if !ok {
		panic("stringpool: use of dropped reference")
	}
	return s
}

// Clone acquires a new reference to the same slot, incrementing its
// ref count. The caller owns the returned Ref independently and must
// Drop it separately.
func (r Ref) Clone() Ref {
	return r.pool.cloneReference(r.index)
}

// Drop releases this reference. Safe to call on an already-freed
// underlying slot (a no-op), but not safe to call twice on the same
// Ref value — each acquired/cloned Ref must be dropped exactly once.
func (r Ref) Drop() {
	r.pool.dropReference(r.index)
}

// Equal implements Bur's string equality: identical slot within the
// same pool short-circuits to true, otherwise falls back to a byte
// comparison (needed when the two references come from different
// pools, e.g. comparing a module-cache snapshot against a live pool).
func (r Ref) Equal(other Ref) bool {
	if r.pool == other.pool {
		return r.index == other.index
	}
	return r.Get() == other.Get()
}

func (r Ref) String() string { return r.Get() }
