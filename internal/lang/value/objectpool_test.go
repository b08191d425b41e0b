package value

import (
	"testing"

	"github.com/oriys/bur/internal/lang/stringpool"
)

func TestNewObjectDroppedIsCollectible(t *testing.T) {
	pool := NewObjectPool()
	ref := pool.NewObject()
	ref.Drop()

	pool.CollectGarbage()
	if pool.Len() != 0 {
		t.Fatalf("expected pool empty after collecting unreferenced object, got %d", pool.Len())
	}
}

func TestExternallyReferencedObjectSurvivesCollection(t *testing.T) {
	pool := NewObjectPool()
	a := pool.NewObject()
	defer a.Drop()

	pool.CollectGarbage()
	if pool.Len() != 1 {
		t.Fatalf("expected externally-held object to survive collection, got %d", pool.Len())
	}
}

func TestSelfCycleIsCollected(t *testing.T) {
	pool := NewObjectPool()
	sp := stringpool.New()
	defer sp.Acquire("noop").Drop() // keep sp referenced/used idiom consistent

	a := pool.NewObject()
	key := sp.Acquire("self")

	// The property holds a second, pool-internal owning reference to a.
	inner := a.CloneReference()
	a.Deref().Set(key, PlainSlot(Obj(inner)))

	// Drop the caller's own external reference; only the cyclic,
	// pool-internal one (ref_count now 1) remains.
	a.Drop()

	pool.CollectGarbage()
	if pool.Len() != 0 {
		t.Fatalf("expected self-referential cycle to be collected, got live count %d", pool.Len())
	}
}

func TestTwoObjectCycleIsCollected(t *testing.T) {
	pool := NewObjectPool()
	sp := stringpool.New()

	a := pool.NewObject()
	b := pool.NewObject()

	keyB := sp.Acquire("b")
	keyA := sp.Acquire("a")

	bForA := b.CloneReference()
	aForB := a.CloneReference()

	a.Deref().Set(keyB, PlainSlot(Obj(bForA)))
	b.Deref().Set(keyA, PlainSlot(Obj(aForB)))

	a.Drop()
	b.Drop()

	pool.CollectGarbage()
	if pool.Len() != 0 {
		t.Fatalf("expected mutual cycle to be collected, got live count %d", pool.Len())
	}
}

func TestCycleWithExternalReferenceSurvives(t *testing.T) {
	pool := NewObjectPool()
	sp := stringpool.New()

	a := pool.NewObject()
	b := pool.NewObject()

	keyB := sp.Acquire("b")
	keyA := sp.Acquire("a")

	bForA := b.CloneReference()
	aForB := a.CloneReference()

	a.Deref().Set(keyB, PlainSlot(Obj(bForA)))
	b.Deref().Set(keyA, PlainSlot(Obj(aForB)))

	// Caller keeps holding `a` externally; `b` is only held via the cycle.
	b.Drop()

	pool.CollectGarbage()
	if pool.Len() != 2 {
		t.Fatalf("expected both cyclic objects to survive due to external reference to a, got %d", pool.Len())
	}
	a.Drop()
}
