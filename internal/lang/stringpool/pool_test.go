package stringpool

import "testing"

func TestAcquireDeduplicates(t *testing.T) {
	p := New()
	a := p.Acquire("hello")
	b := p.Acquire("hello")

	if !a.Equal(b) {
		t.Fatalf("expected interned references to equal refs for identical content")
	}
	if a.pool != b.pool || a.index != b.index {
		t.Fatalf("expected same pool slot, got %v and %v", a, b)
	}
}

func TestDropFreesSlotForReuse(t *testing.T) {
	p := New()
	a := p.Acquire("x")
	idx := a.index
	a.Drop()

	b := p.Acquire("y")
	if b.index != idx {
		t.Fatalf("expected freed slot %d to be reused, got %d", idx, b.index)
	}
}

func TestCloneIncrementsRefCount(t *testing.T) {
	p := New()
	a := p.Acquire("shared")
	b := a.Clone()

	a.Drop()
	// b still holds a reference, so the value must still be readable.
	if got := b.Get(); got != "shared" {
		t.Fatalf("expected %q, got %q", "shared", got)
	}
	b.Drop()

	if p.Len() != 0 {
		t.Fatalf("expected pool empty after both references dropped, got len %d", p.Len())
	}
}

func TestDropOnAlreadyFreedSlotIsNoop(t *testing.T) {
	p := New()
	a := p.Acquire("z")
	a.Drop()
	a.Drop() // must not panic
}

func TestEqualAcrossPoolsFallsBackToByteCompare(t *testing.T) {
	p1, p2 := New(), New()
	a := p1.Acquire("same")
	b := p2.Acquire("same")

	if !a.Equal(b) {
		t.Fatalf("expected cross-pool byte-equal references to compare equal")
	}
}
