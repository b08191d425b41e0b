package modulecache

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/oriys/bur/internal/lang/bytecode"
)

func sampleModule() *CachedModule {
	return &CachedModule{
		Path: "demo",
		Hash: "abc123",
		Module: &bytecode.CompiledModule{
			Path: "demo",
			Init: bytecode.Function{
				Name: "<init>",
				Code: []bytecode.Instruction{
					{Op: bytecode.PushConstInt, Int: 41},
					{Op: bytecode.Return},
				},
			},
		},
	}
}

func TestInMemoryCacheRoundTripsByteForByte(t *testing.T) {
	c := NewInMemoryCache()
	defer c.Close()
	ctx := context.Background()

	want := sampleModule()
	if err := c.Set(ctx, want.Path, want, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := c.Get(ctx, want.Path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if !reflect.DeepEqual(got.Module.Init.Code, want.Module.Init.Code) {
		t.Fatalf("instruction stream not preserved: got %+v, want %+v", got.Module.Init.Code, want.Module.Init.Code)
	}
}

func TestInMemoryCacheMissReturnsFalse(t *testing.T) {
	c := NewInMemoryCache()
	defer c.Close()

	_, ok, err := c.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected a cache miss")
	}
}

func TestInMemoryCacheExpiresEntries(t *testing.T) {
	c := NewInMemoryCache()
	defer c.Close()
	ctx := context.Background()

	m := sampleModule()
	if err := c.Set(ctx, m.Path, m, time.Nanosecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(time.Millisecond)

	_, ok, err := c.Get(ctx, m.Path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected the entry to have expired")
	}
}

func TestInMemoryCacheInvalidate(t *testing.T) {
	c := NewInMemoryCache()
	defer c.Close()
	ctx := context.Background()

	m := sampleModule()
	_ = c.Set(ctx, m.Path, m, time.Hour)
	if err := c.Invalidate(ctx, m.Path); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	_, ok, _ := c.Get(ctx, m.Path)
	if ok {
		t.Fatal("expected Invalidate to remove the entry")
	}
}
