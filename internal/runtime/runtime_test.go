package runtime

import (
	"testing"

	"github.com/oriys/bur/internal/lang/value"
)

func TestRunExportsTopLevelValue(t *testing.T) {
	r := New(DefaultConfig(), NoLoader{})
	defer r.Close()

	exports, err := r.Run("main", `
		var x = 1 + 2;
		export answer = x * 10;
	`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exports.Kind() != value.KindObject {
		t.Fatalf("expected export object, got %s", exports.Kind())
	}
	exports.AsObject().Drop()
}

func TestImportCachesModuleAcrossImporters(t *testing.T) {
	loader := MapLoader{
		"counter": `
			var n = 0;
			func bump() {
				n = n + 1;
				return n;
			}
			export bump = bump;
		`,
	}
	r := New(DefaultConfig(), loader)
	defer r.Close()

	first, err := r.Import("counter")
	if err != nil {
		t.Fatalf("Import (first): %v", err)
	}
	defer first.AsObject().Drop()

	second, err := r.Import("counter")
	if err != nil {
		t.Fatalf("Import (second): %v", err)
	}
	defer second.AsObject().Drop()

	if first.AsObject().Index() != second.AsObject().Index() {
		t.Fatalf("expected the same cached export object across imports, got #%d and #%d",
			first.AsObject().Index(), second.AsObject().Index())
	}
}

func TestImportMissingPathFails(t *testing.T) {
	r := New(DefaultConfig(), NoLoader{})
	defer r.Close()

	if _, err := r.Import("does-not-exist"); err == nil {
		t.Fatal("expected an error importing from an unconfigured loader")
	}
}

func TestRegisterNativeModuleIsImportable(t *testing.T) {
	r := New(DefaultConfig(), NoLoader{})
	defer r.Close()

	obj := r.pool.NewObject()
	obj.Deref().Set(r.sp.Acquire("greeting"), value.PlainSlot(value.Str(r.sp.Acquire("hello"))))
	r.RegisterNativeModule("greetings", value.Obj(obj))

	got, err := r.Import("greetings")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	defer got.AsObject().Drop()
	if got.Kind() != value.KindObject {
		t.Fatalf("expected object export, got %s", got.Kind())
	}
}

func TestCollectGarbageReclaimsCycles(t *testing.T) {
	r := New(DefaultConfig(), NoLoader{})
	defer r.Close()

	if _, err := r.Run("cycle", `
		var a = new {};
		var b = new {};
		a.next = b;
		b.next = a;
	`); err != nil {
		t.Fatalf("Run: %v", err)
	}

	before := r.pool.Len()
	r.CollectGarbage()
	after := r.pool.Len()
	if after >= before {
		t.Fatalf("expected CollectGarbage to reclaim the unreferenced a/b cycle, before=%d after=%d", before, after)
	}
}
