package vm

import (
	"testing"

	"github.com/oriys/bur/internal/lang/ast"
	"github.com/oriys/bur/internal/lang/compiler"
	"github.com/oriys/bur/internal/lang/stringpool"
	"github.com/oriys/bur/internal/lang/token"
	"github.com/oriys/bur/internal/lang/value"
)

// mapImporter resolves imports from an in-memory map of already-built
// export values, standing in for internal/runtime.Runtime's cross-module
// caching in these single-module VM tests.
type mapImporter map[string]value.Value

func (m mapImporter) Import(path string) (value.Value, error) {
	v, ok := m[path]
	if !ok {
		return value.None, &InternalError{Message: "no such test module " + path}
	}
	return v, nil
}

func run(t *testing.T, src string) (value.Value, *stringpool.Pool, *value.ObjectPool, error) {
	t.Helper()
	prog, err := ast.Parse(token.New(src))
	if err != nil {
		t.Fatalf("parsing %q: %v", src, err)
	}
	module, err := compiler.Compile(prog, "test")
	if err != nil {
		t.Fatalf("compiling %q: %v", src, err)
	}
	sp := stringpool.New()
	pool := value.NewObjectPool()
	result, err := Execute(module, sp, pool, mapImporter{})
	return result, sp, pool, err
}

func exportField(t *testing.T, exports value.Value, sp *stringpool.Pool, name string) value.Value {
	t.Helper()
	obj := exports.AsObject().Deref()
	if obj == nil {
		t.Fatalf("export object was nil")
	}
	key := sp.Acquire(name)
	defer key.Drop()
	slot, ok := obj.Get(key)
	if !ok {
		t.Fatalf("export object has no field %q", name)
	}
	return slot.Val
}

func TestExecuteArithmetic(t *testing.T) {
	result, sp, _, err := run(t, `var x = 1 + 2 * 3; export x;`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	x := exportField(t, result, sp, "x")
	if x.Kind() != value.KindInt || x.AsInt() != 7 {
		t.Fatalf("expected x = 7, got %s", x.String())
	}
}

func TestExecuteObjectAndArrayConstruction(t *testing.T) {
	result, sp, _, err := run(t, `
var o = new {};
o.name = "bur";
var a = new [1, 2, 3];
var n = a.length;
export o;
export n;
`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	o := exportField(t, result, sp, "o")
	if o.Kind() != value.KindObject {
		t.Fatalf("expected o to be an object, got %s", o.Kind())
	}
	obj := o.AsObject().Deref()
	key := sp.Acquire("name")
	defer key.Drop()
	slot, ok := obj.Get(key)
	if !ok || slot.Val.String() != "bur" {
		t.Fatalf("expected o.name = \"bur\", got %v (ok=%v)", slot.Val, ok)
	}

	n := exportField(t, result, sp, "n")
	if n.AsInt() != 3 {
		t.Fatalf("expected array length 3, got %s", n.String())
	}
}

func TestExecuteForEachSumsElements(t *testing.T) {
	result, sp, _, err := run(t, `
var a = new [1, 2, 3, 4];
var total = 0;
for each (x in a) {
	total = total + x;
}
export total;
`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	total := exportField(t, result, sp, "total")
	if total.AsInt() != 10 {
		t.Fatalf("expected total = 10, got %s", total.String())
	}
}

func TestExecuteTryCatchCatchesThrownValue(t *testing.T) {
	result, sp, _, err := run(t, `
var caught = 0;
try {
	throw 42;
} catch (e) {
	caught = e;
}
export caught;
`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	caught := exportField(t, result, sp, "caught")
	if caught.AsInt() != 42 {
		t.Fatalf("expected caught = 42, got %s", caught.String())
	}
}

func TestExecuteUncaughtThrowReturnsGuestError(t *testing.T) {
	_, _, _, err := run(t, `throw "boom";`)
	if err == nil {
		t.Fatal("expected an uncaught exception error")
	}
	ge, ok := err.(*GuestError)
	if !ok {
		t.Fatalf("expected *vm.GuestError, got %T: %v", err, err)
	}
	if ge.Value.String() != "boom" {
		t.Fatalf("expected the thrown value to be \"boom\", got %s", ge.Value.String())
	}
}

func TestExecutePrototypeChainMethodDispatch(t *testing.T) {
	result, sp, _, err := run(t, `
class Animal {
	func speak() {
		return "...";
	}
}
class Dog : Animal() {
	func speak() {
		return "woof";
	}
}
var d = Dog();
export sound = d.speak();
`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	sound := exportField(t, result, sp, "sound")
	if sound.String() != "woof" {
		t.Fatalf("expected sound = \"woof\", got %s", sound.String())
	}
}

func TestExecuteCompoundAssignmentAccessChainPatterns(t *testing.T) {
	result, sp, _, err := run(t, `
var o = new {};
o.counter = 0;
o.counter = o.counter + 1;
o.counter = o.counter + 1;
export o;
`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	o := exportField(t, result, sp, "o")
	obj := o.AsObject().Deref()
	key := sp.Acquire("counter")
	defer key.Drop()
	slot, _ := obj.Get(key)
	if slot.Val.AsInt() != 2 {
		t.Fatalf("expected o.counter = 2, got %s", slot.Val.String())
	}
}

func TestExecuteImportResolvesThroughImporter(t *testing.T) {
	prog, err := ast.Parse(token.New(`import "util"; export util;`))
	if err != nil {
		t.Fatalf("parsing: %v", err)
	}
	module, err := compiler.Compile(prog, "test")
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	sp := stringpool.New()
	pool := value.NewObjectPool()
	result, err := Execute(module, sp, pool, mapImporter{"util": value.Int(99)})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	util := exportField(t, result, sp, "util")
	if util.AsInt() != 99 {
		t.Fatalf("expected util = 99, got %s", util.String())
	}
}

func TestExecuteReleasesObjectsAfterGarbageCollection(t *testing.T) {
	_, _, pool, err := run(t, `
var o = new {};
o.self = o;
`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	before := pool.Len()
	pool.CollectGarbage()
	after := pool.Len()
	if after >= before {
		t.Fatalf("expected CollectGarbage to reclaim the o->o cycle (before=%d, after=%d)", before, after)
	}
}
