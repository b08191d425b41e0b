// Package runtime wires the language's shared pools (internal/lang/value,
// internal/lang/stringpool), its front end (internal/lang/token,
// internal/lang/ast, internal/lang/compiler), and its interpreter
// (internal/lang/vm) into one embeddable object: a Runtime that parses,
// compiles, and executes Bur source, resolves `import` statements
// through a pluggable SourceLoader, and caches each module's export
// object by path so importing it twice runs its init function once.
package runtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/oriys/bur/internal/lang/ast"
	"github.com/oriys/bur/internal/lang/bytecode"
	"github.com/oriys/bur/internal/lang/compiler"
	"github.com/oriys/bur/internal/lang/stringpool"
	"github.com/oriys/bur/internal/lang/token"
	"github.com/oriys/bur/internal/lang/value"
	"github.com/oriys/bur/internal/lang/vm"
	"github.com/oriys/bur/internal/logging"
)

// Runtime owns the pools every module executed through it shares: one
// interned StringPool and one cycle-safe ObjectPool per Runtime, per
// DESIGN.md Open Question #1 (not a process-wide global).
type Runtime struct {
	sp   *stringpool.Pool
	pool *value.ObjectPool

	loader SourceLoader

	mu      sync.Mutex
	exports map[string]value.ObjectRef

	gcCfg  GCConfig
	gcStop chan struct{}
	gcDone chan struct{}
}

// New constructs a Runtime backed by loader for resolving imports.
// Pass NoLoader{} for a Runtime that only ever runs one self-contained
// module. If cfg.GC.Interval is nonzero, a background goroutine calls
// CollectGarbage on that interval until Close is called.
func New(cfg Config, loader SourceLoader) *Runtime {
	r := &Runtime{
		sp:      stringpool.New(),
		pool:    value.NewObjectPool(),
		loader:  loader,
		exports: make(map[string]value.ObjectRef),
		gcCfg:   cfg.GC,
	}
	if r.gcCfg.Interval > 0 {
		r.gcStop = make(chan struct{})
		r.gcDone = make(chan struct{})
		go r.gcLoop()
	}
	return r
}

// Close stops the background GC loop, if one is running. Idempotent.
func (r *Runtime) Close() {
	if r.gcStop == nil {
		return
	}
	select {
	case <-r.gcStop:
	default:
		close(r.gcStop)
	}
	<-r.gcDone
}

func (r *Runtime) gcLoop() {
	defer close(r.gcDone)
	ticker := time.NewTicker(r.gcCfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.gcStop:
			return
		case <-ticker.C:
			r.CollectGarbage()
		}
	}
}

// CollectGarbage runs one mark/sweep pass over the object pool,
// reclaiming any cycle of objects unreachable from a live reference
// count, per DESIGN.md Open Question #2.
func (r *Runtime) CollectGarbage() {
	before := r.pool.Len()
	r.pool.CollectGarbage()
	after := r.pool.Len()
	logging.Op().Debug("bur: collected garbage", "before", before, "after", after, "reclaimed", before-after)
}

// compile parses and lowers src into a CompiledModule addressed as
// path, for error attribution and as its import-cache key.
func compile(path, src string) (*bytecode.CompiledModule, error) {
	scanner := token.New(src)
	prog, err := ast.Parse(scanner)
	if err != nil {
		return nil, fmt.Errorf("runtime: parsing %q: %w", path, err)
	}
	module, err := compiler.Compile(prog, path)
	if err != nil {
		return nil, fmt.Errorf("runtime: compiling %q: %w", path, err)
	}
	return module, nil
}

// Run parses, compiles, and executes src as the top-level module named
// path, returning its export object. Unlike Import, Run never
// consults or populates the module cache — it is meant for the one
// entry-point module a host invokes directly, which by definition is
// never itself imported by path.
func (r *Runtime) Run(path, src string) (value.Value, error) {
	module, err := compile(path, src)
	if err != nil {
		return value.None, err
	}
	return vm.Execute(module, r.sp, r.pool, r)
}

// Import implements vm.Importer: it is the VM's only route to
// resolving an `import` statement, called from inside a module's own
// init function while that module's machine is still running.
func (r *Runtime) Import(path string) (value.Value, error) {
	r.mu.Lock()
	if ref, ok := r.exports[path]; ok {
		r.mu.Unlock()
		return value.Obj(ref.CloneReference()), nil
	}
	r.mu.Unlock()

	src, err := r.loader.Load(path)
	if err != nil {
		return value.None, fmt.Errorf("runtime: loading %q: %w", path, err)
	}
	module, err := compile(path, src)
	if err != nil {
		return value.None, err
	}
	exported, err := vm.Execute(module, r.sp, r.pool, r)
	if err != nil {
		return value.None, err
	}
	if exported.Kind() != value.KindObject {
		return value.None, fmt.Errorf("runtime: module %q did not produce an export object", path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ref, ok := r.exports[path]; ok {
		// A concurrent Import of the same path raced us and won;
		// drop our redundant execution's exports and defer to theirs,
		// keeping the "runs its init function once" cache contract
		// even under concurrent first imports.
		exported.AsObject().Drop()
		return value.Obj(ref.CloneReference()), nil
	}
	r.exports[path] = exported.AsObject().CloneReference()
	return exported, nil
}

// RegisterNativeModule installs v as the export value for path without
// ever compiling or executing Bur source for it — the route a host
// uses to expose Go-implemented functionality (e.g. a "fs" or "http"
// module) to guest `import` statements.
func (r *Runtime) RegisterNativeModule(path string, v value.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.Kind() == value.KindObject {
		r.exports[path] = v.AsObject().CloneReference()
		return
	}
	// Non-object exports (a bare native handle, say) can't be cloned
	// generically; wrap them in a single-property object so the cache
	// still only ever hands out independently-owned references.
	wrapper := r.pool.NewObject()
	obj := wrapper.Deref()
	obj.Set(r.sp.Acquire("default"), value.PlainSlot(v))
	r.exports[path] = wrapper
}

// StringPool and ObjectPool expose the shared pools for a host that
// needs to build Value literals (e.g. constructing native module
// objects for RegisterNativeModule) outside of compiled bytecode.
func (r *Runtime) StringPool() *stringpool.Pool { return r.sp }
func (r *Runtime) ObjectPool() *value.ObjectPool { return r.pool }
