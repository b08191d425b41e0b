package compiler

import (
	"testing"

	"github.com/oriys/bur/internal/lang/ast"
	"github.com/oriys/bur/internal/lang/bytecode"
	"github.com/oriys/bur/internal/lang/token"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := ast.Parse(token.New(src))
	if err != nil {
		t.Fatalf("parsing %q: %v", src, err)
	}
	return prog
}

func mustCompile(t *testing.T, src string) *bytecode.CompiledModule {
	t.Helper()
	module, err := Compile(mustParse(t, src), "test")
	if err != nil {
		t.Fatalf("compiling %q: %v", src, err)
	}
	return module
}

func compileErr(t *testing.T, src string) error {
	t.Helper()
	_, err := Compile(mustParse(t, src), "test")
	if err == nil {
		t.Fatalf("compiling %q: expected an error, got none", src)
	}
	return err
}

func opCounts(code []bytecode.Instruction) map[bytecode.OpCode]int {
	counts := make(map[bytecode.OpCode]int)
	for _, instr := range code {
		counts[instr.Op]++
	}
	return counts
}

func TestCompileArithmeticExpression(t *testing.T) {
	module := mustCompile(t, `var x = 1 + 2; export x;`)
	counts := opCounts(module.Init.Code)
	if counts[bytecode.OpAdd] != 1 {
		t.Fatalf("expected one OpAdd, got instructions: %+v", module.Init.Code)
	}
	if counts[bytecode.Export] != 1 {
		t.Fatalf("expected one Export, got instructions: %+v", module.Init.Code)
	}
}

func TestCompileObjectAndArrayLiterals(t *testing.T) {
	module := mustCompile(t, `var o = new {}; var a = new [1, 2, 3]; export a;`)
	counts := opCounts(module.Init.Code)
	if counts[bytecode.PushNewObject] != 1 {
		t.Fatalf("expected one PushNewObject, got instructions: %+v", module.Init.Code)
	}
	if counts[bytecode.PushConstInt] < 3 {
		t.Fatalf("expected at least 3 PushConstInt for the array elements, got instructions: %+v", module.Init.Code)
	}
}

func TestCompileClassDeclarationRegistersConstructorAndMethods(t *testing.T) {
	module := mustCompile(t, `
class Greeter {
	var name;
	func greet() {
		return this.name;
	}
}
var g = Greeter();
export g;
`)
	if len(module.Funcs) != 2 {
		t.Fatalf("expected 2 functions (constructor + greet method), got %d: %+v", len(module.Funcs), module.Funcs)
	}
}

func TestCompileForEachDesugarsToIndexedLoop(t *testing.T) {
	module := mustCompile(t, `
var a = new [1, 2, 3];
var total = 0;
for each (x in a) {
	total = total + x;
}
export total;
`)
	counts := opCounts(module.Init.Code)
	if counts[bytecode.TempBreak] != 0 || counts[bytecode.TempContinue] != 0 {
		t.Fatalf("expected every TempBreak/TempContinue to be patched away, got instructions: %+v", module.Init.Code)
	}
	if counts[bytecode.PushIndex] < 2 {
		t.Fatalf("expected the desugared loop to index the iterable at least twice (bound check + element), got: %+v", module.Init.Code)
	}
}

func TestCompileTryCatchEmitsPushAndPopCatch(t *testing.T) {
	module := mustCompile(t, `
try {
	throw "boom";
} catch (e) {
	var msg = e;
}
`)
	counts := opCounts(module.Init.Code)
	if counts[bytecode.PushCatch] != 1 || counts[bytecode.PopCatch] != 1 {
		t.Fatalf("expected exactly one PushCatch/PopCatch pair, got instructions: %+v", module.Init.Code)
	}
	if counts[bytecode.Throw] != 1 {
		t.Fatalf("expected one Throw, got instructions: %+v", module.Init.Code)
	}
}

func TestCompileAccessChainPatterns(t *testing.T) {
	// AccessIdent (obj.field) and AccessIndex (arr[0]) in one module.
	module := mustCompile(t, `
var o = new {};
o.value = 1;
var a = new [1, 2];
var first = a[0];
`)
	counts := opCounts(module.Init.Code)
	if counts[bytecode.StoreIndex] == 0 {
		t.Fatalf("expected o.value = 1 to lower to StoreIndex, got: %+v", module.Init.Code)
	}
	if counts[bytecode.PushIndex] == 0 {
		t.Fatalf("expected a[0] to lower to PushIndex, got: %+v", module.Init.Code)
	}
}

func TestBreakOutsideLoopIsIllegalBreak(t *testing.T) {
	err := compileErr(t, `break;`)
	ce, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *compiler.Error, got %T: %v", err, err)
	}
	if ce.Kind != KindIllegalBreak {
		t.Fatalf("expected KindIllegalBreak, got %s", ce.Kind)
	}
}

func TestContinueOutsideLoopIsIllegalContinue(t *testing.T) {
	err := compileErr(t, `continue;`)
	ce, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *compiler.Error, got %T: %v", err, err)
	}
	if ce.Kind != KindIllegalContinue {
		t.Fatalf("expected KindIllegalContinue, got %s", ce.Kind)
	}
}

func TestBreakContinueInsideLoopCompileCleanly(t *testing.T) {
	mustCompile(t, `
var i = 0;
while (i < 10) {
	i = i + 1;
	if (i == 5) {
		break;
	}
	continue;
}
`)
}

func TestExportInsideNestedFunctionIsIllegalExport(t *testing.T) {
	err := compileErr(t, `
func f() {
	export x = 1;
}
`)
	ce, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *compiler.Error, got %T: %v", err, err)
	}
	if ce.Kind != KindIllegalExport {
		t.Fatalf("expected KindIllegalExport, got %s", ce.Kind)
	}
}

func TestExportAtModuleTopLevelCompilesCleanly(t *testing.T) {
	module := mustCompile(t, `var x = 1; export x;`)
	if opCounts(module.Init.Code)[bytecode.Export] != 1 {
		t.Fatalf("expected one Export, got: %+v", module.Init.Code)
	}
}

func TestExportInsideIfInsideInitStillCompiles(t *testing.T) {
	// export shares the init funcCompiler's isInit flag across nested
	// if/while/try blocks, so it's legal anywhere inside init — only
	// a *nested function* boundary makes it illegal.
	mustCompile(t, `
var x = 1;
if (x == 1) {
	export x;
}
`)
}

func TestAssignToCallExpressionIsIllegalAssignment(t *testing.T) {
	err := compileErr(t, `
func f() {
	return 1;
}
f() = 2;
`)
	ce, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *compiler.Error, got %T: %v", err, err)
	}
	if ce.Kind != KindIllegalAssignment {
		t.Fatalf("expected KindIllegalAssignment, got %s", ce.Kind)
	}
}

func TestErrorKindStringNames(t *testing.T) {
	cases := map[Kind]string{
		KindGeneric:            "Generic",
		KindIllegalAssignment:  "IllegalAssignment",
		KindIllegalExport:      "IllegalExport",
		KindIllegalBreak:       "IllegalBreak",
		KindIllegalContinue:    "IllegalContinue",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
