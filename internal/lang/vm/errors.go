package vm

import (
	"errors"
	"fmt"

	"github.com/oriys/bur/internal/lang/bytecode"
	"github.com/oriys/bur/internal/lang/value"
)

// GuestError is a guest-thrown exception that escaped every catch block
// in the program: the Value the guest `throw` expression evaluated to,
// plus the most recent SetSlice-attributed source range. It is never
// flattened to a string representation internally — callers that need
// the thrown value inspect Value directly (DESIGN.md Open Question #3).
type GuestError struct {
	Value value.Value
	Slice bytecode.SourceSlice
}

func (e *GuestError) Error() string {
	return fmt.Sprintf("uncaught exception %s (at byte %d, line %d)", e.Value, e.Slice.Start, e.Slice.Line)
}

// InternalError reports a violated VM invariant: a malformed
// instruction stream, an out-of-range function/jump index, or a
// reference to an undeclared variable. These never reach guest code —
// they indicate a compiler or VM bug, not a guest-level failure.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string { return "vm: " + e.Message }

func internalf(format string, args ...interface{}) error {
	return &InternalError{Message: fmt.Sprintf(format, args...)}
}

// errUnwound signals that a thrown exception found a catch somewhere
// on the frame stack and execution has already been redirected there;
// every loop driving the dispatch step (Execute's top-level loop and
// any nested runUntil for a getter/setter/native call) checks whether
// its own frame survived the unwind and, if so, swallows this sentinel
// and keeps looping — otherwise it propagates untouched, since the
// frame that loop owns is gone.
var errUnwound = errors.New("vm: exception unwound to an enclosing catch")

// Importer resolves a module import path into the module's exported
// value. The VM never looks at module storage itself — it only calls
// Import on this interface, leaving caching, transport, and package
// registries to whatever the host wires in.
type Importer interface {
	Import(path string) (value.Value, error)
}
