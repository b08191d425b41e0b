package compiler

import (
	"fmt"

	"github.com/oriys/bur/internal/lang/token"
)

// Kind discriminates the compile-time failures spec.md §7 calls out by
// name, so host code can switch on *Error.Kind instead of matching on
// Error() text. KindGeneric covers every other "cannot lower this AST
// shape" failure, which spec.md leaves unspecified beyond "fails to
// compile".
type Kind int

const (
	KindGeneric Kind = iota
	KindIllegalAssignment
	KindIllegalExport
	KindIllegalBreak
	KindIllegalContinue
)

func (k Kind) String() string {
	switch k {
	case KindIllegalAssignment:
		return "IllegalAssignment"
	case KindIllegalExport:
		return "IllegalExport"
	case KindIllegalBreak:
		return "IllegalBreak"
	case KindIllegalContinue:
		return "IllegalContinue"
	default:
		return "Generic"
	}
}

// Error is a bytecode-generation-time failure: something the AST
// contract allows syntactically but the compiler cannot lower, e.g. a
// `break`/`continue` outside any loop, or `export` outside the init
// function.
type Error struct {
	Kind    Kind
	Message string
	Slice   token.Slice
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (at byte %d, line %d)", e.Message, e.Slice.Start, e.Slice.Line)
}

func errf(slice token.Slice, format string, args ...interface{}) error {
	return &Error{Kind: KindGeneric, Message: fmt.Sprintf(format, args...), Slice: slice}
}

func kindErrf(kind Kind, slice token.Slice, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Slice: slice}
}
