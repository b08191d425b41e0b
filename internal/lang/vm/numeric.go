package vm

import (
	"math"

	"github.com/oriys/bur/internal/lang/value"
)

// asFloat widens an Int/Float value to float64; ok is false for any
// other kind, letting the caller decide how to fail.
func asFloat(v value.Value) (float64, bool) {
	switch v.Kind() {
	case value.KindInt:
		return float64(v.AsInt()), true
	case value.KindFloat:
		return v.AsFloat(), true
	default:
		return 0, false
	}
}

func bothInt(a, b value.Value) bool {
	return a.Kind() == value.KindInt && b.Kind() == value.KindInt
}

// arith implements the four numeric binary operators plus string
// concatenation for Add: int/int stays int (wrapping on overflow, no
// panic — Bur has no overflow trap), any other int/float mix promotes
// to float, and division/remainder by an int zero raises a guest
// exception while float division by zero follows IEEE-754 (±Inf/NaN).
func (m *machine) arith(op string, a, b value.Value) (value.Value, error) {
	if op == "+" && a.Kind() == value.KindString && b.Kind() == value.KindString {
		return m.concatStrings(a, b), nil
	}

	if bothInt(a, b) {
		x, y := a.AsInt(), b.AsInt()
		switch op {
		case "+":
			return value.Int(x + y), nil
		case "-":
			return value.Int(x - y), nil
		case "*":
			return value.Int(x * y), nil
		case "/":
			if y == 0 {
				return value.None, m.raise("division by zero")
			}
			return value.Int(x / y), nil
		case "%":
			if y == 0 {
				return value.None, m.raise("division by zero")
			}
			return value.Int(x % y), nil
		}
	}

	x, okx := asFloat(a)
	y, oky := asFloat(b)
	if !okx || !oky {
		return value.None, m.raise("'" + op + "' requires numeric operands, got " + a.TypeName() + " and " + b.TypeName())
	}
	switch op {
	case "+":
		return value.Float(x + y), nil
	case "-":
		return value.Float(x - y), nil
	case "*":
		return value.Float(x * y), nil
	case "/":
		return value.Float(x / y), nil // IEEE-754 handles y == 0 as ±Inf/NaN
	case "%":
		return value.Float(math.Mod(x, y)), nil
	}
	return value.None, internalf("arith: unknown operator %q", op)
}

// compare implements the four ordering operators. Numeric operands
// promote exactly like arith; anything else raises a guest exception
// since Bur defines no total order over other value kinds.
func (m *machine) compare(op string, a, b value.Value) (value.Value, error) {
	if bothInt(a, b) {
		x, y := a.AsInt(), b.AsInt()
		return value.Bool(intCompare(op, x, y)), nil
	}
	x, okx := asFloat(a)
	y, oky := asFloat(b)
	if !okx || !oky {
		return value.None, m.raise("'" + op + "' requires numeric operands, got " + a.TypeName() + " and " + b.TypeName())
	}
	return value.Bool(floatCompare(op, x, y)), nil
}

// protoIdentical implements `left == prototype right`: true iff left is
// an object whose own prototype is identical to right (same pool slot,
// or both absent — None/Uninitialized treated alike since either means
// "no prototype").
func protoIdentical(a, b value.Value) bool {
	if a.Kind() != value.KindObject {
		return false
	}
	obj := a.AsObject().Deref()
	if obj == nil {
		return false
	}
	proto := obj.Prototype()
	protoAbsent := proto.Kind() == value.KindNone || proto.Kind() == value.KindUninitialized
	bAbsent := b.Kind() == value.KindNone || b.Kind() == value.KindUninitialized
	if protoAbsent || bAbsent {
		return protoAbsent && bAbsent
	}
	if proto.Kind() != b.Kind() {
		return false
	}
	if proto.Kind() == value.KindObject {
		return proto.AsObject().Index() == b.AsObject().Index()
	}
	return equalValues(proto, b)
}

func intCompare(op string, x, y int64) bool {
	switch op {
	case ">=":
		return x >= y
	case "<=":
		return x <= y
	case ">":
		return x > y
	case "<":
		return x < y
	}
	return false
}

func floatCompare(op string, x, y float64) bool {
	switch op {
	case ">=":
		return x >= y
	case "<=":
		return x <= y
	case ">":
		return x > y
	case "<":
		return x < y
	}
	return false
}

// equalValues implements Bur's `==`: strict per-kind equality, except
// that Int and Float compare by numeric value across the kind
// boundary (spec.md §4.4). Objects compare by identity (same pool
// slot); functions and natives likewise compare by identity.
func equalValues(a, b value.Value) bool {
	if a.Kind() == value.KindInt && b.Kind() == value.KindFloat {
		return float64(a.AsInt()) == b.AsFloat()
	}
	if a.Kind() == value.KindFloat && b.Kind() == value.KindInt {
		return a.AsFloat() == float64(b.AsInt())
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case value.KindNone, value.KindUninitialized:
		return true
	case value.KindBool:
		return a.AsBool() == b.AsBool()
	case value.KindInt:
		return a.AsInt() == b.AsInt()
	case value.KindFloat:
		return a.AsFloat() == b.AsFloat()
	case value.KindString:
		return a.AsString().Equal(b.AsString())
	case value.KindObject:
		return a.AsObject().Index() == b.AsObject().Index()
	case value.KindFunction:
		return a.AsFunction() == b.AsFunction()
	case value.KindNative:
		return a.AsNative() == b.AsNative()
	default:
		return false
	}
}

// unaryMinus negates a numeric value, preserving its kind.
func unaryMinus(v value.Value) (value.Value, bool) {
	switch v.Kind() {
	case value.KindInt:
		return value.Int(-v.AsInt()), true
	case value.KindFloat:
		return value.Float(-v.AsFloat()), true
	default:
		return value.None, false
	}
}
