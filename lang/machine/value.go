// Package machine implements the virtual machine that executes a decoded
// bytecode.Program. It also provides the runtime representation of the
// values the interpreter manipulates and the small host-callable runtime
// library exposed to programs through their global environment.
package machine

import (
	"fmt"

	"github.com/mna/luavm/lang/bytecode"
)

// Value is the interface implemented by every runtime datum the machine
// manipulates: Nil, Boolean, Number, String, *FunctionRef and
// *HostFunctionRef.
type Value interface {
	String() string
	Type() string
}

// NilType is the type of Nil. Its only legal value is Nil.
type NilType struct{}

// Nil is the Value representing the absence of a value.
var Nil = NilType{}

func (NilType) String() string { return "nil" }
func (NilType) Type() string   { return "nil" }

// Boolean is the type of boolean values.
type Boolean bool

const (
	False Boolean = false
	True  Boolean = true
)

func (b Boolean) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (b Boolean) Type() string { return "boolean" }

// Number is the type of the machine's single numeric type, an IEEE-754
// double.
type Number float64

func (n Number) String() string { return fmt.Sprintf("%g", float64(n)) }
func (n Number) Type() string   { return "number" }

// String is an immutable reference to a byte sequence owned by a
// FunctionProto's constant pool (or produced by a host function). It is not
// a heap object in the source language's sense: there is no table of
// interned strings and no user-visible identity beyond its content.
type String string

func (s String) String() string { return string(s) }
func (s String) Type() string   { return "string" }

// FunctionRef is a reference to a compiled function paired with its bound
// upvalue activation. Per the resolution of the upvalue-aliasing open
// question (SPEC_FULL.md §9), each Closure instruction allocates a fresh
// FunctionRef with its own Upvalues slice, rather than indexing a single
// table keyed by proto id: recursive or repeated activations of the same
// FunctionProto no longer alias each other's captured state.
type FunctionRef struct {
	Proto    *bytecode.FunctionProto
	Upvalues []Value
}

func (f *FunctionRef) String() string { return fmt.Sprintf("function: %p", f) }
func (f *FunctionRef) Type() string   { return "function" }

// HostFunc is the signature of a function in the runtime library: it
// receives the live argument registers (regs[:nargs]) and a sink to append
// zero or more return values to, and may fail.
type HostFunc func(it *Interpreter, args []Value, results *[]Value) error

// HostFunctionRef is an opaque callable handle into the runtime library.
type HostFunctionRef struct {
	Name string
	Fn   HostFunc
}

func (h *HostFunctionRef) String() string { return fmt.Sprintf("function: builtin: %s", h.Name) }
func (h *HostFunctionRef) Type() string   { return "function" }

// Callable is implemented by any Value that may be the target of Call or
// TailCall.
type Callable interface {
	Value
	callableName() string
}

func (f *FunctionRef) callableName() string {
	if f.Proto.Name != "" {
		return f.Proto.Name
	}
	return "?"
}
func (h *HostFunctionRef) callableName() string { return h.Name }

var (
	_ Value    = Nil
	_ Value    = True
	_ Value    = Number(0)
	_ Value    = String("")
	_ Callable = (*FunctionRef)(nil)
	_ Callable = (*HostFunctionRef)(nil)
)

// Truth reports the truthiness of v: Nil and Boolean(false) are false,
// everything else is true.
func Truth(v Value) bool {
	switch v := v.(type) {
	case NilType:
		return false
	case Boolean:
		return bool(v)
	default:
		return true
	}
}

// Equal reports structural equality for Nil/Boolean/Number/String and
// reference identity for FunctionRef/HostFunctionRef, matching the value
// model's equality rules.
func Equal(x, y Value) bool {
	switch x := x.(type) {
	case NilType:
		_, ok := y.(NilType)
		return ok
	case Boolean:
		yb, ok := y.(Boolean)
		return ok && x == yb
	case Number:
		// Native IEEE-754 equality, not the total-order comparison used by
		// Lt/Le: NaN is equal to nothing, not even itself.
		yn, ok := y.(Number)
		return ok && float64(x) == float64(yn)
	case String:
		ys, ok := y.(String)
		return ok && x == ys
	case *FunctionRef:
		yf, ok := y.(*FunctionRef)
		return ok && x == yf
	case *HostFunctionRef:
		yh, ok := y.(*HostFunctionRef)
		return ok && x == yh
	default:
		return false
	}
}
