package machine

import (
	"errors"
	"fmt"

	"github.com/mna/luavm/lang/bytecode"
)

// Execution errors. Each is fatal: the interpreter never attempts local
// recovery from one, it unwinds the call stack and returns it to the
// caller of Run (wrapped with fmt.Errorf where a name, register or
// opcode adds useful context).
var (
	ErrGlobalNotFound    = errors.New("machine: global not found")
	ErrDivideByZero      = errors.New("machine: divide by zero")
	ErrModuloByZero      = errors.New("machine: modulo by zero")
	ErrNotCallable       = errors.New("machine: value is not callable")
	ErrMalformedClosure  = errors.New("machine: malformed closure bindings")
	ErrUnimplementedOp   = errors.New("machine: unimplemented opcode")
	ErrNotComparable     = errors.New("machine: values are not comparable")
	ErrCancelled         = errors.New("machine: execution cancelled")
	ErrTailCallNonFunc   = errors.New("machine: tail call target is not a function")
	ErrUpvalueOutOfRange = errors.New("machine: upvalue index out of range")
)

func errGlobalNotFound(name string) error {
	return fmt.Errorf("%w: %s", ErrGlobalNotFound, name)
}

func errNotCallable(v Value) error {
	return fmt.Errorf("%w: %s", ErrNotCallable, v.Type())
}

func errMalformedClosure(proto *bytecode.FunctionProto, pc uint32) error {
	return fmt.Errorf("%w: %s pc %d", ErrMalformedClosure, proto.Name, pc)
}

func errUnimplementedOp(op bytecode.Opcode) error {
	return fmt.Errorf("%w: %s", ErrUnimplementedOp, op)
}

func errNotComparable(x, y Value) error {
	return fmt.Errorf("%w: %s and %s", ErrNotComparable, x.Type(), y.Type())
}

func errUpvalueOutOfRange(idx, n int) error {
	return fmt.Errorf("%w: index %d, have %d", ErrUpvalueOutOfRange, idx, n)
}
