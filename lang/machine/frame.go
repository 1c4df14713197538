package machine

import "github.com/mna/luavm/lang/bytecode"

// CallFrame is one activation of a FunctionProto: a fixed-size register
// window sized to the proto's declared max_stack, plus the bookkeeping
// needed to resume execution and to deliver return values to the caller.
type CallFrame struct {
	Proto *FunctionRef

	// Regs is the register window for this activation, indexed [0,
	// Proto.Proto.MaxStack).
	Regs []Value

	// PC is the index of the next instruction to execute in Proto.Proto.Code.
	PC uint32

	// ResultReg and ResultCount are not set or read by the interpreter: a
	// Call writes its callee's return values into the caller's registers
	// through storeResults instead.
	ResultReg   uint32
	ResultCount int

	// Top is the highest register index ever written, plus one: the dynamic
	// "top of stack" used by the B=0/C=0 forms of Call/TailCall/Return to mean
	// "every live value up to here", as opposed to Regs' static capacity
	// (MaxStack). It grows on every register write and is truncated by Call
	// once its arguments have been consumed (TailCall discards this frame
	// entirely, so it has no need to truncate it).
	Top int
}

// newCallFrame allocates a fresh, Nil-initialized register window for fn.
func newCallFrame(fn *FunctionRef) *CallFrame {
	regs := make([]Value, fn.Proto.MaxStack)
	for i := range regs {
		regs[i] = Nil
	}
	return &CallFrame{Proto: fn, Regs: regs}
}

// get returns the live value of register r, or Nil if r is out of bounds
// (register operands are validated at decode time by bytecode.Validate, so
// this should not occur for well-formed images).
func (f *CallFrame) get(r uint32) Value {
	if int(r) >= len(f.Regs) {
		return Nil
	}
	return f.Regs[r]
}

func (f *CallFrame) set(r uint32, v Value) {
	if int(r) >= f.Top {
		f.Top = int(r) + 1
	}
	f.Regs[r] = v
}

// truncateTop resets the frame's dynamic top to n, discarding any higher
// registers from B=0/C=0 accounting without clearing their contents. Used by
// Call after its arguments have been read out, mirroring the caller's stack
// shrinking back to just past the called function's register.
func (f *CallFrame) truncateTop(n int) {
	f.Top = n
}

// rk resolves a register-or-constant operand: values < 256 address a
// register, values >= 256 address constant pool index value-256.
func (f *CallFrame) rk(proto *bytecode.FunctionProto, rk uint32) Value {
	if rk >= 256 {
		return constantValue(proto.Constants[rk-256])
	}
	return f.get(rk)
}

func constantValue(c bytecode.Constant) Value {
	switch c.Tag {
	case bytecode.TagNil:
		return Nil
	case bytecode.TagBoolean:
		return Boolean(c.Boolean)
	case bytecode.TagNumber:
		return Number(c.Number)
	case bytecode.TagString:
		return String(c.String)
	default:
		return Nil
	}
}
