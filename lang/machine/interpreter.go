package machine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/mna/luavm/lang/bytecode"
)

// Interpreter executes a decoded bytecode.Program. It is not safe for
// concurrent use by multiple goroutines; create one Interpreter per
// concurrent Run.
type Interpreter struct {
	// Globals is the global environment programs read and write through
	// GetGlobal/SetGlobal. If nil, Run creates one seeded with the runtime
	// library.
	Globals *GlobalEnv

	// Stdout is where the runtime library's print builtin writes. If nil,
	// os.Stdout is used.
	Stdout io.Writer

	// MaxSteps bounds the number of dispatch-loop iterations before
	// execution is cancelled. A value <= 0 means no limit. Checked at a
	// bounded interval, not on every single instruction, to keep the cost of
	// cancellation off the hot path.
	MaxSteps int

	ctx       context.Context
	ctxCancel context.CancelFunc
	cancelled atomic.Bool

	steps, maxSteps uint64
	stdout          io.Writer
}

// stepCheckInterval is how often, in dispatch-loop iterations, the
// interpreter checks ctx.Done() and the step budget. Checking every
// instruction would make cancellation response nearly instant but adds
// atomic-load and context overhead to every single opcode; this amortizes
// that cost while still keeping a runaway program's worst-case overrun
// small.
const stepCheckInterval = 256

// Run decodes nothing itself: it executes an already-decoded prog,
// starting at prog.Main with no arguments, until the main function
// returns or a runtime error occurs.
func (it *Interpreter) Run(ctx context.Context, prog *bytecode.Program) error {
	it.init(ctx)

	main := &FunctionRef{Proto: prog.Main}
	_, err := it.call(main, nil)
	return err
}

func (it *Interpreter) init(ctx context.Context) {
	if it.Globals == nil {
		it.Globals = NewGlobalEnv()
	}
	if it.Stdout != nil {
		it.stdout = it.Stdout
	} else {
		it.stdout = os.Stdout
	}
	if it.MaxSteps <= 0 {
		it.maxSteps--
	} else {
		it.maxSteps = uint64(it.MaxSteps)
	}

	ctx, cancel := context.WithCancel(ctx)
	it.ctx = ctx
	it.ctxCancel = cancel
	go func() {
		<-ctx.Done()
		it.cancelled.Store(true)
	}()
}

// call invokes fn with the given arguments and returns its results. It
// recurses into eval for Lua functions (each nested, non-tail Call grows
// the Go call stack by one frame) and dispatches directly for host
// functions.
func (it *Interpreter) call(fn Callable, args []Value) ([]Value, error) {
	switch fn := fn.(type) {
	case *FunctionRef:
		return it.eval(fn, args)
	case *HostFunctionRef:
		var results []Value
		if err := fn.Fn(it, args, &results); err != nil {
			return nil, fmt.Errorf("%s: %w", fn.Name, err)
		}
		return results, nil
	default:
		return nil, errNotCallable(fn)
	}
}

// eval runs one activation of fn's proto to completion, including any
// chain of tail calls it makes: a TailCall instruction replaces the
// current activation with a new one at the top of this same loop instead
// of recursing, so a deep tail-recursive program does not grow the Go
// call stack.
func (it *Interpreter) eval(fn *FunctionRef, args []Value) ([]Value, error) {
	frame := newCallFrame(fn)
	bindArgs(frame, fn.Proto, args)

tailcall:
	proto := frame.Proto.Proto
	code := proto.Code

	for {
		it.steps++
		if it.steps%stepCheckInterval == 0 {
			if it.steps >= it.maxSteps {
				it.ctxCancel()
				return nil, fmt.Errorf("%w: step limit reached", ErrCancelled)
			}
			if it.cancelled.Load() {
				return nil, fmt.Errorf("%w: %v", ErrCancelled, context.Cause(it.ctx))
			}
		}

		pc := frame.PC
		if int(pc) >= len(code) {
			return nil, nil
		}
		instr := code[pc]
		frame.PC = pc + 1

		switch instr.Op {
		case bytecode.Move:
			frame.set(instr.A, frame.get(instr.B))

		case bytecode.LoadK:
			frame.set(instr.A, constantValue(proto.Constants[instr.Bx]))

		case bytecode.LoadBool:
			frame.set(instr.A, Boolean(instr.B != 0))
			if instr.C != 0 {
				frame.PC++
			}

		case bytecode.LoadNil:
			for r := instr.A; r <= instr.B; r++ {
				frame.set(r, Nil)
			}

		case bytecode.GetUpVal:
			v, err := getUpvalue(frame.Proto, instr.B)
			if err != nil {
				return nil, err
			}
			frame.set(instr.A, v)

		case bytecode.SetUpVal:
			if err := setUpvalue(frame.Proto, instr.B, frame.get(instr.A)); err != nil {
				return nil, err
			}

		case bytecode.GetGlobal:
			name := proto.Constants[instr.Bx].String
			v, err := it.Globals.Get(name)
			if err != nil {
				return nil, err
			}
			frame.set(instr.A, v)

		case bytecode.SetGlobal:
			name := proto.Constants[instr.Bx].String
			it.Globals.Set(name, frame.get(instr.A))

		case bytecode.Add, bytecode.Sub, bytecode.Mul, bytecode.Div, bytecode.Mod, bytecode.Pow:
			x := frame.rk(proto, instr.B)
			y := frame.rk(proto, instr.C)
			v, err := arith(instr.Op, x, y)
			if err != nil {
				return nil, err
			}
			frame.set(instr.A, v)

		case bytecode.Unm:
			x, ok := frame.get(instr.B).(Number)
			if !ok {
				return nil, fmt.Errorf("machine: attempt to negate a %s value", frame.get(instr.B).Type())
			}
			frame.set(instr.A, -x)

		case bytecode.Not:
			frame.set(instr.A, Boolean(!Truth(frame.get(instr.B))))

		case bytecode.Len:
			v := frame.get(instr.B)
			s, ok := v.(String)
			if !ok {
				return nil, fmt.Errorf("machine: attempt to get length of a %s value", v.Type())
			}
			frame.set(instr.A, Number(len(s)))

		case bytecode.Eq:
			x := frame.rk(proto, instr.B)
			y := frame.rk(proto, instr.C)
			if Equal(x, y) != (instr.A != 0) {
				frame.PC++
			}

		case bytecode.Lt:
			x := frame.rk(proto, instr.B)
			y := frame.rk(proto, instr.C)
			ok, err := less(x, y)
			if err != nil {
				return nil, err
			}
			if ok != (instr.A != 0) {
				frame.PC++
			}

		case bytecode.Le:
			x := frame.rk(proto, instr.B)
			y := frame.rk(proto, instr.C)
			ok, err := lessEqual(x, y)
			if err != nil {
				return nil, err
			}
			if ok != (instr.A != 0) {
				frame.PC++
			}

		case bytecode.Test:
			if Truth(frame.get(instr.A)) != (instr.C != 0) {
				frame.PC++
			}

		case bytecode.TestSet:
			v := frame.get(instr.B)
			if Truth(v) == (instr.C != 0) {
				frame.set(instr.A, v)
			} else {
				frame.PC++
			}

		case bytecode.Jmp:
			frame.PC = uint32(int32(frame.PC) + instr.SBx)

		case bytecode.ForPrep:
			init, ok1 := frame.get(instr.A).(Number)
			_, ok2 := frame.get(instr.A + 1).(Number)
			step, ok3 := frame.get(instr.A + 2).(Number)
			if !ok1 || !ok2 || !ok3 {
				return nil, fmt.Errorf("machine: 'for' initial value, limit and step must be numbers")
			}
			frame.set(instr.A, init-step)
			frame.PC = uint32(int32(frame.PC) + instr.SBx)

		case bytecode.ForLoop:
			idx := frame.get(instr.A).(Number)
			limit := frame.get(instr.A + 1).(Number)
			step := frame.get(instr.A + 2).(Number)
			idx += step
			more := (step > 0 && numLessEqual(idx, limit)) || (step <= 0 && numLessEqual(limit, idx))
			if more {
				frame.set(instr.A, idx)
				frame.set(instr.A+3, idx)
				frame.PC = uint32(int32(frame.PC) + instr.SBx)
			}

		case bytecode.Closure:
			ref, err := it.makeClosure(frame, proto, instr)
			if err != nil {
				return nil, err
			}
			frame.set(instr.A, ref)
			// Skip the upvalue-binding pseudo-instructions already consumed by
			// makeClosure when resolving the bindings.
			frame.PC += uint32(len(proto.ClosureBindings[pc]))

		case bytecode.Call:
			callee, ok := frame.get(instr.A).(Callable)
			if !ok {
				return nil, errNotCallable(frame.get(instr.A))
			}
			args := callArgs(frame, instr)
			frame.truncateTop(int(instr.A) + 1)
			results, err := it.call(callee, args)
			if err != nil {
				return nil, err
			}
			storeResults(frame, instr, results)

		case bytecode.TailCall:
			callee, ok := frame.get(instr.A).(Callable)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrTailCallNonFunc, frame.get(instr.A).Type())
			}
			args := callArgs(frame, instr)
			switch callee := callee.(type) {
			case *FunctionRef:
				// Replace this activation with a fresh one for the tail-called
				// function and resume the dispatch loop in place: a chain of
				// tail calls never grows the Go call stack.
				frame = newCallFrame(callee)
				bindArgs(frame, callee.Proto, args)
				goto tailcall
			case *HostFunctionRef:
				var results []Value
				if err := callee.Fn(it, args, &results); err != nil {
					return nil, fmt.Errorf("%s: %w", callee.Name, err)
				}
				return results, nil
			}

		case bytecode.Return:
			return returnValues(frame, instr), nil

		default:
			return nil, errUnimplementedOp(instr.Op)
		}
	}
}

// bindArgs copies the positional arguments a caller supplied into the
// callee's parameter registers, truncating surplus arguments (varargs are
// out of scope: VarArg is an unimplemented opcode per SPEC_FULL.md §4.2).
func bindArgs(frame *CallFrame, proto *bytecode.FunctionProto, args []Value) {
	n := int(proto.NumParams)
	if n > len(args) {
		n = len(args)
	}
	for i := 0; i < n; i++ {
		frame.set(uint32(i), args[i])
	}
}

// callArgs collects the argument registers for a Call/TailCall
// instruction: B-1 arguments starting at A+1, or, when B==0, every
// register from A+1 up to the frame's dynamic top (e.g. forwarding every
// result of a preceding Call that itself used C=0, "return all results").
func callArgs(frame *CallFrame, instr bytecode.Instruction) []Value {
	n := int(instr.B) - 1
	if instr.B == 0 {
		n = frame.Top - int(instr.A) - 1
		if n < 0 {
			n = 0
		}
	}
	args := make([]Value, n)
	for i := 0; i < n; i++ {
		args[i] = frame.get(instr.A + 1 + uint32(i))
	}
	return args
}

// storeResults writes a Call's results into the caller's registers
// starting at A, per C-1 results requested (C==0 means "all results",
// which this interpreter treats as every result the callee returned).
func storeResults(frame *CallFrame, instr bytecode.Instruction, results []Value) {
	want := len(results)
	if instr.C > 0 {
		want = int(instr.C) - 1
	}
	for i := 0; i < want; i++ {
		var v Value = Nil
		if i < len(results) {
			v = results[i]
		}
		frame.set(instr.A+uint32(i), v)
	}
}

// returnValues collects a Return instruction's result registers: B-1
// values starting at A, or, when B==0, every register from A up to the
// frame's dynamic top (every value actually live at the point of return,
// not the function's static max_stack).
func returnValues(frame *CallFrame, instr bytecode.Instruction) []Value {
	n := int(instr.B) - 1
	if instr.B == 0 {
		n = frame.Top - int(instr.A)
		if n < 0 {
			n = 0
		}
	}
	out := make([]Value, n)
	for i := 0; i < n; i++ {
		out[i] = frame.get(instr.A + uint32(i))
	}
	return out
}

// makeClosure allocates a new FunctionRef for the Closure instruction at
// instr, binding its upvalues from the enclosing frame's registers (Move
// bindings) or the enclosing frame's own upvalues (GetUpVal bindings),
// per the decode-time-resolved ClosureBindings.
func (it *Interpreter) makeClosure(frame *CallFrame, proto *bytecode.FunctionProto, instr bytecode.Instruction) (*FunctionRef, error) {
	pc := frame.PC - 1
	if !proto.BindingsValid(pc) {
		return nil, errMalformedClosure(proto, pc)
	}
	child := proto.Protos[instr.Bx]
	bindings := proto.ClosureBindings[pc]

	upvalues := make([]Value, len(bindings))
	for i, b := range bindings {
		if b.FromUpvalue {
			v, err := getUpvalue(frame.Proto, b.Index)
			if err != nil {
				return nil, err
			}
			upvalues[i] = v
		} else {
			upvalues[i] = frame.get(b.Index)
		}
	}
	return &FunctionRef{Proto: child, Upvalues: upvalues}, nil
}

func getUpvalue(fn *FunctionRef, idx uint32) (Value, error) {
	if int(idx) >= len(fn.Upvalues) {
		return nil, errUpvalueOutOfRange(int(idx), len(fn.Upvalues))
	}
	return fn.Upvalues[idx], nil
}

func setUpvalue(fn *FunctionRef, idx uint32, v Value) error {
	if int(idx) >= len(fn.Upvalues) {
		return errUpvalueOutOfRange(int(idx), len(fn.Upvalues))
	}
	fn.Upvalues[idx] = v
	return nil
}

func arith(op bytecode.Opcode, x, y Value) (Value, error) {
	xn, ok := x.(Number)
	if !ok {
		return nil, fmt.Errorf("machine: attempt to perform arithmetic on a %s value", x.Type())
	}
	yn, ok := y.(Number)
	if !ok {
		return nil, fmt.Errorf("machine: attempt to perform arithmetic on a %s value", y.Type())
	}
	switch op {
	case bytecode.Add:
		return xn + yn, nil
	case bytecode.Sub:
		return xn - yn, nil
	case bytecode.Mul:
		return xn * yn, nil
	case bytecode.Div:
		if yn == 0 {
			return nil, ErrDivideByZero
		}
		return xn / yn, nil
	case bytecode.Mod:
		if yn == 0 {
			return nil, ErrModuloByZero
		}
		return Number(luaMod(float64(xn), float64(yn))), nil
	case bytecode.Pow:
		return Number(powNumber(float64(xn), float64(yn))), nil
	default:
		panic("machine: arith called with non-arithmetic opcode")
	}
}

func less(x, y Value) (bool, error) {
	xn, xok := x.(Number)
	yn, yok := y.(Number)
	if xok && yok {
		return numLess(xn, yn), nil
	}
	xs, xok := x.(String)
	ys, yok := y.(String)
	if xok && yok {
		return xs < ys, nil
	}
	return false, errNotComparable(x, y)
}

func lessEqual(x, y Value) (bool, error) {
	xn, xok := x.(Number)
	yn, yok := y.(Number)
	if xok && yok {
		return numLessEqual(xn, yn), nil
	}
	xs, xok := x.(String)
	ys, yok := y.(String)
	if xok && yok {
		return xs <= ys, nil
	}
	return false, errNotComparable(x, y)
}
