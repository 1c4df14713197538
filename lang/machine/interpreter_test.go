package machine_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/luavm/lang/bytecode"
	"github.com/mna/luavm/lang/machine"
)

func decodeBuilt(t *testing.T, main *bytecode.ProtoBuilder) *bytecode.Program {
	t.Helper()
	hdr := bytecode.DefaultHeader(0x51)
	data := bytecode.Encode(hdr, main)
	prog, err := bytecode.Decode(data, 0x51)
	require.NoError(t, err)
	return prog
}

func runProgram(t *testing.T, prog *bytecode.Program) (string, error) {
	t.Helper()
	var out bytes.Buffer
	it := &machine.Interpreter{Stdout: &out}
	err := it.Run(context.Background(), prog)
	return out.String(), err
}

func TestConstantReturnProducesNoOutput(t *testing.T) {
	main := &bytecode.ProtoBuilder{
		Name:      "main",
		MaxStack:  1,
		Constants: []bytecode.Constant{{Tag: bytecode.TagNumber, Number: 42}},
		Code: []bytecode.Instruction{
			{Op: bytecode.LoadK, A: 0, Bx: 0},
			{Op: bytecode.Return, A: 0, B: 2},
		},
	}
	out, err := runProgram(t, decodeBuilt(t, main))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPrintHello(t *testing.T) {
	main := &bytecode.ProtoBuilder{
		Name:     "main",
		MaxStack: 2,
		Constants: []bytecode.Constant{
			{Tag: bytecode.TagString, String: "print"},
			{Tag: bytecode.TagString, String: "hello"},
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.GetGlobal, A: 0, Bx: 0},
			{Op: bytecode.LoadK, A: 1, Bx: 1},
			{Op: bytecode.Call, A: 0, B: 2, C: 1},
			{Op: bytecode.Return, A: 0, B: 1},
		},
	}
	out, err := runProgram(t, decodeBuilt(t, main))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestPrintArithmetic(t *testing.T) {
	// print(2 + 3*4)
	main := &bytecode.ProtoBuilder{
		Name:     "main",
		MaxStack: 4,
		Constants: []bytecode.Constant{
			{Tag: bytecode.TagString, String: "print"},
			{Tag: bytecode.TagNumber, Number: 2},
			{Tag: bytecode.TagNumber, Number: 3},
			{Tag: bytecode.TagNumber, Number: 4},
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.GetGlobal, A: 0, Bx: 0},
			{Op: bytecode.LoadK, A: 2, Bx: 2},
			{Op: bytecode.LoadK, A: 3, Bx: 3},
			{Op: bytecode.Mul, A: 2, B: 2, C: 3},
			{Op: bytecode.LoadK, A: 3, Bx: 1}, // constant 2
			{Op: bytecode.Add, A: 1, B: 3, C: 2},
			{Op: bytecode.Call, A: 0, B: 2, C: 1},
			{Op: bytecode.Return, A: 0, B: 1},
		},
	}
	out, err := runProgram(t, decodeBuilt(t, main))
	require.NoError(t, err)
	assert.Equal(t, "14\n", out)
}

func TestNumericForLoopPrints1To3(t *testing.T) {
	// for i=1,3 do print(i) end
	main := &bytecode.ProtoBuilder{
		Name:     "main",
		MaxStack: 6,
		Constants: []bytecode.Constant{
			{Tag: bytecode.TagNumber, Number: 1},
			{Tag: bytecode.TagNumber, Number: 3},
			{Tag: bytecode.TagNumber, Number: 1},
			{Tag: bytecode.TagString, String: "print"},
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.LoadK, A: 0, Bx: 0}, // init
			{Op: bytecode.LoadK, A: 1, Bx: 1}, // limit
			{Op: bytecode.LoadK, A: 2, Bx: 2}, // step
			{Op: bytecode.ForPrep, A: 0, SBx: 3},
			{Op: bytecode.GetGlobal, A: 4, Bx: 3},
			{Op: bytecode.Move, A: 5, B: 3},
			{Op: bytecode.Call, A: 4, B: 2, C: 1},
			{Op: bytecode.ForLoop, A: 0, SBx: -4},
			{Op: bytecode.Return, A: 0, B: 1},
		},
	}
	out, err := runProgram(t, decodeBuilt(t, main))
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestClosureCapturesUpvalueAtCreationTime(t *testing.T) {
	// local function makeCounter()
	//   local n = 0
	//   return function() n = n + 1; print(n) end
	// end
	// local c = makeCounter()
	// c(); c(); c()
	counter := &bytecode.ProtoBuilder{
		Name:        "counter",
		MaxStack:    4,
		NumUpvalues: 1,
		Constants: []bytecode.Constant{
			{Tag: bytecode.TagNumber, Number: 1},
			{Tag: bytecode.TagString, String: "print"},
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.GetUpVal, A: 0, B: 0},
			{Op: bytecode.LoadK, A: 1, Bx: 0},
			{Op: bytecode.Add, A: 0, B: 0, C: 256}, // 256 = const index 0 (0+256)
			{Op: bytecode.SetUpVal, A: 0, B: 0},
			{Op: bytecode.GetUpVal, A: 1, B: 0},
			{Op: bytecode.GetGlobal, A: 2, Bx: 1},
			{Op: bytecode.Move, A: 3, B: 1},
			{Op: bytecode.Call, A: 2, B: 2, C: 1},
			{Op: bytecode.Return, A: 0, B: 1},
		},
		UpvalNames: []string{"n"},
	}
	makeCounter := &bytecode.ProtoBuilder{
		Name:     "makeCounter",
		MaxStack: 2,
		Constants: []bytecode.Constant{
			{Tag: bytecode.TagNumber, Number: 0},
		},
		Children: []*bytecode.ProtoBuilder{counter},
		Code: []bytecode.Instruction{
			{Op: bytecode.LoadK, A: 0, Bx: 0}, // local n = 0, register 0
			{Op: bytecode.Closure, A: 1, Bx: 0},
			{Op: bytecode.Move, A: 0, B: 0}, // bind upvalue 0 from register 0
			{Op: bytecode.Return, A: 1, B: 2},
		},
	}
	main := &bytecode.ProtoBuilder{
		Name:     "main",
		MaxStack: 2,
		Constants: []bytecode.Constant{},
		Children: []*bytecode.ProtoBuilder{makeCounter},
		Code: []bytecode.Instruction{
			{Op: bytecode.Closure, A: 0, Bx: 0},
			{Op: bytecode.Call, A: 0, B: 1, C: 2}, // c = makeCounter()
			{Op: bytecode.Move, A: 1, B: 0},
			{Op: bytecode.Call, A: 1, B: 1, C: 1},
			{Op: bytecode.Move, A: 1, B: 0},
			{Op: bytecode.Call, A: 1, B: 1, C: 1},
			{Op: bytecode.Move, A: 1, B: 0},
			{Op: bytecode.Call, A: 1, B: 1, C: 1},
			{Op: bytecode.Return, A: 0, B: 1},
		},
	}
	out, err := runProgram(t, decodeBuilt(t, main))
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestDivideByZeroFails(t *testing.T) {
	main := &bytecode.ProtoBuilder{
		Name:     "main",
		MaxStack: 3,
		Constants: []bytecode.Constant{
			{Tag: bytecode.TagNumber, Number: 1},
			{Tag: bytecode.TagNumber, Number: 0},
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.LoadK, A: 0, Bx: 0},
			{Op: bytecode.LoadK, A: 1, Bx: 1},
			{Op: bytecode.Div, A: 2, B: 0, C: 1},
			{Op: bytecode.Return, A: 0, B: 1},
		},
	}
	_, err := runProgram(t, decodeBuilt(t, main))
	assert.ErrorIs(t, err, machine.ErrDivideByZero)
}

func TestGlobalRoundTrip(t *testing.T) {
	main := &bytecode.ProtoBuilder{
		Name:     "main",
		MaxStack: 2,
		Constants: []bytecode.Constant{
			{Tag: bytecode.TagString, String: "x"},
			{Tag: bytecode.TagNumber, Number: 7},
			{Tag: bytecode.TagString, String: "print"},
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.LoadK, A: 0, Bx: 1},
			{Op: bytecode.SetGlobal, A: 0, Bx: 0},
			{Op: bytecode.GetGlobal, A: 1, Bx: 0},
			{Op: bytecode.GetGlobal, A: 0, Bx: 2},
			{Op: bytecode.Call, A: 0, B: 2, C: 1}, // print(x)
			{Op: bytecode.Return, A: 0, B: 1},
		},
	}
	out, err := runProgram(t, decodeBuilt(t, main))
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestStepLimitCancelsExecution(t *testing.T) {
	// an infinite loop: jmp to self
	main := &bytecode.ProtoBuilder{
		Name:     "main",
		MaxStack: 1,
		Code: []bytecode.Instruction{
			{Op: bytecode.Jmp, SBx: -1},
		},
	}
	prog := decodeBuilt(t, main)
	it := &machine.Interpreter{MaxSteps: 1000}
	err := it.Run(context.Background(), prog)
	assert.ErrorIs(t, err, machine.ErrCancelled)
}
