package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mna/luavm/lang/bytecode"
)

func TestValidateRegisterOutOfRange(t *testing.T) {
	hdr := bytecode.DefaultHeader(0x51)
	main := &bytecode.ProtoBuilder{
		Name:     "main",
		MaxStack: 1,
		Code: []bytecode.Instruction{
			{Op: bytecode.Move, A: 5, B: 0}, // A >= MaxStack
			{Op: bytecode.Return, A: 0, B: 1},
		},
	}
	data := bytecode.Encode(hdr, main)

	_, err := bytecode.Decode(data, 0x51)
	assert.Error(t, err)
}

func TestValidateJumpOutOfRange(t *testing.T) {
	hdr := bytecode.DefaultHeader(0x51)
	main := &bytecode.ProtoBuilder{
		Name:     "main",
		MaxStack: 1,
		Code: []bytecode.Instruction{
			{Op: bytecode.Jmp, SBx: 100}, // lands far past the end of Code
		},
	}
	data := bytecode.Encode(hdr, main)

	_, err := bytecode.Decode(data, 0x51)
	assert.Error(t, err)
}

func TestValidateConstantOutOfRange(t *testing.T) {
	hdr := bytecode.DefaultHeader(0x51)
	main := &bytecode.ProtoBuilder{
		Name:     "main",
		MaxStack: 1,
		Code: []bytecode.Instruction{
			{Op: bytecode.LoadK, A: 0, Bx: 3}, // no constants at all
			{Op: bytecode.Return, A: 0, B: 1},
		},
	}
	data := bytecode.Encode(hdr, main)

	_, err := bytecode.Decode(data, 0x51)
	assert.Error(t, err)
}
