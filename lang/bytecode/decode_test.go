package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/luavm/lang/bytecode"
)

func constReturnImage() []byte {
	hdr := bytecode.DefaultHeader(0x51)
	main := &bytecode.ProtoBuilder{
		Name:      "main",
		MaxStack:  1,
		Constants: []bytecode.Constant{{Tag: bytecode.TagNumber, Number: 42}},
		Code: []bytecode.Instruction{
			{Op: bytecode.LoadK, A: 0, Bx: 0},
			{Op: bytecode.Return, A: 0, B: 2},
		},
	}
	return bytecode.Encode(hdr, main)
}

func TestDecodeRoundTrip(t *testing.T) {
	data := constReturnImage()

	prog, err := bytecode.Decode(data, 0x51)
	require.NoError(t, err)

	assert.Equal(t, "main", prog.Main.Name)
	assert.Equal(t, uint8(1), prog.Main.MaxStack)
	require.Len(t, prog.Main.Code, 2)
	assert.Equal(t, bytecode.LoadK, prog.Main.Code[0].Op)
	assert.Equal(t, bytecode.Return, prog.Main.Code[1].Op)
	require.Len(t, prog.Main.Constants, 1)
	assert.Equal(t, float64(42), prog.Main.Constants[0].Number)
}

func TestDecodeSignatureMismatch(t *testing.T) {
	data := constReturnImage()
	data[0] ^= 0xff

	_, err := bytecode.Decode(data, 0x51)
	assert.ErrorIs(t, err, bytecode.ErrSignatureMismatch)
}

func TestDecodeVersionMismatch(t *testing.T) {
	data := constReturnImage()

	_, err := bytecode.Decode(data, 0x53)
	assert.ErrorIs(t, err, bytecode.ErrVersionMismatch)
}

func TestDecodeTruncatedInput(t *testing.T) {
	data := constReturnImage()
	data = data[:len(data)-1]

	_, err := bytecode.Decode(data, 0x51)
	assert.ErrorIs(t, err, bytecode.ErrTruncatedInput)
}

func TestDecodeLittleEndianImage(t *testing.T) {
	hdr := bytecode.DefaultHeader(0x51)
	hdr.BigEndian = false
	main := &bytecode.ProtoBuilder{
		Name:     "main",
		MaxStack: 1,
		Code:     []bytecode.Instruction{{Op: bytecode.Return, A: 0, B: 1}},
	}
	data := bytecode.Encode(hdr, main)

	prog, err := bytecode.Decode(data, 0x51)
	require.NoError(t, err)
	assert.False(t, prog.Header.BigEndian)
	assert.Equal(t, bytecode.Return, prog.Main.Code[0].Op)
}

func TestDecodeNestedProtos(t *testing.T) {
	hdr := bytecode.DefaultHeader(0x51)
	inner := &bytecode.ProtoBuilder{
		Name:     "inner",
		MaxStack: 1,
		Code:     []bytecode.Instruction{{Op: bytecode.Return, A: 0, B: 1}},
	}
	main := &bytecode.ProtoBuilder{
		Name:     "main",
		MaxStack: 1,
		Children: []*bytecode.ProtoBuilder{inner},
		Code: []bytecode.Instruction{
			{Op: bytecode.Closure, A: 0, Bx: 0},
			{Op: bytecode.Return, A: 0, B: 2},
		},
	}
	data := bytecode.Encode(hdr, main)

	prog, err := bytecode.Decode(data, 0x51)
	require.NoError(t, err)
	require.Len(t, prog.Main.Protos, 1)
	assert.Equal(t, "inner", prog.Main.Protos[0].Name)
	assert.Equal(t, 0, prog.Main.ID)
	assert.Equal(t, 1, prog.Main.Protos[0].ID)
}
