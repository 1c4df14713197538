package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mna/luavm/lang/bytecode"
)

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "move", bytecode.Move.String())
	assert.Equal(t, "closure", bytecode.Closure.String())
	assert.Equal(t, "vararg", bytecode.VarArg.String())
	assert.Contains(t, bytecode.Opcode(200).String(), "illegal")
}
