package bytecode

// sBxBias is the bias subtracted from the unsigned Bx field to recover a
// signed jump/loop offset.
const sBxBias = 131071

// Instruction is a decoded instruction word: an opcode tag plus whichever of
// its operand fields apply to that opcode's family (ABC, ABx or AsBx).
// Instructions are immutable once decoded.
type Instruction struct {
	Op Opcode
	A  uint32
	B  uint32
	C  uint32
	Bx uint32
	// SBx is only meaningful when Op.family() == familyAsBx; it is Bx
	// reinterpreted as a signed, bias-encoded offset.
	SBx int32
}

// decodeInstruction extracts the opcode and operand fields from a raw
// instruction word per the fixed bit layout: opcode=bits[0:6), A=bits[6:14),
// C=bits[14:23), B=bits[23:32), Bx=bits[14:32), sBx=Bx-131071.
func decodeInstruction(word uint64) (Instruction, error) {
	opcode := Opcode(word & 0x3f)
	if !opcode.valid() {
		return Instruction{}, errUnknownOpcode(byte(opcode))
	}

	a := uint32((word >> 6) & 0xff)
	c := uint32((word >> 14) & 0x1ff)
	b := uint32((word >> 23) & 0x1ff)
	bx := uint32((word >> 14) & 0x3ffff)

	return Instruction{
		Op:  opcode,
		A:   a,
		B:   b,
		C:   c,
		Bx:  bx,
		SBx: int32(bx) - sBxBias,
	}, nil
}
