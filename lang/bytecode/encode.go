package bytecode

import "math"

// This file implements a minimal image encoder. Its purpose mirrors the
// teacher's pseudo-assembly format: producing exact, hand-built program
// images to exercise the decoder and the machine without needing a
// front-end compiler. Unlike a textual assembler, test callers build the
// image directly as a ProtoBuilder tree, which is simpler given the decoder
// itself already needs a full understanding of the wire format.

// DefaultHeader is the header this package's encoder writes: 4-byte
// instruction words, 4-byte size_t/int, 8-byte IEEE-754 doubles, declared
// big-endian.
func DefaultHeader(version byte) Header {
	return Header{
		Version:           version,
		Format:            0,
		BigEndian:         true,
		SizeofInt:         4,
		SizeofSizeT:       4,
		SizeofInstruction: 4,
		SizeofNumber:      8,
		IntegralFlag:      0,
	}
}

// ProtoBuilder constructs a FunctionProto image for encoding by Encode.
type ProtoBuilder struct {
	Name        string
	FirstLine   int64
	LastLine    int64
	NumUpvalues uint8
	NumParams   uint8
	IsVararg    uint8
	MaxStack    uint8
	Code        []Instruction
	Constants   []Constant
	Children    []*ProtoBuilder
	LineInfo    []uint64
	Locals      []LocalVar
	UpvalNames  []string
}

// Encode serializes a ProtoBuilder tree into a binary program image using
// hdr for its header. It is the inverse of Decode, used by tests to build
// fixture images without a front-end compiler.
func Encode(hdr Header, main *ProtoBuilder) []byte {
	e := &encoder{hdr: hdr}
	e.putUint(Signature, 4, true)
	e.putHeader()
	e.putProto(main)
	return e.buf
}

type encoder struct {
	buf []byte
	hdr Header
}

func (e *encoder) putUint(v uint64, size int, bigEnd bool) {
	raw := make([]byte, size)
	if bigEnd {
		for i := size - 1; i >= 0; i-- {
			raw[i] = byte(v)
			v >>= 8
		}
	} else {
		for i := 0; i < size; i++ {
			raw[i] = byte(v)
			v >>= 8
		}
	}
	e.buf = append(e.buf, raw...)
}

func (e *encoder) putByte(b byte) { e.buf = append(e.buf, b) }

func (e *encoder) putInt(v int64) { e.putUint(uint64(v), int(e.hdr.SizeofInt), e.hdr.BigEndian) }

func (e *encoder) putSizeT(v uint64) { e.putUint(v, int(e.hdr.SizeofSizeT), e.hdr.BigEndian) }

func (e *encoder) putStr(s string) {
	if s == "" {
		e.putSizeT(0)
		return
	}
	e.putSizeT(uint64(len(s) + 1))
	e.buf = append(e.buf, []byte(s)...)
	e.putByte(0)
}

func (e *encoder) putHeader() {
	e.putByte(e.hdr.Version)
	e.putByte(e.hdr.Format)
	if e.hdr.BigEndian {
		e.putByte(0)
	} else {
		e.putByte(1)
	}
	e.putByte(e.hdr.SizeofInt)
	e.putByte(e.hdr.SizeofSizeT)
	e.putByte(e.hdr.SizeofInstruction)
	e.putByte(e.hdr.SizeofNumber)
	e.putByte(e.hdr.IntegralFlag)
}

func (e *encoder) putInstruction(in Instruction) {
	var word uint64
	switch in.Op.family() {
	case familyABx:
		word = uint64(in.Op) | uint64(in.A)<<6 | uint64(in.Bx)<<14
	case familyAsBx:
		word = uint64(in.Op) | uint64(in.A)<<6 | uint64(uint32(in.SBx+sBxBias))<<14
	default:
		word = uint64(in.Op) | uint64(in.A)<<6 | uint64(in.C)<<14 | uint64(in.B)<<23
	}
	e.putUint(word, int(e.hdr.SizeofInstruction), e.hdr.BigEndian)
}

func (e *encoder) putConstant(c Constant) {
	e.putByte(byte(c.Tag))
	switch c.Tag {
	case TagNil:
	case TagBoolean:
		if c.Boolean {
			e.putByte(1)
		} else {
			e.putByte(0)
		}
	case TagNumber:
		bits := math.Float64bits(c.Number)
		e.putUint(bits, int(e.hdr.SizeofNumber), e.hdr.BigEndian)
	case TagString:
		e.putStr(c.String)
	}
}

func (e *encoder) putProto(p *ProtoBuilder) {
	e.putStr(p.Name)
	e.putInt(p.FirstLine)
	e.putInt(p.LastLine)
	e.putByte(p.NumUpvalues)
	e.putByte(p.NumParams)
	e.putByte(p.IsVararg)
	e.putByte(p.MaxStack)

	e.putInt(int64(len(p.Code)))
	for _, in := range p.Code {
		e.putInstruction(in)
	}

	e.putInt(int64(len(p.Constants)))
	for _, c := range p.Constants {
		e.putConstant(c)
	}

	e.putInt(int64(len(p.Children)))
	for _, c := range p.Children {
		e.putProto(c)
	}

	e.putInt(int64(len(p.LineInfo)))
	for _, l := range p.LineInfo {
		e.putInt(int64(l))
	}

	e.putInt(int64(len(p.Locals)))
	for _, lv := range p.Locals {
		e.putStr(lv.Name)
		e.putInt(int64(lv.FirstPC))
		e.putInt(int64(lv.LastPC))
	}

	e.putInt(int64(len(p.UpvalNames)))
	for _, n := range p.UpvalNames {
		e.putStr(n)
	}
}
