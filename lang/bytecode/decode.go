package bytecode

import "fmt"

// Signature is the 4-byte big-endian magic number that must open every
// program image.
const Signature = 0x1B4C7561

// Decode parses a binary program image into a Program. expectedVersion is
// the header version byte (major<<4|minor, e.g. 0x51 for "5.1") the caller
// requires; a mismatching image version is a fatal ErrVersionMismatch.
func Decode(data []byte, expectedVersion byte) (*Program, error) {
	c := newCursor(data)

	sig, err := c.uint(4)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignatureMismatch, err)
	}
	if sig != Signature {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrSignatureMismatch, sig)
	}

	hdr, err := decodeHeader(c)
	if err != nil {
		return nil, err
	}
	c.bigEnd = hdr.BigEndian

	if hdr.Version != expectedVersion {
		return nil, errVersionMismatch(hdr.Version, expectedVersion)
	}

	d := &decoder{c: c, hdr: hdr}
	main, err := d.proto()
	if err != nil {
		return nil, err
	}

	d.assignIDs(main, 0)
	for _, p := range d.allProtos(main) {
		if err := d.resolveClosureBindings(p); err != nil {
			return nil, err
		}
	}

	prog := &Program{Main: main, Header: hdr}
	if err := Validate(prog); err != nil {
		return nil, err
	}
	return prog, nil
}

func decodeHeader(c *cursor) (Header, error) {
	raw, err := c.bytes(8)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrMetadataMissing, err)
	}
	return Header{
		Version:           raw[0],
		Format:            raw[1],
		BigEndian:         raw[2] == 0,
		SizeofInt:         raw[3],
		SizeofSizeT:       raw[4],
		SizeofInstruction: raw[5],
		SizeofNumber:      raw[6],
		IntegralFlag:      raw[7],
	}, nil
}

// decoder holds the shared, read-only state (cursor position excepted)
// needed while recursively decoding a FunctionProto tree.
type decoder struct {
	c   *cursor
	hdr Header
}

func (d *decoder) int_() (int64, error) {
	v, err := d.c.uint(int(d.hdr.SizeofInt))
	return int64(v), err
}

func (d *decoder) sizeT() (uint64, error) {
	return d.c.uint(int(d.hdr.SizeofSizeT))
}

func (d *decoder) str() (string, error) {
	return d.c.str(int(d.hdr.SizeofSizeT))
}

func (d *decoder) proto() (*FunctionProto, error) {
	name, err := d.str()
	if err != nil {
		return nil, err
	}
	firstLine, err := d.int_()
	if err != nil {
		return nil, err
	}
	lastLine, err := d.int_()
	if err != nil {
		return nil, err
	}
	numUpvalues, err := d.c.byte()
	if err != nil {
		return nil, err
	}
	numParams, err := d.c.byte()
	if err != nil {
		return nil, err
	}
	isVararg, err := d.c.byte()
	if err != nil {
		return nil, err
	}
	maxStack, err := d.c.byte()
	if err != nil {
		return nil, err
	}

	code, err := d.codeList()
	if err != nil {
		return nil, err
	}
	constants, err := d.constantList()
	if err != nil {
		return nil, err
	}
	children, err := d.protoList()
	if err != nil {
		return nil, err
	}
	lineInfo, err := d.uintList()
	if err != nil {
		return nil, err
	}
	locals, err := d.localList()
	if err != nil {
		return nil, err
	}
	upvalNames, err := d.stringList()
	if err != nil {
		return nil, err
	}

	return &FunctionProto{
		Name:         name,
		FirstLine:    firstLine,
		LastLine:     lastLine,
		NumUpvalues:  numUpvalues,
		NumParams:    numParams,
		IsVararg:     isVararg,
		MaxStack:     maxStack,
		Code:         code,
		Constants:    constants,
		Protos:       children,
		LineInfo:     lineInfo,
		Locals:       locals,
		UpvalueNames: upvalNames,
	}, nil
}

func (d *decoder) count() (int, error) {
	n, err := d.int_()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (d *decoder) codeList() ([]Instruction, error) {
	n, err := d.count()
	if err != nil {
		return nil, err
	}
	out := make([]Instruction, n)
	for i := range out {
		word, err := d.c.uint(int(d.hdr.SizeofInstruction))
		if err != nil {
			return nil, err
		}
		instr, err := decodeInstruction(word)
		if err != nil {
			return nil, err
		}
		out[i] = instr
	}
	return out, nil
}

func (d *decoder) constantList() ([]Constant, error) {
	n, err := d.count()
	if err != nil {
		return nil, err
	}
	out := make([]Constant, n)
	for i := range out {
		c, err := d.constant()
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func (d *decoder) constant() (Constant, error) {
	tagByte, err := d.c.byte()
	if err != nil {
		return Constant{}, err
	}
	tag := ConstantTag(tagByte)
	switch tag {
	case TagNil:
		return Constant{Tag: tag}, nil
	case TagBoolean:
		b, err := d.c.byte()
		if err != nil {
			return Constant{}, err
		}
		return Constant{Tag: tag, Boolean: b != 0}, nil
	case TagNumber:
		n, err := d.c.float(int(d.hdr.SizeofNumber))
		if err != nil {
			return Constant{}, err
		}
		return Constant{Tag: tag, Number: n}, nil
	case TagString:
		s, err := d.str()
		if err != nil {
			return Constant{}, err
		}
		return Constant{Tag: tag, String: s}, nil
	default:
		return Constant{}, errUnknownConstantTag(tagByte)
	}
}

func (d *decoder) protoList() ([]*FunctionProto, error) {
	n, err := d.count()
	if err != nil {
		return nil, err
	}
	out := make([]*FunctionProto, n)
	for i := range out {
		p, err := d.proto()
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func (d *decoder) uintList() ([]uint64, error) {
	n, err := d.count()
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		v, err := d.int_()
		if err != nil {
			return nil, err
		}
		out[i] = uint64(v)
	}
	return out, nil
}

func (d *decoder) localList() ([]LocalVar, error) {
	n, err := d.count()
	if err != nil {
		return nil, err
	}
	out := make([]LocalVar, n)
	for i := range out {
		name, err := d.str()
		if err != nil {
			return nil, err
		}
		first, err := d.int_()
		if err != nil {
			return nil, err
		}
		last, err := d.int_()
		if err != nil {
			return nil, err
		}
		out[i] = LocalVar{Name: name, FirstPC: uint64(first), LastPC: uint64(last)}
	}
	return out, nil
}

func (d *decoder) stringList() ([]string, error) {
	n, err := d.count()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		s, err := d.str()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// assignIDs assigns dense, pre-order IDs to proto and its descendants,
// starting at next. It returns the next unused ID.
func (d *decoder) assignIDs(proto *FunctionProto, next int) int {
	proto.ID = next
	next++
	for _, child := range proto.Protos {
		next = d.assignIDs(child, next)
	}
	return next
}

// allProtos returns proto and every descendant, pre-order.
func (d *decoder) allProtos(proto *FunctionProto) []*FunctionProto {
	out := []*FunctionProto{proto}
	for _, child := range proto.Protos {
		out = append(out, d.allProtos(child)...)
	}
	return out
}

// resolveClosureBindings scans proto's code for Closure instructions and
// pre-processes the upvalue-binding pseudo-instructions that structurally
// follow each one (§9: resolved at decode time, not during execution).
func (d *decoder) resolveClosureBindings(proto *FunctionProto) error {
	proto.ClosureBindings = make(map[uint32][]ClosureBinding)
	proto.bindingsValid = make(map[uint32]bool)

	for pc := 0; pc < len(proto.Code); pc++ {
		instr := proto.Code[pc]
		if instr.Op != Closure {
			continue
		}
		if int(instr.Bx) >= len(proto.Protos) {
			return fmt.Errorf("bytecode: closure at pc %d references out-of-range proto %d", pc, instr.Bx)
		}
		child := proto.Protos[instr.Bx]

		bindings := make([]ClosureBinding, 0, child.NumUpvalues)
		valid := true
		for i := 0; i < int(child.NumUpvalues); i++ {
			bindPC := pc + 1 + i
			if bindPC >= len(proto.Code) {
				valid = false
				break
			}
			b := proto.Code[bindPC]
			switch b.Op {
			case Move:
				bindings = append(bindings, ClosureBinding{FromUpvalue: false, Index: b.B})
			case GetUpVal:
				bindings = append(bindings, ClosureBinding{FromUpvalue: true, Index: b.B})
			default:
				valid = false
			}
			if !valid {
				break
			}
		}

		proto.bindingsValid[uint32(pc)] = valid
		if valid {
			proto.ClosureBindings[uint32(pc)] = bindings
		}
	}
	return nil
}

// BindingsValid reports whether the upvalue-binding pseudo-instructions
// following the Closure instruction at pc were structurally well-formed.
func (p *FunctionProto) BindingsValid(pc uint32) bool {
	return p.bindingsValid[pc]
}
