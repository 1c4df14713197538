package bytecode

import "fmt"

// Opcode identifies one of the 38 instructions of the virtual machine's
// instruction set. Numbering matches the reference image format so decoded
// images are byte-compatible across implementations.
type Opcode uint8

const ( //nolint:revive
	Move Opcode = iota
	LoadK
	LoadBool
	LoadNil
	GetUpVal
	GetGlobal
	GetTable
	SetGlobal
	SetUpVal
	SetTable
	NewTable
	SelF
	Add
	Sub
	Mul
	Div
	Mod
	Pow
	Unm
	Not
	Len
	Concat
	Jmp
	Eq
	Lt
	Le
	Test
	TestSet
	Call
	TailCall
	Return
	ForLoop
	ForPrep
	TForLoop
	SetList
	Close
	Closure
	VarArg

	opcodeMax = VarArg
)

// family describes which of the three operand encodings an opcode uses.
type family uint8

const (
	familyABC family = iota
	familyABx
	familyAsBx
)

var opcodeNames = [...]string{
	Move:     "move",
	LoadK:    "loadk",
	LoadBool: "loadbool",
	LoadNil:  "loadnil",
	GetUpVal: "getupval",
	GetGlobal: "getglobal",
	GetTable: "gettable",
	SetGlobal: "setglobal",
	SetUpVal: "setupval",
	SetTable: "settable",
	NewTable: "newtable",
	SelF:     "self",
	Add:      "add",
	Sub:      "sub",
	Mul:      "mul",
	Div:      "div",
	Mod:      "mod",
	Pow:      "pow",
	Unm:      "unm",
	Not:      "not",
	Len:      "len",
	Concat:   "concat",
	Jmp:      "jmp",
	Eq:       "eq",
	Lt:       "lt",
	Le:       "le",
	Test:     "test",
	TestSet:  "testset",
	Call:     "call",
	TailCall: "tailcall",
	Return:   "return",
	ForLoop:  "forloop",
	ForPrep:  "forprep",
	TForLoop: "tforloop",
	SetList:  "setlist",
	Close:    "close",
	Closure:  "closure",
	VarArg:   "vararg",
}

// opcodeFamilies maps each opcode to the operand encoding used to decode its
// instruction word. Unlisted opcodes all use ABC, since that is how the
// reference image format encodes them.
var opcodeFamilies = [opcodeMax + 1]family{
	LoadK:     familyABx,
	GetGlobal: familyABx,
	SetGlobal: familyABx,
	Closure:   familyABx,
	Jmp:       familyAsBx,
	ForLoop:   familyAsBx,
	ForPrep:   familyAsBx,
}

func (op Opcode) String() string {
	if op <= opcodeMax {
		if s := opcodeNames[op]; s != "" {
			return s
		}
	}
	return fmt.Sprintf("illegal opcode (%d)", op)
}

func (op Opcode) valid() bool { return op <= opcodeMax }

func (op Opcode) family() family { return opcodeFamilies[op] }

// unimplemented reports whether op is decoded but has no execution
// semantics in the interpreter (§4.2: table ops, Concat, SelF, NewTable,
// VarArg, SetList, Close, TForLoop).
func (op Opcode) unimplemented() bool {
	switch op {
	case GetTable, SetTable, NewTable, SelF, Concat, TForLoop, SetList, Close, VarArg:
		return true
	default:
		return false
	}
}
