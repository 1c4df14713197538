package bytecode

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Validate checks the instruction-field invariants promised by the decoder
// contract (§8): register operands stay within the owning proto's
// max_stack, constant-pool operands stay within its constant pool, and sBx
// jumps land on a valid program-counter position. It is run automatically
// by Decode; exported so callers decoding a Program by other means (e.g.
// test fixtures built directly as a *Program) can still check it.
func Validate(p *Program) error {
	return validateProto(p.Main)
}

func validateProto(p *FunctionProto) error {
	maxStack := uint32(p.MaxStack)
	numConst := uint32(len(p.Constants))
	numCode := len(p.Code)

	for pc, instr := range p.Code {
		if err := validateRegisterOperand(p, instr.A, maxStack); err != nil {
			return fmt.Errorf("proto %q pc %d: A %w", p.Name, pc, err)
		}

		switch instr.Op {
		case LoadK:
			if instr.Bx >= numConst {
				return fmt.Errorf("proto %q pc %d: LoadK constant index %d out of range", p.Name, pc, instr.Bx)
			}
		case GetGlobal, SetGlobal:
			if instr.Bx >= numConst {
				return fmt.Errorf("proto %q pc %d: global name constant index %d out of range", p.Name, pc, instr.Bx)
			}
		case Closure:
			if int(instr.Bx) >= len(p.Protos) {
				return fmt.Errorf("proto %q pc %d: closure proto index %d out of range", p.Name, pc, instr.Bx)
			}
		case Jmp:
			target := pc + 1 + int(instr.SBx)
			if !validJumpTarget(numCode, target) {
				return fmt.Errorf("proto %q pc %d: jump target %d out of range", p.Name, pc, target)
			}
		case ForLoop, ForPrep:
			target := pc + 1 + int(instr.SBx)
			if !validJumpTarget(numCode, target) {
				return fmt.Errorf("proto %q pc %d: jump target %d out of range", p.Name, pc, target)
			}
			// A, A+1, A+2 hold the loop's index/limit/step; A+3 holds the
			// user-visible loop variable. Checking A+3 bounds the whole block.
			if err := validateRegisterOperand(p, instr.A+3, maxStack); err != nil {
				return fmt.Errorf("proto %q pc %d: loop register block %w", p.Name, pc, err)
			}
		case Move, Unm, Not, Len, TestSet:
			if err := validateRegisterOperand(p, instr.B, maxStack); err != nil {
				return fmt.Errorf("proto %q pc %d: B %w", p.Name, pc, err)
			}
		case LoadNil:
			if err := validateRegisterOperand(p, instr.B, maxStack); err != nil {
				return fmt.Errorf("proto %q pc %d: LoadNil B %w", p.Name, pc, err)
			}
		default:
			if rkOperand(instr.Op) {
				if err := validateRK(p, instr.B, maxStack, numConst); err != nil {
					return fmt.Errorf("proto %q pc %d: B %w", p.Name, pc, err)
				}
				if err := validateRK(p, instr.C, maxStack, numConst); err != nil {
					return fmt.Errorf("proto %q pc %d: C %w", p.Name, pc, err)
				}
			}
		}
	}

	for _, child := range p.Protos {
		if err := validateProto(child); err != nil {
			return err
		}
	}
	return nil
}

// rkOperand reports whether an opcode's B and C operands are RK operands
// (register-or-constant) rather than plain registers.
func rkOperand(op Opcode) bool {
	switch op {
	case Add, Sub, Mul, Div, Mod, Pow, Eq, Lt, Le:
		return true
	default:
		return false
	}
}

func validateRegisterOperand(p *FunctionProto, reg, maxStack uint32) error {
	if reg >= maxStack {
		return fmt.Errorf("register %d >= max_stack %d (proto %q)", reg, maxStack, p.Name)
	}
	return nil
}

func validateRK(p *FunctionProto, rk, maxStack, numConst uint32) error {
	if rk >= 256 {
		idx := rk - 256
		if idx >= numConst {
			return fmt.Errorf("constant index %d out of range", idx)
		}
		return nil
	}
	return validateRegisterOperand(p, rk, maxStack)
}

func validJumpTarget(numCode, target int) bool {
	return target >= 0 && target <= numCode
}

// protoNames returns the dense, pre-order list of prototype names under p,
// p's own name first. Nothing in the module calls it.
func protoNames(p *FunctionProto) []string {
	names := []string{p.Name}
	for _, c := range p.Protos {
		names = append(names, protoNames(c)...)
	}
	return slices.Clip(names)
}
