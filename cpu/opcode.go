package cpu

import (
	"fmt"
)

// CodeClass is the instruction family selected by the top nibble.
type CodeClass int

//go:generate go tool stringer -linecomment -type=CodeClass
const (
	OP_SYS         = CodeClass(0x0) // sys
	OP_JUMP        = CodeClass(0x1) // jump
	OP_CALL        = CodeClass(0x2) // call
	OP_SKIP_EQ_IMM = CodeClass(0x3) // skipeq
	OP_SKIP_NE_IMM = CodeClass(0x4) // skipne
	OP_SKIP_EQ_REG = CodeClass(0x5) // skipreq
	OP_SET_IMM     = CodeClass(0x6) // set
	OP_ADD_IMM     = CodeClass(0x7) // add
	OP_ALU         = CodeClass(0x8) // alu
	OP_SKIP_NE_REG = CodeClass(0x9) // skiprne
	OP_INDEX       = CodeClass(0xA) // index
	OP_JUMP_V0     = CodeClass(0xB) // jumpv
	OP_RAND        = CodeClass(0xC) // rand
	OP_DRAW        = CodeClass(0xD) // draw
	OP_KEY         = CodeClass(0xE) // key
	OP_MISC        = CodeClass(0xF) // misc
)

// CodeAluOp is the minor opcode of the register-register ALU family.
type CodeAluOp int

//go:generate go tool stringer -linecomment -type=CodeAluOp
const (
	ALU_OP_SET  = CodeAluOp(0x0) // set
	ALU_OP_OR   = CodeAluOp(0x1) // or
	ALU_OP_AND  = CodeAluOp(0x2) // and
	ALU_OP_XOR  = CodeAluOp(0x3) // xor
	ALU_OP_ADD  = CodeAluOp(0x4) // add
	ALU_OP_SUB  = CodeAluOp(0x5) // sub
	ALU_OP_SHR  = CodeAluOp(0x6) // shr
	ALU_OP_SUBR = CodeAluOp(0x7) // subr
	ALU_OP_SHL  = CodeAluOp(0xE) // shl
)

// Minor opcodes of the 0xF misc family, in the low byte.
const (
	MISC_OP_INDEX_ADD = uint8(0x1E)
	MISC_OP_BCD       = uint8(0x33)
	MISC_OP_SAVE      = uint8(0x55)
	MISC_OP_RESTORE   = uint8(0x65)
)

// Fixed instruction words of the 0x0 system family.
const (
	CODE_HALT   = Code(0x0000)
	CODE_RETURN = Code(0x00EE)
)

// Code is a single 16-bit instruction word.
type Code uint16

// Opcode represents a line of assembled code with its source location and generated instructions.
type Opcode struct {
	LineNo    int
	Addr      int
	Words     []string
	Codes     []Code
	LinkLabel string
}

func makeAddr(class CodeClass, addr uint16) Code {
	return Code(uint16(class)<<12 | addr&0xFFF)
}

func makeImm(class CodeClass, x int, kk uint8) Code {
	return Code(uint16(class)<<12 | uint16(x&0xF)<<8 | uint16(kk))
}

func makeReg(class CodeClass, x, y int, minor uint16) Code {
	return Code(uint16(class)<<12 | uint16(x&0xF)<<8 | uint16(y&0xF)<<4 | minor&0xF)
}

// MakeCodeJump creates an unconditional jump instruction.
func MakeCodeJump(addr uint16) Code { return makeAddr(OP_JUMP, addr) }

// MakeCodeJumpV0 creates a jump-plus-v0 instruction.
func MakeCodeJumpV0(addr uint16) Code { return makeAddr(OP_JUMP_V0, addr) }

// MakeCodeCall creates a subroutine call instruction.
func MakeCodeCall(addr uint16) Code { return makeAddr(OP_CALL, addr) }

// MakeCodeIndex creates an index register load instruction.
func MakeCodeIndex(addr uint16) Code { return makeAddr(OP_INDEX, addr) }

// MakeCodeSkipEqImm creates a skip-if-equal-immediate instruction.
func MakeCodeSkipEqImm(x int, kk uint8) Code { return makeImm(OP_SKIP_EQ_IMM, x, kk) }

// MakeCodeSkipNeImm creates a skip-if-not-equal-immediate instruction.
func MakeCodeSkipNeImm(x int, kk uint8) Code { return makeImm(OP_SKIP_NE_IMM, x, kk) }

// MakeCodeSkipEqReg creates a skip-if-registers-equal instruction.
func MakeCodeSkipEqReg(x, y int) Code { return makeReg(OP_SKIP_EQ_REG, x, y, 0) }

// MakeCodeSkipNeReg creates a skip-if-registers-not-equal instruction.
func MakeCodeSkipNeReg(x, y int) Code { return makeReg(OP_SKIP_NE_REG, x, y, 0) }

// MakeCodeSetImm creates a load-immediate instruction.
func MakeCodeSetImm(x int, kk uint8) Code { return makeImm(OP_SET_IMM, x, kk) }

// MakeCodeAddImm creates an add-immediate instruction. The immediate add
// never writes the flag register.
func MakeCodeAddImm(x int, kk uint8) Code { return makeImm(OP_ADD_IMM, x, kk) }

// MakeCodeAlu creates a register-register ALU instruction.
func MakeCodeAlu(op CodeAluOp, x, y int) Code { return makeReg(OP_ALU, x, y, uint16(op)) }

// MakeCodeRand creates a random-and-mask instruction.
func MakeCodeRand(x int, kk uint8) Code { return makeImm(OP_RAND, x, kk) }

// MakeCodeMisc creates an instruction of the 0xF misc family.
func MakeCodeMisc(op uint8, x int) Code { return makeImm(OP_MISC, x, op) }

// Class returns the instruction family from the top nibble.
func (code Code) Class() CodeClass {
	return CodeClass(code >> 12)
}

// X returns the first register operand.
func (code Code) X() int {
	return int(code >> 8 & 0xF)
}

// Y returns the second register operand.
func (code Code) Y() int {
	return int(code >> 4 & 0xF)
}

// AluOp returns the minor opcode of the register ALU family.
func (code Code) AluOp() CodeAluOp {
	return CodeAluOp(code & 0xF)
}

// Addr returns the 12-bit address operand.
func (code Code) Addr() uint16 {
	return uint16(code) & 0xFFF
}

// Byte returns the 8-bit immediate operand.
func (code Code) Byte() uint8 {
	return uint8(code)
}

// String returns the assembly language representation of this instruction.
// Words outside the opcode table render as raw .word directives.
func (code Code) String() (out string) {
	raw := fmt.Sprintf(".word 0x%04x", uint16(code))

	switch code.Class() {
	case OP_SYS:
		switch code {
		case CODE_HALT:
			out = "halt"
		case CODE_RETURN:
			out = "return"
		default:
			out = raw
		}
	case OP_JUMP, OP_CALL:
		out = fmt.Sprintf("%v 0x%03x", code.Class(), code.Addr())
	case OP_SKIP_EQ_IMM:
		out = fmt.Sprintf("skip eq v%x 0x%02x", code.X(), code.Byte())
	case OP_SKIP_NE_IMM:
		out = fmt.Sprintf("skip ne v%x 0x%02x", code.X(), code.Byte())
	case OP_SKIP_EQ_REG, OP_SKIP_NE_REG:
		if code&0xF != 0 {
			out = raw
			break
		}
		op := "eq"
		if code.Class() == OP_SKIP_NE_REG {
			op = "ne"
		}
		out = fmt.Sprintf("skip %v v%x v%x", op, code.X(), code.Y())
	case OP_SET_IMM, OP_ADD_IMM:
		out = fmt.Sprintf("%v v%x 0x%02x", code.Class(), code.X(), code.Byte())
	case OP_ALU:
		switch code.AluOp() {
		case ALU_OP_SHR, ALU_OP_SHL:
			out = fmt.Sprintf("%v v%x", code.AluOp(), code.X())
		case ALU_OP_SET, ALU_OP_OR, ALU_OP_AND, ALU_OP_XOR,
			ALU_OP_ADD, ALU_OP_SUB, ALU_OP_SUBR:
			out = fmt.Sprintf("%v v%x v%x", code.AluOp(), code.X(), code.Y())
		default:
			out = raw
		}
	case OP_INDEX:
		out = fmt.Sprintf("set i 0x%03x", code.Addr())
	case OP_JUMP_V0:
		out = fmt.Sprintf("jump v0 0x%03x", code.Addr())
	case OP_RAND:
		out = fmt.Sprintf("rand v%x 0x%02x", code.X(), code.Byte())
	case OP_MISC:
		switch code.Byte() {
		case MISC_OP_INDEX_ADD:
			out = fmt.Sprintf("add i v%x", code.X())
		case MISC_OP_BCD:
			out = fmt.Sprintf("bcd v%x", code.X())
		case MISC_OP_SAVE:
			out = fmt.Sprintf("save v%x", code.X())
		case MISC_OP_RESTORE:
			out = fmt.Sprintf("restore v%x", code.X())
		default:
			out = raw
		}
	default:
		out = raw
	}

	return
}
