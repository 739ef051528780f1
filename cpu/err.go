package cpu

import (
	"errors"

	"github.com/ezrec/chip8/translate"
)

var f = translate.From

var (
	// Cpu errors
	ErrHalt           = errors.New(f("halt"))
	ErrStackOverflow  = errors.New(f("stack overflow"))
	ErrStackUnderflow = errors.New(f("stack underflow"))

	// Assembler errors
	ErrEquateSyntax       = errors.New(f(".equ syntax"))
	ErrEquateDuplicate    = errors.New(f(".equ duplicated"))
	ErrLabelDuplicate     = errors.New(f("label duplicated"))
	ErrMacroSyntax        = errors.New(f(".macro syntax"))
	ErrMacroNesting       = errors.New(f(".macro in .macro prohibited"))
	ErrMacroDuplicate     = errors.New(f(".macro duplicated"))
	ErrMacroLonely        = errors.New(f(".macro without .endm"))
	ErrMacroLonelyEndm    = errors.New(f(".endm without .macro"))
	ErrOperandMissing     = errors.New(f("operand missing"))
	ErrOperandExtra       = errors.New(f("excessive operands"))
	ErrOpcodeInvalid      = errors.New(f("opcode invalid"))
	ErrRegisterInvalid    = errors.New(f("register invalid"))
	ErrInstructionInvalid = errors.New(f("instruction invalid"))
	ErrByteRange          = errors.New(f("byte value out of range"))
	ErrAddressRange       = errors.New(f("address out of range"))
	ErrProgramTooLarge    = errors.New(f("program too large"))
)

// ErrOpcode is the unimplemented-opcode fault. It carries the raw
// instruction word that failed to dispatch.
type ErrOpcode Code

func (eo ErrOpcode) Error() string {
	return f("unimplemented opcode 0x%04X (%v)", uint16(eo), Code(eo).String())
}

func (eo ErrOpcode) Is(err error) (ok bool) {
	_, ok = err.(ErrOpcode)
	return
}

// ErrOutOfBounds is the out-of-bounds memory fault. It carries the
// offending address.
type ErrOutOfBounds uint16

func (eb ErrOutOfBounds) Error() string {
	return f("memory access out of bounds at 0x%04X", uint16(eb))
}

func (eb ErrOutOfBounds) Is(err error) (ok bool) {
	_, ok = err.(ErrOutOfBounds)
	return
}

type ErrLabelMissing string

func (el ErrLabelMissing) Error() string {
	return f("label %v missing", string(el))
}

type ErrSyntax struct {
	LineNo int
	Line   string
	Err    error
}

func (err ErrSyntax) Error() string {
	return f("line %d '%v' %v", err.LineNo, err.Line, err.Err)
}

func (err ErrSyntax) Unwrap() error {
	return err.Err
}

type ErrParseNumber string

func (err ErrParseNumber) Error() string {
	return f("'%v' is not a number", string(err))
}

type ErrParseValue string

func (err ErrParseValue) Error() string {
	return f("'%v' is not a value or register", string(err))
}

type ErrParseExpression string

func (err ErrParseExpression) Error() string {
	return f("$(%v) is not a valid expression", string(err))
}

type ErrMacro struct {
	Macro string
	Line  int
	Err   error
}

func (err ErrMacro) Error() string {
	return f("macro %v line %v %v", err.Macro, err.Line, err.Err.Error())
}

func (err ErrMacro) Unwrap() error {
	return err.Err
}
