// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Macro represents a macro definition in the assembly language.
type Macro struct {
	LineNo int      // Line number of the macro definition.
	Args   []string // Arguments for the macro.
	Lines  []string // Lines of macro text to expand.
}

// Predefined system equates
var sysEquate = map[string]string{
	"LINENO": "0",
}

// Assembler is a single pass macro assembler for the CHIP-8 instruction set.
type Assembler struct {
	Verbose bool     // If set, verbosely logs the assembler actions.
	Opcode  []Opcode // List of generated opcodes.

	predefine map[string]string   // Predefines
	Label     map[string]int      // Map of jump labels to memory addresses.
	Equate    map[string]string   // Map of equates.
	Macro     map[string](*Macro) // Map of macros.
}

// Predefine defines a new equate or redefines an existing equate.
func (asm *Assembler) Predefine(equ string, value string) {
	if asm.predefine == nil {
		asm.predefine = map[string]string{equ: value}
	} else {
		asm.predefine[equ] = value
	}
}

// regMap maps register names to bank indexes.
var regMap = map[string]int{
	"v0": 0x0,
	"v1": 0x1,
	"v2": 0x2,
	"v3": 0x3,
	"v4": 0x4,
	"v5": 0x5,
	"v6": 0x6,
	"v7": 0x7,
	"v8": 0x8,
	"v9": 0x9,
	"va": 0xA,
	"vb": 0xB,
	"vc": 0xC,
	"vd": 0xD,
	"ve": 0xE,
	"vf": 0xF,
}

// aluMap maps register-register ALU opcode names.
var aluMap = map[string]CodeAluOp{
	"or":   ALU_OP_OR,
	"and":  ALU_OP_AND,
	"xor":  ALU_OP_XOR,
	"sub":  ALU_OP_SUB,
	"subr": ALU_OP_SUBR,
}

// miscMap maps the single-register misc opcode names.
var miscMap = map[string]uint8{
	"bcd":     MISC_OP_BCD,
	"save":    MISC_OP_SAVE,
	"restore": MISC_OP_RESTORE,
}

// valueOf returns the value of a simple word.
func (asm *Assembler) valueOf(word string) (value uint16, err error) {
	invert := false
	if word[0] == '~' {
		invert = true
		word = word[1:]
	}
	v64, err := strconv.ParseInt(word, 0, 64)
	if err != nil {
		err = ErrParseNumber(word)
		return
	}
	if v64 > 0xffff || v64 < -0x8000 {
		err = ErrParseNumber(word)
		return
	}

	value = uint16(v64)

	if invert {
		value = ^value
	}

	return
}

// byteOf returns an 8-bit immediate operand.
func (asm *Assembler) byteOf(word string) (value uint8, err error) {
	wide, err := asm.valueOf(word)
	if err != nil {
		return
	}
	if wide > 0xff {
		err = ErrByteRange
		return
	}

	value = uint8(wide)

	return
}

// regOf returns a register bank index.
func (asm *Assembler) regOf(word string) (reg int, err error) {
	reg, ok := regMap[word]
	if !ok {
		err = ErrRegisterInvalid
	}

	return
}

// targetOf resolves a numeric jump/call target, or defers a label to the
// final link pass.
func (asm *Assembler) targetOf(word string) (addr uint16, label string, err error) {
	addr, verr := asm.valueOf(word)
	if verr == nil {
		if addr > 0xfff {
			addr = 0
			err = ErrAddressRange
		}
		return
	}

	// Not a number; link it as a label at the end of the parse.
	addr = 0
	label = word

	return
}

// parenEval does compile-time $(...) evaluations
func (asm *Assembler) parenEval(expr string) (value uint16, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key, str := range asm.Equate {
		var value16 uint16
		value16, err = asm.valueOf(str)
		if err != nil {
			// Ignore non-integer equates. They may be registers
			// or labels.
			continue
		}
		pred[key] = starlark.MakeInt(int(value16))
	}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int, ok := st_rc.(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int64, ok := st_int.Int64()
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value = uint16(st_int64)
	return
}

// parseLine parses a single line as an opcode.
func (asm *Assembler) parseLine(line string, lineno int) (words []string, err error) {
	// Set line number.
	asm.Equate["LINENO"] = fmt.Sprintf("%v", lineno)

	// Do $() evaluations
	re := regexp.MustCompile(`\$\([^\$]*\)`)
	line = re.ReplaceAllStringFunc(line, func(str string) string {
		value, _err := asm.parenEval(str[2 : len(str)-1])
		if _err != nil {
			err = _err
		}
		return fmt.Sprintf("%#v", value)
	})
	if err != nil {
		return
	}

	words = slices.DeleteFunc(strings.Split(line, " "), func(a string) bool { return len(a) == 0 })

	if len(words) == 0 {
		return
	}

	// .equ CONST VALUE
	if len(words) > 0 && words[0] == ".equ" {
		if len(words) != 3 {
			err = ErrEquateSyntax
			return
		}
		_, ok := asm.Equate[words[1]]
		if ok {
			err = ErrEquateDuplicate
			return
		}
		asm.Equate[words[1]] = words[2]
		words = words[:0]
		return
	}

	for n, word := range words {
		if len(word) == 0 {
			continue
		}

		// Check for equate next
		equate, ok := asm.Equate[word]
		if ok {
			words[n] = equate
		}
	}

	for strings.HasSuffix(words[0], ":") {
		label := words[0][:len(words[0])-1]
		_, ok := asm.Label[label]
		if ok {
			err = ErrLabelDuplicate
			return
		}

		if asm.Label == nil {
			asm.Label = make(map[string]int, 16)
		}
		asm.Label[label] = asm.currentAddr()
		words = words[1:]
		if len(words) == 0 {
			return
		}
	}

	// .macro processing
	macro, ok := asm.Macro[words[0]]
	if ok {
		name := words[0]

		args := words[1:]
		if len(args) != len(macro.Args) {
			err = ErrMacroSyntax
			return
		}
		// Turn args into equs
		old_equate := maps.Clone(asm.Equate)
		for n, arg := range macro.Args {
			asm.Equate[arg] = words[1+n]
		}
		defer func() { asm.Equate = old_equate }()

		for n, line := range macro.Lines {
			lineno := macro.LineNo + n

			line = strings.ReplaceAll(line, "@", fmt.Sprintf("%v_%v_", name, lineno))
			words, err = asm.parseLine(line, lineno)
			if err != nil {
				err = &ErrMacro{Macro: name, Line: lineno, Err: err}
				err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
				return
			}

			err = asm.parseWords(words, macro.LineNo+n)
			if err != nil {
				err = &ErrMacro{Macro: name, Line: lineno, Err: err}
				err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
				return
			}
		}

		words = nil
		return
	}

	return
}

// currentAddr gets the memory address following the last emitted opcode.
func (asm *Assembler) currentAddr() int {
	if len(asm.Opcode) == 0 {
		return PROGRAM_START
	}

	last := asm.Opcode[len(asm.Opcode)-1]

	return last.Addr + 2*len(last.Codes)
}

// Parse parses an input stream into a Program containing opcodes.
func (asm *Assembler) Parse(input io.Reader) (prog *Program, err error) {

	scanner := bufio.NewScanner(input)

	var line string
	var lineno int
	var macro *Macro

	defer func() {
		if err != nil {
			err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
	}()

	clear(asm.Label)
	asm.Opcode = asm.Opcode[:0]
	if asm.Macro == nil {
		asm.Macro = make(map[string](*Macro))
	}
	clear(asm.Macro)
	asm.Equate = maps.Clone(sysEquate)
	maps.Copy(asm.Equate, _cpu_defines)
	for attr, val := range asm.predefine {
		asm.Equate[attr] = val
	}

	for scanner.Scan() {
		text := scanner.Text()
		lineno += 1

		if asm.Verbose {
			log.Printf("%v: %v\n", lineno, text)
		}

		text_comment := strings.Split(text, ";")
		line = strings.TrimSpace(text_comment[0])
		all_words := strings.Split(line, " ")

		var words []string
		for _, single := range all_words {
			if len(single) > 0 {
				words = append(words, single)
			}
		}

		// .macro NAME arg...
		if len(words) > 0 && words[0] == ".macro" {
			if macro != nil {
				err = ErrMacroNesting
				return
			}
			if len(words) < 2 {
				err = ErrMacroSyntax
				return
			}
			_, ok := asm.Macro[words[1]]
			if ok {
				err = ErrMacroDuplicate
				return
			}
			macro = &Macro{
				LineNo: lineno + 1,
			}
			if len(words) > 2 {
				macro.Args = words[2:]
			}
			asm.Macro[words[1]] = macro
			continue
		}

		if len(words) > 0 && words[0] == ".endm" {
			if macro == nil {
				err = ErrMacroLonelyEndm
				return
			}
			macro = nil
			continue
		}

		if macro != nil {
			macro.Lines = append(macro.Lines, line)
			continue
		}

		words, err = asm.parseLine(line, lineno)
		if err != nil {
			return
		}

		err = asm.parseWords(words, lineno)
		if err != nil {
			return
		}
	}

	if macro != nil {
		err = ErrMacroLonely
		return
	}

	// Final linking of jump and call labels.
	for n := range asm.Opcode {
		op := &asm.Opcode[n]

		if len(op.LinkLabel) == 0 {
			continue
		}
		addr, ok := asm.Label[op.LinkLabel]
		if !ok {
			err = ErrLabelMissing(op.LinkLabel)
			return
		}
		if len(op.Codes) < 1 {
			log.Fatalf("Unable to link label '%s' to line %d: %v", op.LinkLabel, op.LineNo, op.Words)
		}
		linked := &op.Codes[len(op.Codes)-1]
		*linked |= Code(addr & 0xfff)
	}

	if asm.currentAddr() > MEMORY_SIZE {
		err = ErrProgramTooLarge
		return
	}

	prog = &Program{
		Origin:  PROGRAM_START,
		Opcodes: slices.Clone(asm.Opcode),
	}

	return
}

// parseWords evaluates the words in a line of assembly text.
func (asm *Assembler) parseWords(words []string, lineno int) (err error) {
	var codes []Code
	var label string

	// no-op
	if len(words) == 0 {
		return
	}

	initial_words := words

	defer func() {
		if len(codes) == 0 {
			return
		}
		opcode := Opcode{LineNo: lineno, Addr: asm.currentAddr(), Words: initial_words, Codes: codes, LinkLabel: label}
		asm.Opcode = append(asm.Opcode, opcode)
	}()

	switch words[0] {
	case "halt":
		if len(words) > 1 {
			err = ErrOperandExtra
			return
		}
		codes = append(codes, CODE_HALT)
	case "return":
		if len(words) > 1 {
			err = ErrOperandExtra
			return
		}
		codes = append(codes, CODE_RETURN)
	case "jump":
		// jump TARGET, or jump v0 TARGET for the offset form.
		args := words[1:]
		make_code := MakeCodeJump
		if len(args) > 0 && args[0] == "v0" {
			make_code = MakeCodeJumpV0
			args = args[1:]
		}
		if len(args) < 1 {
			err = ErrOperandMissing
			return
		}
		if len(args) > 1 {
			err = ErrOperandExtra
			return
		}
		var addr uint16
		addr, label, err = asm.targetOf(args[0])
		if err != nil {
			return
		}
		codes = append(codes, make_code(addr))
	case "call":
		if len(words) < 2 {
			err = ErrOperandMissing
			return
		}
		if len(words) > 2 {
			err = ErrOperandExtra
			return
		}
		var addr uint16
		addr, label, err = asm.targetOf(words[1])
		if err != nil {
			return
		}
		codes = append(codes, MakeCodeCall(addr))
	case "skip":
		// skip eq|ne vX (vY | VALUE)
		if len(words) < 4 {
			err = ErrOperandMissing
			return
		}
		if len(words) > 4 {
			err = ErrOperandExtra
			return
		}
		var x int
		x, err = asm.regOf(words[2])
		if err != nil {
			return
		}
		y, is_reg := regMap[words[3]]
		var kk uint8
		if !is_reg {
			kk, err = asm.byteOf(words[3])
			if err != nil {
				return
			}
		}
		switch words[1] {
		case "eq":
			if is_reg {
				codes = append(codes, MakeCodeSkipEqReg(x, y))
			} else {
				codes = append(codes, MakeCodeSkipEqImm(x, kk))
			}
		case "ne":
			if is_reg {
				codes = append(codes, MakeCodeSkipNeReg(x, y))
			} else {
				codes = append(codes, MakeCodeSkipNeImm(x, kk))
			}
		default:
			err = ErrOpcodeInvalid
			return
		}
	case "set":
		// set vX (vY | VALUE), or set i TARGET
		if len(words) < 3 {
			err = ErrOperandMissing
			return
		}
		if len(words) > 3 {
			err = ErrOperandExtra
			return
		}
		if words[1] == "i" {
			var addr uint16
			addr, label, err = asm.targetOf(words[2])
			if err != nil {
				return
			}
			codes = append(codes, MakeCodeIndex(addr))
			return
		}
		var x int
		x, err = asm.regOf(words[1])
		if err != nil {
			return
		}
		y, is_reg := regMap[words[2]]
		if is_reg {
			codes = append(codes, MakeCodeAlu(ALU_OP_SET, x, y))
		} else {
			var kk uint8
			kk, err = asm.byteOf(words[2])
			if err != nil {
				return
			}
			codes = append(codes, MakeCodeSetImm(x, kk))
		}
	case "add":
		// add vX (vY | VALUE), or add i vX
		if len(words) < 3 {
			err = ErrOperandMissing
			return
		}
		if len(words) > 3 {
			err = ErrOperandExtra
			return
		}
		if words[1] == "i" {
			var x int
			x, err = asm.regOf(words[2])
			if err != nil {
				return
			}
			codes = append(codes, MakeCodeMisc(MISC_OP_INDEX_ADD, x))
			return
		}
		var x int
		x, err = asm.regOf(words[1])
		if err != nil {
			return
		}
		y, is_reg := regMap[words[2]]
		if is_reg {
			codes = append(codes, MakeCodeAlu(ALU_OP_ADD, x, y))
		} else {
			var kk uint8
			kk, err = asm.byteOf(words[2])
			if err != nil {
				return
			}
			codes = append(codes, MakeCodeAddImm(x, kk))
		}
	case "or", "and", "xor", "sub", "subr":
		if len(words) < 3 {
			err = ErrOperandMissing
			return
		}
		if len(words) > 3 {
			err = ErrOperandExtra
			return
		}
		var x, y int
		x, err = asm.regOf(words[1])
		if err != nil {
			return
		}
		y, err = asm.regOf(words[2])
		if err != nil {
			return
		}
		codes = append(codes, MakeCodeAlu(aluMap[words[0]], x, y))
	case "shr", "shl":
		if len(words) < 2 {
			err = ErrOperandMissing
			return
		}
		if len(words) > 2 {
			err = ErrOperandExtra
			return
		}
		var x int
		x, err = asm.regOf(words[1])
		if err != nil {
			return
		}
		op := ALU_OP_SHR
		if words[0] == "shl" {
			op = ALU_OP_SHL
		}
		codes = append(codes, MakeCodeAlu(op, x, 0))
	case "rand":
		if len(words) < 3 {
			err = ErrOperandMissing
			return
		}
		if len(words) > 3 {
			err = ErrOperandExtra
			return
		}
		var x int
		x, err = asm.regOf(words[1])
		if err != nil {
			return
		}
		var kk uint8
		kk, err = asm.byteOf(words[2])
		if err != nil {
			return
		}
		codes = append(codes, MakeCodeRand(x, kk))
	case "bcd", "save", "restore":
		if len(words) < 2 {
			err = ErrOperandMissing
			return
		}
		if len(words) > 2 {
			err = ErrOperandExtra
			return
		}
		var x int
		x, err = asm.regOf(words[1])
		if err != nil {
			return
		}
		codes = append(codes, MakeCodeMisc(miscMap[words[0]], x))
	case ".word":
		// Raw instruction words; lets a program carry data tables.
		if len(words) < 2 {
			err = ErrOperandMissing
			return
		}
		for _, word := range words[1:] {
			var value uint16
			value, err = asm.valueOf(word)
			if err != nil {
				return
			}
			codes = append(codes, Code(value))
		}
	default:
		err = ErrInstructionInvalid
		return
	}

	return
}
