package cpu

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"maps"
	"math/rand"
)

const (
	MEMORY_SIZE    = 0x1000 // Addressable memory, 0x000-0xFFF.
	REGISTER_COUNT = 16     // General purpose registers v0-vf.
	FLAG_REGISTER  = 0xF    // vf doubles as the carry/borrow/shift flag.
	PROGRAM_START  = 0x200  // Conventional program origin. The 512 bytes
	// below it are reserved for the system by convention only; the core
	// does not enforce the reservation.
)

var _cpu_defines = map[string]string{
	"MEMORY_SIZE":    fmt.Sprintf("%#x", MEMORY_SIZE),
	"REGISTER_COUNT": fmt.Sprintf("%v", REGISTER_COUNT),
	"FLAG_REGISTER":  fmt.Sprintf("%#x", FLAG_REGISTER),
	"PROGRAM_START":  fmt.Sprintf("%#x", PROGRAM_START),
	"STACK_LIMIT":    fmt.Sprintf("%v", STACK_LIMIT),
}

// Cpu is the simulation context for the interpreter core.
//
// An embedder constructs a Cpu, writes a program image into Memory (and may
// pre-seed registers), then drives it with Run or Tick. A Cpu is never
// shared between goroutines.
type Cpu struct {
	Verbose bool // Set to enable verbose logging.

	Register [REGISTER_COUNT]uint8 // Register bank v0-vf.
	Index    uint16                // Memory index register.
	Pc       uint16                // Address of the next instruction to fetch.
	Stack    Stack                 // Call stack.
	Memory   [MEMORY_SIZE]byte     // Program and data memory.

	Cycles int // Executed instruction counter.

	Rand *rand.Rand // Source for the rand opcode. Optional; settable for reproducibility.
}

// NewCpu creates a new CPU with zeroed state.
func NewCpu() (cpu *Cpu) {
	cpu = &Cpu{}

	return
}

// Defines for the cpu
func (cpu *Cpu) Defines() iter.Seq2[string, string] {
	return maps.All(_cpu_defines)
}

// Reset the CPU state.
// - Clears the registers, index, memory, and call stack.
// - Zeros the program counter and cycle counter.
func (cpu *Cpu) Reset() {
	if cpu.Verbose {
		log.Printf("cpu: reset")
	}

	clear(cpu.Register[:])
	clear(cpu.Memory[:])
	cpu.Stack.Reset()
	cpu.Index = 0
	cpu.Pc = 0
	cpu.Cycles = 0
}

// String returns the current CPU state as a string.
func (cpu *Cpu) String() (text string) {
	for n, val := range cpu.Register {
		text += fmt.Sprintf("   v%x: %02X\n", n, val)
	}
	text += fmt.Sprintf("   pc: %03X\n", cpu.Pc)
	text += fmt.Sprintf("index: %03X\n", cpu.Index)

	val, ok := cpu.Stack.Peek()
	if ok {
		text += fmt.Sprintf("stack: %03X (depth %v)\n", val, cpu.Stack.Depth())
	} else {
		text += "stack: --- (empty)\n"
	}

	return
}

// Load writes an image into memory at the given address. This is the
// loader's entry point; the core itself never calls it.
func (cpu *Cpu) Load(addr uint16, data []byte) (err error) {
	if int(addr)+len(data) > MEMORY_SIZE {
		err = ErrOutOfBounds(MEMORY_SIZE)
		return
	}

	copy(cpu.Memory[addr:], data)

	return
}

// FetchCode reads the two bytes at the program counter, combines them
// big-endian into an instruction word, and advances the program counter
// past them. Control flow opcodes are then free to overwrite the counter
// without accounting for the fetch-side advance.
func (cpu *Cpu) FetchCode() (code Code, err error) {
	if int(cpu.Pc)+1 >= MEMORY_SIZE {
		err = ErrOutOfBounds(cpu.Pc)
		return
	}

	code = Code(uint16(cpu.Memory[cpu.Pc])<<8 | uint16(cpu.Memory[cpu.Pc+1]))
	cpu.Pc += 2

	return
}

// Tick executes a single fetch-decode-execute cycle.
func (cpu *Cpu) Tick() (err error) {
	at := cpu.Pc

	code, err := cpu.FetchCode()
	if err != nil {
		return
	}

	if cpu.Verbose {
		log.Printf("%03x: %v", at, code)
	}

	return cpu.Execute(code)
}

// Run executes until the program halts or faults. A clean halt returns
// nil; every fault is surfaced as a distinct error kind. The loop has no
// intrinsic cycle limit; embedders wanting one must bound Tick themselves.
func (cpu *Cpu) Run() (err error) {
	for {
		err = cpu.Tick()
		if errors.Is(err, ErrHalt) {
			return nil
		}
		if err != nil {
			return
		}
	}
}

// Execute executes a single decoded instruction.
func (cpu *Cpu) Execute(code Code) (err error) {
	x := code.X()
	y := code.Y()

	switch code.Class() {
	case OP_SYS:
		switch code {
		case CODE_HALT:
			return ErrHalt
		case CODE_RETURN:
			addr, ok := cpu.Stack.Pop()
			if !ok {
				return ErrStackUnderflow
			}
			cpu.Pc = addr
		default:
			// The machine-code escape of the reference hardware.
			return ErrOpcode(code)
		}
	case OP_JUMP:
		// No bounds check; a counter past the end is caught on the
		// next fetch.
		cpu.Pc = code.Addr()
	case OP_CALL:
		if !cpu.Stack.Push(cpu.Pc) {
			return ErrStackOverflow
		}
		cpu.Pc = code.Addr()
	case OP_SKIP_EQ_IMM:
		if cpu.Register[x] == code.Byte() {
			cpu.Pc += 2
		}
	case OP_SKIP_NE_IMM:
		if cpu.Register[x] != code.Byte() {
			cpu.Pc += 2
		}
	case OP_SKIP_EQ_REG:
		if code&0xF != 0 {
			return ErrOpcode(code)
		}
		if cpu.Register[x] == cpu.Register[y] {
			cpu.Pc += 2
		}
	case OP_SET_IMM:
		cpu.Register[x] = code.Byte()
	case OP_ADD_IMM:
		// Unlike the register add, the immediate add never touches
		// the flag register.
		cpu.Register[x] += code.Byte()
	case OP_ALU:
		if !cpu.doAlu(code.AluOp(), x, y) {
			return ErrOpcode(code)
		}
	case OP_SKIP_NE_REG:
		if code&0xF != 0 {
			return ErrOpcode(code)
		}
		if cpu.Register[x] != cpu.Register[y] {
			cpu.Pc += 2
		}
	case OP_INDEX:
		cpu.Index = code.Addr()
	case OP_JUMP_V0:
		cpu.Pc = code.Addr() + uint16(cpu.Register[0])
	case OP_RAND:
		value := rand.Uint32()
		if cpu.Rand != nil {
			value = cpu.Rand.Uint32()
		}
		cpu.Register[x] = uint8(value) & code.Byte()
	case OP_MISC:
		err = cpu.doMisc(code)
		if err != nil {
			return
		}
	default:
		// Draw, key, and timer families live with the peripherals,
		// not in this core.
		return ErrOpcode(code)
	}

	cpu.Cycles += 1

	return
}

// doAlu performs the register-register ALU action. Reports false for a
// minor opcode outside the family.
//
// The flag write lands after the result write, so vf still reads as an
// operand but always ends as the flag.
func (cpu *Cpu) doAlu(op CodeAluOp, x, y int) (ok bool) {
	ok = true

	vx := cpu.Register[x]
	vy := cpu.Register[y]

	switch op {
	case ALU_OP_SET:
		cpu.Register[x] = vy
	case ALU_OP_OR:
		cpu.Register[x] = vx | vy
	case ALU_OP_AND:
		cpu.Register[x] = vx & vy
	case ALU_OP_XOR:
		cpu.Register[x] = vx ^ vy
	case ALU_OP_ADD:
		sum := uint16(vx) + uint16(vy)
		cpu.Register[x] = uint8(sum)
		cpu.Register[FLAG_REGISTER] = uint8(sum >> 8)
	case ALU_OP_SUB:
		var flag uint8
		if vx >= vy {
			flag = 1 // no borrow
		}
		cpu.Register[x] = vx - vy
		cpu.Register[FLAG_REGISTER] = flag
	case ALU_OP_SHR:
		cpu.Register[x] = vx >> 1
		cpu.Register[FLAG_REGISTER] = vx & 1
	case ALU_OP_SUBR:
		var flag uint8
		if vy >= vx {
			flag = 1 // no borrow
		}
		cpu.Register[x] = vy - vx
		cpu.Register[FLAG_REGISTER] = flag
	case ALU_OP_SHL:
		cpu.Register[x] = vx << 1
		cpu.Register[FLAG_REGISTER] = vx >> 7
	default:
		ok = false
	}

	return
}

// doMisc performs the index and memory block actions of the 0xF family.
func (cpu *Cpu) doMisc(code Code) (err error) {
	x := code.X()

	switch code.Byte() {
	case MISC_OP_INDEX_ADD:
		cpu.Index += uint16(cpu.Register[x])
	case MISC_OP_BCD:
		if int(cpu.Index)+2 >= MEMORY_SIZE {
			return ErrOutOfBounds(cpu.Index)
		}
		val := cpu.Register[x]
		cpu.Memory[cpu.Index+0] = val / 100
		cpu.Memory[cpu.Index+1] = val / 10 % 10
		cpu.Memory[cpu.Index+2] = val % 10
	case MISC_OP_SAVE:
		if int(cpu.Index)+x >= MEMORY_SIZE {
			return ErrOutOfBounds(cpu.Index)
		}
		copy(cpu.Memory[cpu.Index:], cpu.Register[:x+1])
	case MISC_OP_RESTORE:
		if int(cpu.Index)+x >= MEMORY_SIZE {
			return ErrOutOfBounds(cpu.Index)
		}
		copy(cpu.Register[:x+1], cpu.Memory[cpu.Index:int(cpu.Index)+x+1])
	default:
		// Timer, key, and font actions belong to the peripherals.
		return ErrOpcode(code)
	}

	return
}
