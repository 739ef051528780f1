package cpu

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// loadCodes writes an instruction sequence at the given address and
// points the program counter at it.
func loadCodes(t *testing.T, cpu *Cpu, addr uint16, codes []Code) {
	assert := assert.New(t)

	var image []byte
	for _, code := range codes {
		image = append(image, byte(code>>8), byte(code))
	}

	err := cpu.Load(addr, image)
	assert.NoError(err)
	cpu.Pc = addr
}

func TestCpu_Reset(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	cpu.Register[3] = 0x42
	cpu.Memory[0x300] = 0x42
	cpu.Index = 0x300
	cpu.Pc = 0x234
	cpu.Cycles = 10
	cpu.Stack.Push(0x202)

	cpu.Reset()

	assert.Equal(uint8(0), cpu.Register[3])
	assert.Equal(byte(0), cpu.Memory[0x300])
	assert.Equal(uint16(0), cpu.Index)
	assert.Equal(uint16(0), cpu.Pc)
	assert.Equal(0, cpu.Cycles)
	assert.True(cpu.Stack.Empty())
}

func TestCpu_Load_OutOfBounds(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	err := cpu.Load(MEMORY_SIZE-1, []byte{0x00, 0x00})
	assert.ErrorIs(err, ErrOutOfBounds(0))

	err = cpu.Load(MEMORY_SIZE-2, []byte{0x00, 0x00})
	assert.NoError(err)
}

func TestCpu_Fetch(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	cpu.Memory[0x200] = 0x6a
	cpu.Memory[0x201] = 0x02
	cpu.Pc = 0x200

	code, err := cpu.FetchCode()
	assert.NoError(err)
	assert.Equal(Code(0x6a02), code)
	assert.Equal(uint16(0x202), cpu.Pc)
}

func TestCpu_Fetch_OutOfBounds(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	cpu.Pc = MEMORY_SIZE - 1

	_, err := cpu.FetchCode()
	assert.ErrorIs(err, ErrOutOfBounds(0))
	assert.Equal(ErrOutOfBounds(MEMORY_SIZE-1), err)

	// A fault never advances the counter.
	assert.Equal(uint16(MEMORY_SIZE-1), cpu.Pc)
}

func TestCpu_AddRegisterCarry(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		name   string
		vx, vy uint8
		sum    uint8
		flag   uint8
	}){
		{"no_carry", 10, 20, 30, 0},
		{"carry", 200, 100, 44, 1},
		{"carry_exact", 0xff, 0x01, 0x00, 1},
		{"no_carry_max", 0xfe, 0x01, 0xff, 0},
	}

	for _, entry := range table {
		cpu := NewCpu()
		cpu.Register[1] = entry.vx
		cpu.Register[2] = entry.vy
		cpu.Register[FLAG_REGISTER] = 0xaa // must always be rewritten

		err := cpu.Execute(MakeCodeAlu(ALU_OP_ADD, 1, 2))
		assert.NoError(err, entry.name)
		assert.Equal(entry.sum, cpu.Register[1], entry.name)
		assert.Equal(entry.flag, cpu.Register[FLAG_REGISTER], entry.name)
	}
}

func TestCpu_AddRegisterCarry_SameRegister(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	cpu.Register[5] = 200

	err := cpu.Execute(MakeCodeAlu(ALU_OP_ADD, 5, 5))
	assert.NoError(err)
	assert.Equal(uint8(144), cpu.Register[5])
	assert.Equal(uint8(1), cpu.Register[FLAG_REGISTER])
}

func TestCpu_AddRegisterCarry_FlagIsDestination(t *testing.T) {
	assert := assert.New(t)

	// When vf is the destination the flag write lands last, so vf holds
	// the carry, never the sum.
	cpu := NewCpu()
	cpu.Register[FLAG_REGISTER] = 0x80
	cpu.Register[1] = 0x90

	err := cpu.Execute(MakeCodeAlu(ALU_OP_ADD, FLAG_REGISTER, 1))
	assert.NoError(err)
	assert.Equal(uint8(1), cpu.Register[FLAG_REGISTER])

	cpu = NewCpu()
	cpu.Register[FLAG_REGISTER] = 0x10
	cpu.Register[1] = 0x20

	err = cpu.Execute(MakeCodeAlu(ALU_OP_ADD, FLAG_REGISTER, 1))
	assert.NoError(err)
	assert.Equal(uint8(0), cpu.Register[FLAG_REGISTER])
}

func TestCpu_AddImmediate_NeverFlags(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	cpu.Register[0] = 0xff
	cpu.Register[FLAG_REGISTER] = 0xaa

	err := cpu.Execute(MakeCodeAddImm(0, 0x02))
	assert.NoError(err)
	assert.Equal(uint8(0x01), cpu.Register[0])

	// Overflow wrapped silently; the flag register is untouched.
	assert.Equal(uint8(0xaa), cpu.Register[FLAG_REGISTER])
}

func TestCpu_Alu(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		name   string
		op     CodeAluOp
		vx, vy uint8
		result uint8
		flag   uint8
	}){
		{"set", ALU_OP_SET, 0x12, 0x34, 0x34, 0xaa},
		{"or", ALU_OP_OR, 0xf0, 0x0f, 0xff, 0xaa},
		{"and", ALU_OP_AND, 0xf0, 0x3c, 0x30, 0xaa},
		{"xor", ALU_OP_XOR, 0xff, 0x0f, 0xf0, 0xaa},
		{"sub_no_borrow", ALU_OP_SUB, 30, 10, 20, 1},
		{"sub_borrow", ALU_OP_SUB, 10, 30, 236, 0},
		{"sub_equal", ALU_OP_SUB, 10, 10, 0, 1},
		{"subr_no_borrow", ALU_OP_SUBR, 10, 30, 20, 1},
		{"subr_borrow", ALU_OP_SUBR, 30, 10, 236, 0},
		{"shr_lsb_set", ALU_OP_SHR, 0x81, 0, 0x40, 1},
		{"shr_lsb_clear", ALU_OP_SHR, 0x80, 0, 0x40, 0},
		{"shl_msb_set", ALU_OP_SHL, 0x81, 0, 0x02, 1},
		{"shl_msb_clear", ALU_OP_SHL, 0x41, 0, 0x82, 0},
	}

	for _, entry := range table {
		cpu := NewCpu()
		cpu.Register[1] = entry.vx
		cpu.Register[2] = entry.vy
		cpu.Register[FLAG_REGISTER] = 0xaa

		err := cpu.Execute(MakeCodeAlu(entry.op, 1, 2))
		assert.NoError(err, entry.name)
		assert.Equal(entry.result, cpu.Register[1], entry.name)
		assert.Equal(entry.flag, cpu.Register[FLAG_REGISTER], entry.name)
	}
}

func TestCpu_Alu_BadMinor(t *testing.T) {
	assert := assert.New(t)

	for _, minor := range []Code{0x8, 0x9, 0xa, 0xb, 0xc, 0xd, 0xf} {
		cpu := NewCpu()
		code := Code(0x8120) | minor

		err := cpu.Execute(code)
		assert.ErrorIs(err, ErrOpcode(0), code.String())
		assert.Equal(ErrOpcode(code), err)
		assert.Equal(0, cpu.Cycles)
	}
}

func TestCpu_CallReturn(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	loadCodes(t, cpu, PROGRAM_START, []Code{
		0x2206, // 0x200: call 0x206
		0x0000, // 0x202: halt
		0x0000, // 0x204: (unreached)
		0x00ee, // 0x206: return
	})

	// call
	err := cpu.Tick()
	assert.NoError(err)
	assert.Equal(uint16(0x206), cpu.Pc)
	assert.Equal(1, cpu.Stack.Depth())
	addr, ok := cpu.Stack.Peek()
	assert.True(ok)
	assert.Equal(uint16(0x202), addr)

	// return resumes past the call
	err = cpu.Tick()
	assert.NoError(err)
	assert.Equal(uint16(0x202), cpu.Pc)
	assert.True(cpu.Stack.Empty())

	err = cpu.Run()
	assert.NoError(err)
	assert.Equal(uint16(0x204), cpu.Pc)
}

func TestCpu_StackOverflow(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	loadCodes(t, cpu, PROGRAM_START, []Code{
		0x2200, // 0x200: call 0x200
	})

	err := cpu.Run()
	assert.ErrorIs(err, ErrStackOverflow)
	assert.Equal(STACK_LIMIT, cpu.Stack.Depth())
	assert.Equal(STACK_LIMIT, cpu.Cycles)
}

func TestCpu_StackUnderflow(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	loadCodes(t, cpu, PROGRAM_START, []Code{
		0x00ee, // 0x200: return
	})

	err := cpu.Run()
	assert.ErrorIs(err, ErrStackUnderflow)
	assert.Equal(0, cpu.Cycles)
}

func TestCpu_Skips(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		name   string
		code   Code
		vx, vy uint8
		pc     uint16
	}){
		{"eq_imm_taken", 0x310a, 0x0a, 0, 0x204},
		{"eq_imm_not", 0x310a, 0x0b, 0, 0x202},
		{"ne_imm_taken", 0x410a, 0x0b, 0, 0x204},
		{"ne_imm_not", 0x410a, 0x0a, 0, 0x202},
		{"eq_reg_taken", 0x5120, 0x42, 0x42, 0x204},
		{"eq_reg_not", 0x5120, 0x42, 0x43, 0x202},
		{"ne_reg_taken", 0x9120, 0x42, 0x43, 0x204},
		{"ne_reg_not", 0x9120, 0x42, 0x42, 0x202},
	}

	for _, entry := range table {
		cpu := NewCpu()
		loadCodes(t, cpu, PROGRAM_START, []Code{entry.code})
		cpu.Register[1] = entry.vx
		cpu.Register[2] = entry.vy

		err := cpu.Tick()
		assert.NoError(err, entry.name)
		assert.Equal(entry.pc, cpu.Pc, entry.name)
	}
}

func TestCpu_Skips_BadMinor(t *testing.T) {
	assert := assert.New(t)

	for _, code := range []Code{0x5121, 0x9127} {
		cpu := NewCpu()
		err := cpu.Execute(code)
		assert.ErrorIs(err, ErrOpcode(0), code.String())
		assert.Equal(ErrOpcode(code), err)
	}
}

func TestCpu_Jump(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	loadCodes(t, cpu, 0x000, []Code{
		0x1222, // 0x000: jump 0x222
	})

	err := cpu.Run()
	assert.NoError(err)

	// The word at 0x222 is zeroed memory, which is the halt code; the
	// fetch advance leaves the counter just past it.
	assert.Equal(uint16(0x224), cpu.Pc)
}

func TestCpu_JumpV0(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	cpu.Register[0] = 0x10

	err := cpu.Execute(MakeCodeJumpV0(0x300))
	assert.NoError(err)
	assert.Equal(uint16(0x310), cpu.Pc)
}

func TestCpu_Index(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()

	err := cpu.Execute(MakeCodeIndex(0x300))
	assert.NoError(err)
	assert.Equal(uint16(0x300), cpu.Index)

	cpu.Register[4] = 0x21
	err = cpu.Execute(MakeCodeMisc(MISC_OP_INDEX_ADD, 4))
	assert.NoError(err)
	assert.Equal(uint16(0x321), cpu.Index)
}

func TestCpu_Bcd(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	cpu.Index = 0x300
	cpu.Register[0] = 234

	err := cpu.Execute(MakeCodeMisc(MISC_OP_BCD, 0))
	assert.NoError(err)
	assert.Equal(byte(2), cpu.Memory[0x300])
	assert.Equal(byte(3), cpu.Memory[0x301])
	assert.Equal(byte(4), cpu.Memory[0x302])
	assert.Equal(uint16(0x300), cpu.Index)
}

func TestCpu_Bcd_OutOfBounds(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	cpu.Index = MEMORY_SIZE - 2

	err := cpu.Execute(MakeCodeMisc(MISC_OP_BCD, 0))
	assert.ErrorIs(err, ErrOutOfBounds(0))
	assert.Equal(0, cpu.Cycles)
}

func TestCpu_SaveRestore(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	cpu.Index = 0x300
	for n := range 4 {
		cpu.Register[n] = uint8(0x10 * (n + 1))
	}

	err := cpu.Execute(MakeCodeMisc(MISC_OP_SAVE, 3))
	assert.NoError(err)
	assert.Equal([]byte{0x10, 0x20, 0x30, 0x40, 0x00},
		cpu.Memory[0x300:0x305])
	assert.Equal(uint16(0x300), cpu.Index)

	clear(cpu.Register[:])
	err = cpu.Execute(MakeCodeMisc(MISC_OP_RESTORE, 2))
	assert.NoError(err)
	assert.Equal(uint8(0x10), cpu.Register[0])
	assert.Equal(uint8(0x20), cpu.Register[1])
	assert.Equal(uint8(0x30), cpu.Register[2])
	assert.Equal(uint8(0x00), cpu.Register[3])
	assert.Equal(uint16(0x300), cpu.Index)
}

func TestCpu_SaveRestore_OutOfBounds(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	cpu.Index = MEMORY_SIZE - 2

	err := cpu.Execute(MakeCodeMisc(MISC_OP_SAVE, 4))
	assert.ErrorIs(err, ErrOutOfBounds(0))

	err = cpu.Execute(MakeCodeMisc(MISC_OP_RESTORE, 4))
	assert.ErrorIs(err, ErrOutOfBounds(0))
}

func TestCpu_Rand(t *testing.T) {
	assert := assert.New(t)

	// Masking with zero always lands zero.
	cpu := NewCpu()
	cpu.Register[3] = 0xff
	err := cpu.Execute(MakeCodeRand(3, 0x00))
	assert.NoError(err)
	assert.Equal(uint8(0), cpu.Register[3])

	// A seeded source makes the sequence reproducible.
	one := NewCpu()
	one.Rand = rand.New(rand.NewSource(1))
	two := NewCpu()
	two.Rand = rand.New(rand.NewSource(1))

	for range 16 {
		assert.NoError(one.Execute(MakeCodeRand(4, 0xff)))
		assert.NoError(two.Execute(MakeCodeRand(4, 0xff)))
		assert.Equal(one.Register[4], two.Register[4])
	}
}

func TestCpu_Unimplemented(t *testing.T) {
	assert := assert.New(t)

	table := []Code{
		0xd003, // draw
		0xe09e, // key pressed
		0xe0a1, // key released
		0xf00a, // key wait
		0xf007, // timer read
		0xf015, // timer write
		0xf018, // sound write
		0xf029, // font address
		0x0111, // machine code escape
	}

	for _, code := range table {
		cpu := NewCpu()

		err := cpu.Execute(code)
		assert.ErrorIs(err, ErrOpcode(0), code.String())
		assert.Equal(ErrOpcode(code), err, code.String())
		assert.Equal(0, cpu.Cycles, code.String())
	}
}

func TestCpu_Unimplemented_ErrorCarriesWord(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	err := cpu.Execute(Code(0xd003))

	var eo ErrOpcode
	assert.True(errors.As(err, &eo))
	assert.Equal(uint16(0xd003), uint16(eo))
	assert.True(strings.Contains(err.Error(), "0xD003"))
}

func TestCpu_Program_Fold(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	cpu.Register[0] = 5
	cpu.Register[1] = 10
	cpu.Register[2] = 10
	cpu.Register[3] = 10
	loadCodes(t, cpu, 0x000, []Code{
		0x8014, // add v0 v1
		0x8024, // add v0 v2
		0x8034, // add v0 v3
		0x0000, // halt
	})

	err := cpu.Run()
	assert.NoError(err)
	assert.Equal(uint8(35), cpu.Register[0])
	assert.Equal(uint8(0), cpu.Register[FLAG_REGISTER])
	assert.Equal(3, cpu.Cycles)
}

func TestCpu_Program_NestedCall(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	cpu.Register[0] = 5
	cpu.Register[1] = 10
	loadCodes(t, cpu, 0x000, []Code{
		0x2004, // 0x000: call 0x004
		0x0000, // 0x002: halt
		0x2008, // 0x004: call 0x008
		0x00ee, // 0x006: return
		0x8014, // 0x008: add v0 v1
		0x8014, // 0x00a: add v0 v1
		0x00ee, // 0x00c: return
	})

	err := cpu.Run()
	assert.NoError(err)
	assert.Equal(uint8(25), cpu.Register[0])
	assert.Equal(uint16(0x004), cpu.Pc)
	assert.True(cpu.Stack.Empty())
}

func TestCpu_String(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	cpu.Register[0] = 0x42
	cpu.Pc = 0x234

	text := cpu.String()
	assert.Contains(text, "v0: 42")
	assert.Contains(text, "pc: 234")
	assert.Contains(text, "stack: --- (empty)")

	cpu.Stack.Push(0x202)
	text = cpu.String()
	assert.Contains(text, "stack: 202 (depth 1)")
}

func TestCpu_Defines(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu()
	defines := map[string]string{}
	for key, value := range cpu.Defines() {
		defines[key] = value
	}

	assert.Equal("0x1000", defines["MEMORY_SIZE"])
	assert.Equal("0x200", defines["PROGRAM_START"])
	assert.Equal("16", defines["STACK_LIMIT"])
	assert.Equal("16", defines["REGISTER_COUNT"])
	assert.Equal("0xf", defines["FLAG_REGISTER"])
}
