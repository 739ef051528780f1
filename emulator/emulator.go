// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package emulator

import (
	"errors"
	"fmt"
	"iter"
	"maps"

	"github.com/ezrec/chip8/cpu"
	"github.com/ezrec/chip8/internal"
)

const (
	CYCLE_LIMIT = 500_000 // Default cycle budget for a single run.
)

var _emulator_defines = map[string]string{
	"CYCLE_LIMIT": fmt.Sprintf("%v", CYCLE_LIMIT),
}

// Emulator state. Processor core + program listing.
//
// The emulator is the host-side collaborator of the core: it loads a
// memory image, drives the fetch-decode-execute loop, bounds how many
// cycles a run may take, and maps faults back to source lines.
type Emulator struct {
	Verbose  bool         // If set, enables verbose logging.
	*cpu.Cpu              // Reference to the CPU simulation.
	Program  *cpu.Program // Reference to the currently loaded program listing.

	CycleLimit int // Cycle budget enforced by Run.
}

// NewEmulator creates a new emulator.
func NewEmulator() (emu *Emulator) {
	emu = &Emulator{
		Cpu:        cpu.NewCpu(),
		Program:    &cpu.Program{},
		CycleLimit: CYCLE_LIMIT,
	}

	return
}

// Defines returns an iterator over all of the defines
func (emu *Emulator) Defines() iter.Seq2[string, string] {
	return internal.IterSeq2Concat(maps.All(_emulator_defines),
		emu.Cpu.Defines(),
	)
}

// Reset zeroes the CPU and loads the program image at its origin.
func (emu *Emulator) Reset() (err error) {
	emu.Cpu.Verbose = emu.Verbose
	emu.Cpu.Reset()

	err = emu.Cpu.Load(emu.Program.Origin, emu.Program.Binary())
	if err != nil {
		return
	}
	emu.Cpu.Pc = emu.Program.Origin

	return
}

// LoadROM zeroes the CPU and installs a flat binary image at the
// conventional program start.
func (emu *Emulator) LoadROM(data []byte) (err error) {
	emu.Cpu.Verbose = emu.Verbose
	emu.Cpu.Reset()

	err = emu.Cpu.Load(cpu.PROGRAM_START, data)
	if err != nil {
		return
	}
	emu.Cpu.Pc = cpu.PROGRAM_START

	return
}

// Cycles returns the total executed instructions since a reset.
func (emu *Emulator) Cycles() int {
	return emu.Cpu.Cycles
}

// Code returns the instruction at the program counter, from the listing.
func (emu *Emulator) Code() cpu.Code {
	dbg := emu.Program.Debug(emu.Cpu.Pc)
	if dbg.Opcode != nil {
		return dbg.Codes[dbg.Index]
	}

	return cpu.Code(0)
}

// LineNo returns the current line number for the executing opcode.
func (emu *Emulator) LineNo() int {
	dbg := emu.Program.Debug(emu.Cpu.Pc)
	if dbg.Opcode != nil {
		return dbg.Opcode.LineNo
	}

	return 0
}

// Tick performs a single fetch-decode-execute cycle of the emulator.
func (emu *Emulator) Tick() (done bool, err error) {
	// Set CPU verbosity
	emu.Cpu.Verbose = emu.Verbose

	lineno := emu.LineNo()
	defer func() {
		if err != nil {
			err = &ErrRuntime{LineNo: lineno, Err: err}
		}
	}()

	err = emu.Cpu.Tick()
	if errors.Is(err, cpu.ErrHalt) {
		err = nil
		done = true
	}

	return
}

// Run ticks until the program halts, faults, or exhausts the cycle
// budget. The budget is the only way out of a program that never halts;
// the core's own loop is unbounded.
func (emu *Emulator) Run() (err error) {
	limit := emu.CycleLimit
	if limit <= 0 {
		limit = CYCLE_LIMIT
	}

	var done bool
	for range limit {
		done, err = emu.Tick()
		if done || err != nil {
			return
		}
	}

	err = &ErrRuntime{LineNo: emu.LineNo(), Err: ErrCycleLimit}

	return
}
