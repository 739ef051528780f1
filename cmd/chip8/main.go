// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ezrec/chip8/cpu"
	"github.com/ezrec/chip8/emulator"
)

func main() {
	var compile string
	var rom string
	var save bool
	var output string
	var cycles int
	var verbose bool
	var defines bool

	flag.StringVar(&compile, "c", "", ".c8 assembly file to compile")
	flag.StringVar(&rom, "r", "", "ROM image to run")
	flag.BoolVar(&save, "s", false, "Save ROM image, do not execute")
	flag.StringVar(&output, "o", "out.rom", "ROM image output")
	flag.IntVar(&cycles, "n", emulator.CYCLE_LIMIT, "Cycle budget")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")
	flag.BoolVar(&defines, "D", false, "Print system defines and exit")

	flag.Parse()

	if flag.NArg() != 0 {
		log.Fatalf("%v: Unknown arguments: %v", os.Args[0], flag.Args())
	}

	emu := emulator.NewEmulator()
	emu.Verbose = verbose
	emu.CycleLimit = cycles

	if defines {
		for key, value := range emu.Defines() {
			fmt.Printf("%v = %v\n", key, value)
		}
		return
	}

	switch {
	case len(compile) != 0:
		inf, err := os.Open(compile)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
		defer inf.Close()

		asm := &cpu.Assembler{Verbose: verbose}
		for key, value := range emu.Defines() {
			asm.Predefine(key, value)
		}

		prog, err := asm.Parse(inf)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
		emu.Program = prog

		if save {
			err = os.WriteFile(output, prog.Binary(), 0o644)
			if err != nil {
				log.Fatalf("%v: %v", output, err)
			}
			return
		}

		err = emu.Reset()
		if err != nil {
			log.Fatal(err)
		}
	case len(rom) != 0:
		data, err := os.ReadFile(rom)
		if err != nil {
			log.Fatalf("%v: %v", rom, err)
		}

		err = emu.LoadROM(data)
		if err != nil {
			log.Fatalf("%v: %v", rom, err)
		}
	default:
		flag.Usage()
		return
	}

	err := emu.Run()
	if err != nil {
		log.Fatal(err)
	}

	if verbose {
		fmt.Print(emu.Cpu.String())
	}
}
