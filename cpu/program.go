package cpu

import (
	"iter"
)

// Program is an assembled listing and the origin it loads at.
type Program struct {
	Origin  uint16
	Opcodes []Opcode
}

type Debug struct {
	*Opcode
	Index int
}

// Debug maps a memory address back to the source opcode covering it.
func (prog *Program) Debug(addr uint16) (dbg Debug) {
	for n, op := range prog.Opcodes {
		first := uint16(op.Addr)
		past := first + uint16(2*len(op.Codes))
		if addr >= first && addr < past {
			dbg = Debug{
				Opcode: &prog.Opcodes[n],
				Index:  int(addr-first) / 2,
			}
			break
		}
	}

	return
}

// Binary flattens the listing into the big-endian byte image that the
// loader writes at Origin.
func (prog *Program) Binary() (image []byte) {
	for _, code := range prog.Codes() {
		image = append(image, byte(code>>8), byte(code))
	}

	return
}

// Codes iterates over (address, instruction word) pairs.
func (prog *Program) Codes() iter.Seq2[uint16, Code] {
	return func(yield func(addr uint16, code Code) bool) {
		for _, op := range prog.Opcodes {
			addr := uint16(op.Addr)
			for n, code := range op.Codes {
				if !yield(addr+uint16(2*n), code) {
					return
				}
			}
		}
	}
}
