// Package cpu implements the processor core and assembler for the CHIP-8
// virtual machine.
//
// The processor consists of sixteen 8-bit general purpose registers (v0-vf,
// with vf doubling as the arithmetic flag), 4KB of addressable memory, a
// program counter, an index register, and a sixteen-frame call stack.
// Instructions are two bytes, big-endian, dispatched through a closed opcode
// table; a word outside the table faults rather than degrading to a no-op.
//
// The assembler provides an assembly language for the instruction set,
// supporting macros, labels, equates, and compile-time expression evaluation.
package cpu
