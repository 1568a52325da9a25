// Command slimasm reads a plain-text listing of slimvm assembly and writes
// the assembled .slx bytecode file.
package main

import (
	"fmt"
	"os"

	"slimvm"
	"slimvm/asm"
)

func main() {
	args := os.Args[1:]
	if len(args) != 2 {
		fmt.Println("Usage: slimasm <input.asm> <output.slx>")
		os.Exit(1)
	}

	source, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	program, err := asm.Assemble(string(source), false)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	warnReservedOpcodes(program.Bytecode)

	if err := os.WriteFile(args[1], program.Bytecode, 0644); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	fmt.Printf("wrote %d bytes (%d instructions) to %s\n", len(program.Bytecode), len(program.Bytecode)/9, args[1])
}

// warnReservedOpcodes flags any assembled instruction whose opcode is
// recognized but not implemented, so an assembled program that will always
// fault at runtime doesn't fail silently until it's run.
func warnReservedOpcodes(bytecode []byte) {
	for offset := 0; offset+int(slimvm.InstrBytes) <= len(bytecode); offset += int(slimvm.InstrBytes) {
		op := slimvm.Opcode(bytecode[offset])
		if op.IsReserved() {
			fmt.Printf("warning: %s at byte offset %d is reserved and will fault if executed\n", op, offset)
		}
	}
}
