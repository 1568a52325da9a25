// Command slimvm loads a compiled .slx bytecode file and runs it to halt or
// fault: flag.Bool for a debug switch, flag.Args for the positional file
// argument, and a plain "Usage: ..." message on missing arguments.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"slimvm"
	"slimvm/loader"
)

var debugMode = flag.Bool("debug", false, "enter single-step debug mode")

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		fmt.Println("Usage: slimvm [-debug] <file.slx>")
		os.Exit(1)
	}

	bytecode, err := loader.Load(args[0])
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	m := slimvm.NewMachine()
	if err := m.Load(bytecode); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if *debugMode {
		runDebug(m)
	} else {
		m.Launch()
	}

	if err := m.Err(); err != nil {
		fmt.Println(err)
	}

	fmt.Print(m.DumpStack())
	fmt.Print(m.DumpRegisters())
	fmt.Print(m.DumpMemory())
}

// runDebug is a minimal single-step REPL: "n"/"next" steps one
// instruction, "r"/"run" free-runs, "b <n>" toggles a breakpoint on an
// instruction pointer value.
func runDebug(m *slimvm.Machine) {
	fmt.Println("Commands:\n\tn or next: execute next instruction\n\tr or run: run to completion\n\tb <offset>: toggle breakpoint at byte offset")

	reader := bufio.NewReader(os.Stdin)
	breakpoints := make(map[uint32]struct{})
	running := false

	for m.State() == slimvm.StateRunning {
		printCurrent(m)

		if !running {
			fmt.Print("-> ")
			line, _ := reader.ReadString('\n')
			line = strings.ToLower(strings.TrimSpace(line))

			switch {
			case line == "n" || line == "next":
				m.Step()
			case line == "r" || line == "run":
				running = true
			case strings.HasPrefix(line, "b "):
				toggleBreakpoint(breakpoints, line)
			default:
				continue
			}
		} else {
			if _, ok := breakpoints[m.InstructionPointer()]; ok {
				fmt.Println("breakpoint")
				running = false
				continue
			}
			m.Step()
		}

		if m.State() != slimvm.StateRunning {
			break
		}
	}
}

// printCurrent shows the instruction about to execute, so the REPL is
// useful for something other than blindly stepping.
func printCurrent(m *slimvm.Machine) {
	instr, err := m.Current()
	if err != nil {
		return
	}
	fmt.Printf("%04d: %s\n", m.InstructionPointer(), instr)
}

func toggleBreakpoint(breakpoints map[uint32]struct{}, line string) {
	arg := strings.TrimSpace(strings.TrimPrefix(line, "b "))
	offset, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		fmt.Println("unknown offset:", err)
		return
	}

	key := uint32(offset)
	if _, ok := breakpoints[key]; ok {
		delete(breakpoints, key)
	} else {
		breakpoints[key] = struct{}{}
	}
}
