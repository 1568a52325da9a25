package slimvm

import (
	"fmt"
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func runAndEnsureFault(t *testing.T, m *Machine, bytecode []byte, kind FaultKind) {
	assert(t, m.Load(bytecode) == nil, "failed to load bytecode")
	m.Launch()
	assert(t, m.State() == StateFaulted, "expected faulted state, got %s", m.State())
	assert(t, m.LastFault() == kind, "expected fault %s, got %s", kind, m.LastFault())
}

func runAndEnsureHalted(t *testing.T, m *Machine, bytecode []byte) {
	assert(t, m.Load(bytecode) == nil, "failed to load bytecode")
	m.Launch()
	assert(t, m.State() == StateHalted, "expected halted state, got %s (%s)", m.State(), m.Err())
}

func instr(op Opcode, arg1, arg2 uint32) []byte {
	record := make([]byte, InstrBytes)
	record[0] = byte(op)
	record[1] = byte(arg1 >> 24)
	record[2] = byte(arg1 >> 16)
	record[3] = byte(arg1 >> 8)
	record[4] = byte(arg1)
	record[5] = byte(arg2 >> 24)
	record[6] = byte(arg2 >> 16)
	record[7] = byte(arg2 >> 8)
	record[8] = byte(arg2)
	return record
}

func program(instrs ...[]byte) []byte {
	var out []byte
	for _, i := range instrs {
		out = append(out, i...)
	}
	return out
}

func TestAddAndHalt(t *testing.T) {
	m := NewMachine()
	bytecode := program(
		instr(Loadi, 0, 2),
		instr(Loadi, 0, 3),
		instr(Add, 0, 0),
		instr(Halt, 0, 0),
	)
	runAndEnsureHalted(t, m, bytecode)
	assert(t, m.StackDepth() == 1, "expected 1 value on stack, got %d", m.StackDepth())
	assert(t, m.Stack[0] == 5, "expected 5, got %d", m.Stack[0])
}

func TestRegisterRoundTrip(t *testing.T) {
	m := NewMachine()
	bytecode := program(
		instr(Loadi, 0, 42),
		instr(Storer, 2, 0),
		instr(Loadr, 2, 0),
		instr(Halt, 0, 0),
	)
	runAndEnsureHalted(t, m, bytecode)
	assert(t, m.Registers[2] == 42, "expected register 2 == 42, got %d", m.Registers[2])
	assert(t, m.Stack[0] == 42, "expected 42 on stack, got %d", m.Stack[0])
}

func TestAllocStoreLoad(t *testing.T) {
	m := NewMachine()
	bytecode := program(
		instr(Alloc, 4, 0), // push address of a freshly split 4-cell block
		instr(Dup, 0, 0),   // keep a copy of the address around for LOADM
		instr(Loadi, 0, 99),
		instr(Swap, 0, 0),    // stack: addr, addr, 99 -> need value then addr for STOREM
		instr(Storem, 1, 0),  // memory[addr+1] = 99, pops addr then value
		instr(Loadm, 1, 0),   // push memory[addr+1]
		instr(Halt, 0, 0),
	)
	runAndEnsureHalted(t, m, bytecode)
	assert(t, m.StackDepth() == 1, "expected a single value left on stack, got depth %d", m.StackDepth())
	assert(t, m.Stack[0] == 99, "expected memory round trip to yield 99, got %d", m.Stack[0])
}

func TestStackUnderflow(t *testing.T) {
	m := NewMachine()
	bytecode := program(instr(Drop, 0, 0))
	runAndEnsureFault(t, m, bytecode, FaultStackUnderflow)
}

func TestStackOverflow(t *testing.T) {
	m := NewMachine()
	var instrs [][]byte
	for i := 0; i < int(StackCap)+1; i++ {
		instrs = append(instrs, instr(Loadi, 0, 1))
	}
	runAndEnsureFault(t, m, program(instrs...), FaultStackOverflow)
}

func TestInvalidRegister(t *testing.T) {
	m := NewMachine()
	bytecode := program(instr(Loadr, RegCount, 0))
	runAndEnsureFault(t, m, bytecode, FaultInvalidRegister)
}

func TestDivisionByZero(t *testing.T) {
	m := NewMachine()
	bytecode := program(
		instr(Loadi, 0, 0), // divisor, pushed first so it is popped second (the right operand)
		instr(Loadi, 0, 5), // dividend, popped first (the left operand)
		instr(Div, 0, 0),
	)
	runAndEnsureFault(t, m, bytecode, FaultDivByZero)
}

func TestMemoryOutOfBoundsFaults(t *testing.T) {
	m := NewMachine()
	bytecode := program(
		instr(Loadi, 0, MemCap-1), // push the last valid cell address
		instr(Loadm, 1, 0),        // offset 1 pushes the read past MemCap
	)
	runAndEnsureFault(t, m, bytecode, FaultMemoryOutOfBounds)
}

func TestBytecodeOverrunFaults(t *testing.T) {
	m := NewMachine()
	bytecode := program(
		instr(Jmp, 1000, 0), // jump well past the end of the single-instruction program
	)
	runAndEnsureFault(t, m, bytecode, FaultBytecodeOverrun)
}

func TestUnknownOpcode(t *testing.T) {
	m := NewMachine()
	bytecode := program([]byte{0xFF, 0, 0, 0, 0, 0, 0, 0, 0})
	runAndEnsureFault(t, m, bytecode, FaultInvalidOpcode)
}

func TestReservedOpcodeFaultsNotImplemented(t *testing.T) {
	m := NewMachine()
	bytecode := program(instr(Addf, 0, 0))
	runAndEnsureFault(t, m, bytecode, FaultNotImplemented)
}

func TestAllocOverCapacityFaults(t *testing.T) {
	m := NewMachine()
	bytecode := program(instr(Alloc, MemCap+1, 0))
	runAndEnsureFault(t, m, bytecode, FaultBlockAlloc)
}

func TestFreeOfNonBlockStartFaults(t *testing.T) {
	m := NewMachine()
	bytecode := program(instr(Free, 3, 0))
	runAndEnsureFault(t, m, bytecode, FaultBlockFree)
}

func TestConditionalBranch(t *testing.T) {
	m := NewMachine()
	// if 0 == 0, jump over the poison instruction straight to halt.
	bytecode := program(
		instr(Loadi, 0, 0),  // 0
		instr(Je, 27, 0),    // 9: byte offset of the halt at index 3 (3*9=27)
		instr(Alloc, 0, 0),  // 18: poison - would fault on size 0 if reached
		instr(Halt, 0, 0),   // 27
	)
	runAndEnsureHalted(t, m, bytecode)
}

func TestAllocFreeRestoresHeap(t *testing.T) {
	m := NewMachine()
	bytecode := program(
		instr(Alloc, 4, 0),
		instr(Drop, 0, 0),
		instr(Free, 0, 0), // FREE reads arg1 as the address, not the stack
		instr(Halt, 0, 0),
	)
	assert(t, m.Load(bytecode) == nil, "failed to load bytecode")
	m.Launch()
	assert(t, m.State() == StateHalted, "expected halted, got %s (%s)", m.State(), m.Err())
	assert(t, m.DumpBlocks() == "blocks:\n  [0, 16) free\n", "expected heap fully coalesced back to one free block, got %q", m.DumpBlocks())
}

// TestTwoBlockAllocFreeCoalesces allocates two adjacent blocks, frees the
// second before the first, and checks the heap coalesces back into a
// single free span. Freeing the second block merges it forward into the
// trailing free span; predecessorOf finds the first block, but that block
// is still allocated, so no backward merge happens. Freeing the first
// block then merges it forward into the rest of the heap.
func TestTwoBlockAllocFreeCoalesces(t *testing.T) {
	m := NewMachine()
	bytecode := program(
		instr(Alloc, 4, 0), // a0 = 0
		instr(Drop, 0, 0),
		instr(Alloc, 4, 0), // a1 = 4
		instr(Drop, 0, 0),
		instr(Free, 4, 0), // free a1 first
		instr(Free, 0, 0), // then a0
		instr(Halt, 0, 0),
	)
	runAndEnsureHalted(t, m, bytecode)
	assert(t, m.DumpBlocks() == "blocks:\n  [0, 16) free\n", "expected both blocks and the leftover free span to coalesce back into one free block, got %q", m.DumpBlocks())
}

func TestDupDropIsNoOp(t *testing.T) {
	m := NewMachine()
	bytecode := program(
		instr(Loadi, 0, 7),
		instr(Dup, 0, 0),
		instr(Drop, 0, 0),
		instr(Halt, 0, 0),
	)
	runAndEnsureHalted(t, m, bytecode)
	assert(t, m.StackDepth() == 1, "expected depth 1, got %d", m.StackDepth())
	assert(t, m.Stack[0] == 7, "expected 7, got %d", m.Stack[0])
}

func TestSwapSwapIsNoOp(t *testing.T) {
	m := NewMachine()
	bytecode := program(
		instr(Loadi, 0, 1),
		instr(Loadi, 0, 2),
		instr(Swap, 0, 0),
		instr(Swap, 0, 0),
		instr(Halt, 0, 0),
	)
	runAndEnsureHalted(t, m, bytecode)
	assert(t, m.Stack[0] == 1, "expected bottom 1, got %d", m.Stack[0])
	assert(t, m.Stack[1] == 2, "expected top 2, got %d", m.Stack[1])
}

func TestRotSemantics(t *testing.T) {
	m := NewMachine()
	bytecode := program(
		instr(Loadi, 0, 1), // c
		instr(Loadi, 0, 2), // b
		instr(Loadi, 0, 3), // a (top)
		instr(Rot, 0, 0),
		instr(Halt, 0, 0),
	)
	runAndEnsureHalted(t, m, bytecode)
	assert(t, m.Stack[0] == 1, "bottom should stay c=1, got %d", m.Stack[0])
	assert(t, m.Stack[1] == 3, "middle should become a=3, got %d", m.Stack[1])
	assert(t, m.Stack[2] == 2, "top should become b=2, got %d", m.Stack[2])
}
