package slimvm

import (
	"fmt"
	"strings"
)

// Read-only diagnostic dumps of stack/register/memory state: plain
// fmt-based text, no structured logging dependency, returned as strings
// instead of written directly to stdout so a caller (the CLI, or a test)
// can decide where the output goes.

// DumpStack renders the live portion of the stack, top of stack first.
func (m *Machine) DumpStack() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stack (depth %d):\n", m.sp)
	for i := int(m.sp) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "  [%d] %d\n", i, m.Stack[i])
	}
	return b.String()
}

// DumpRegisters renders all general purpose registers.
func (m *Machine) DumpRegisters() string {
	var b strings.Builder
	b.WriteString("registers:\n")
	for i, v := range m.Registers {
		fmt.Fprintf(&b, "  r%d = %d\n", i, v)
	}
	return b.String()
}

// DumpMemory renders every heap cell.
func (m *Machine) DumpMemory() string {
	var b strings.Builder
	b.WriteString("memory:\n")
	for i, v := range m.Memory {
		fmt.Fprintf(&b, "  [%d] %d\n", i, v)
	}
	return b.String()
}

// DumpBlocks renders the block allocator's free list, head first. The
// allocator is the most novel component here, and exposing its layout
// directly is far more useful for tests and the CLI than inferring it from
// repeated alloc/free traces.
func (m *Machine) DumpBlocks() string {
	var b strings.Builder
	b.WriteString("blocks:\n")
	for idx := m.head; idx != noBlock; idx = m.blocks[idx].next {
		blk := m.blocks[idx]
		state := "free"
		if blk.allocated {
			state = "allocated"
		}
		fmt.Fprintf(&b, "  [%d, %d) %s\n", blk.start, blk.end, state)
	}
	return b.String()
}
