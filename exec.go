package slimvm

import "encoding/binary"

// routine is the semantic procedure implementing one opcode. Every routine
// takes the decoded instruction and manipulates machine state exclusively
// through the push/pop/load/store/mem/alloc/free interface in machine.go
// and block.go.
type routine func(m *Machine, instr Instruction) error

// dispatch is a direct table indexed by opcode byte, in place of a giant
// switch or function-pointer chain. Unrecognized opcodes leave a nil
// entry, so decode stays total: a nil dispatch slot just means "no
// routine".
var dispatch [256]routine

func init() {
	dispatch[Nop] = opNop
	dispatch[Halt] = opHalt

	dispatch[Loadi] = opLoadi
	dispatch[Loadr] = opLoadr
	dispatch[Loadm] = opLoadm
	dispatch[Drop] = opDrop
	dispatch[Storer] = opStorer
	dispatch[Storem] = opStorem

	dispatch[Dup] = opDup
	dispatch[Swap] = opSwap
	dispatch[Rot] = opRot

	dispatch[Add] = opAdd
	dispatch[Sub] = opSub
	dispatch[Mul] = opMul
	dispatch[Div] = opDiv
	dispatch[Modi] = opReserved
	dispatch[Addf] = opReserved
	dispatch[Subf] = opReserved
	dispatch[Mulf] = opReserved
	dispatch[Divf] = opReserved
	dispatch[Modf] = opReserved

	dispatch[Alloc] = opAlloc
	dispatch[Free] = opFree

	dispatch[Jmp] = opJmp
	dispatch[Jne] = opJne
	dispatch[Je] = opJe
}

func opNop(m *Machine, instr Instruction) error {
	return nil
}

func opHalt(m *Machine, instr Instruction) error {
	m.Flags.Halt = true
	return nil
}

func opLoadi(m *Machine, instr Instruction) error {
	v := uint64(instr.Arg1)<<32 | uint64(instr.Arg2)
	return m.push(v)
}

func opLoadr(m *Machine, instr Instruction) error {
	return m.loadReg(instr.Arg1)
}

// opLoadm implements LOADM: arg1 is the cell offset, arg2 is reserved.
func opLoadm(m *Machine, instr Instruction) error {
	addr, err := m.pop()
	if err != nil {
		return err
	}
	return m.readMem(uint32(addr), instr.Arg1)
}

func opDrop(m *Machine, instr Instruction) error {
	return m.popDiscard()
}

func opStorer(m *Machine, instr Instruction) error {
	return m.storeReg(instr.Arg1)
}

// opStorem implements STOREM: pop the address first, then the value, and
// write memory[addr+arg1] = value. The original C routine only performs
// the first pop and reads the value from an uninitialized local; that bug
// is not reproduced here.
func opStorem(m *Machine, instr Instruction) error {
	addr, err := m.pop()
	if err != nil {
		return err
	}
	value, err := m.pop()
	if err != nil {
		return err
	}
	return m.writeMem(uint32(addr), instr.Arg1, value)
}

func opDup(m *Machine, instr Instruction) error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	if err := m.push(v); err != nil {
		return err
	}
	return m.push(v)
}

func opSwap(m *Machine, instr Instruction) error {
	a, err := m.pop()
	if err != nil {
		return err
	}
	b, err := m.pop()
	if err != nil {
		return err
	}
	if err := m.push(a); err != nil {
		return err
	}
	return m.push(b)
}

// opRot implements ROT as "swap the two elements above the third", not a
// true three-element rotation, per the opcode table's documented behavior:
// a, b, c (top-first) -> b, a, c.
func opRot(m *Machine, instr Instruction) error {
	a, err := m.pop()
	if err != nil {
		return err
	}
	b, err := m.pop()
	if err != nil {
		return err
	}
	c, err := m.pop()
	if err != nil {
		return err
	}
	if err := m.push(c); err != nil {
		return err
	}
	if err := m.push(a); err != nil {
		return err
	}
	return m.push(b)
}

// arithmetic performs `a op b` where a is popped first (top of stack, the
// left operand for non-commutative ops) and b second, pushing the result.
func arithmetic(m *Machine, op func(a, b uint64) (uint64, error)) error {
	a, err := m.pop()
	if err != nil {
		return err
	}
	b, err := m.pop()
	if err != nil {
		return err
	}
	result, err := op(a, b)
	if err != nil {
		return err
	}
	return m.push(result)
}

func opAdd(m *Machine, instr Instruction) error {
	return arithmetic(m, func(a, b uint64) (uint64, error) { return a + b, nil })
}

func opSub(m *Machine, instr Instruction) error {
	return arithmetic(m, func(a, b uint64) (uint64, error) { return a - b, nil })
}

func opMul(m *Machine, instr Instruction) error {
	return arithmetic(m, func(a, b uint64) (uint64, error) { return a * b, nil })
}

func opDiv(m *Machine, instr Instruction) error {
	return arithmetic(m, func(a, b uint64) (uint64, error) {
		if b == 0 {
			return 0, errDivByZero
		}
		return a / b, nil
	})
}

// opReserved backs the encoded-but-unimplemented MODI/ADDF/SUBF/MULF/DIVF/
// MODF opcodes: the original C routine marks these TODO. They stay in the
// dispatch table (decode remains total) but fault rather than silently
// doing nothing or aliasing to INVALID_OPCODE.
func opReserved(m *Machine, instr Instruction) error {
	return errNotImplemented
}

func opAlloc(m *Machine, instr Instruction) error {
	addr, err := m.alloc(instr.Arg1)
	if err != nil {
		return err
	}
	return m.push(uint64(addr))
}

func opFree(m *Machine, instr Instruction) error {
	return m.free(instr.Arg1)
}

func opJmp(m *Machine, instr Instruction) error {
	m.pc = instr.Arg1
	return nil
}

func opJne(m *Machine, instr Instruction) error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	if v != 0 {
		m.pc = instr.Arg1
	}
	return nil
}

func opJe(m *Machine, instr Instruction) error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	if v == 0 {
		m.pc = instr.Arg1
	}
	return nil
}

// fetch reads one instruction word at the instruction pointer and advances
// it by InstrBytes. Operand words are big-endian; the original C routine
// reads them little-endian and byte-swaps, which is equivalent. An overrun
// is hardened into a fault rather than a panic on an out-of-range slice.
func (m *Machine) fetch() (Instruction, error) {
	if uint64(m.pc)+uint64(InstrBytes) > uint64(len(m.bytecode)) {
		return Instruction{}, errBytecodeOverrun
	}

	word := m.bytecode[m.pc : m.pc+InstrBytes]
	instr := Instruction{
		Op:   Opcode(word[0]),
		Arg1: binary.BigEndian.Uint32(word[1:5]),
		Arg2: binary.BigEndian.Uint32(word[5:9]),
	}
	m.pc += InstrBytes
	return instr, nil
}

// Current decodes the instruction at the current instruction pointer
// without advancing it, for callers (the debug REPL) that need to show
// what is about to execute.
func (m *Machine) Current() (Instruction, error) {
	if uint64(m.pc)+uint64(InstrBytes) > uint64(len(m.bytecode)) {
		return Instruction{}, errBytecodeOverrun
	}

	word := m.bytecode[m.pc : m.pc+InstrBytes]
	return Instruction{
		Op:   Opcode(word[0]),
		Arg1: binary.BigEndian.Uint32(word[1:5]),
		Arg2: binary.BigEndian.Uint32(word[5:9]),
	}, nil
}

// decode is a total function from opcode byte to semantic routine; unknown
// opcodes yield a nil routine.
func (m *Machine) decode(instr Instruction) routine {
	return dispatch[instr.Op]
}

// execute invokes the routine if one was found, otherwise raises
// FaultInvalidOpcode.
func (m *Machine) execute(r routine, instr Instruction) error {
	if r == nil {
		return errInvalidOpcode
	}
	return r(m, instr)
}

// Step fetches, decodes, and executes exactly one instruction.
func (m *Machine) Step() error {
	instr, err := m.fetch()
	if err != nil {
		return m.fault(err)
	}

	r := m.decode(instr)
	if err := m.execute(r, instr); err != nil {
		return m.fault(err)
	}

	if m.Flags.Halt {
		m.state = StateHalted
	}
	return nil
}

// Launch runs to halt or fault. The original C routine only loops while
// !halt, meaning a faulted machine keeps executing against poisoned
// state; here the loop exits on error too.
func (m *Machine) Launch() error {
	m.state = StateRunning
	for !m.Flags.Halt && !m.Flags.Error {
		if err := m.Step(); err != nil {
			return err
		}
	}

	if m.Flags.Halt {
		m.state = StateHalted
	}
	return m.errcode
}
