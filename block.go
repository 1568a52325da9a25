package slimvm

// Block allocator -----------------------------------------------------------
//
// The heap is MemCap cells, described end-to-end by a singly linked chain of
// blocks, each either free or allocated. Rather than the original C's
// malloc'd, pointer-linked SlimBlock nodes (which require a recursive
// destructor to tear down), the chain lives in an arena: Machine.blocks is a
// slice of block records, and "next" is a slice index (noBlock sentinel for
// end of chain). Freed nodes go on freeSlots for reuse by the next split, so
// the arena never grows past the block count the heap can actually hold.

const noBlock = -1

type block struct {
	start, end uint32
	allocated  bool
	next       int
}

func newBlockChain() ([]block, int) {
	return []block{{start: 0, end: MemCap, allocated: false, next: noBlock}}, 0
}

func (m *Machine) resetBlocks() {
	m.blocks, m.head = newBlockChain()
	m.freeSlots = m.freeSlots[:0]
}

func (m *Machine) newBlockSlot(b block) int {
	if n := len(m.freeSlots); n > 0 {
		idx := m.freeSlots[n-1]
		m.freeSlots = m.freeSlots[:n-1]
		m.blocks[idx] = b
		return idx
	}
	m.blocks = append(m.blocks, b)
	return len(m.blocks) - 1
}

func (m *Machine) releaseBlockSlot(idx int) {
	m.blocks[idx] = block{}
	m.freeSlots = append(m.freeSlots, idx)
}

// split carves an exact-size prefix off a free block. An exact-size match
// is a no-op split: inserting a zero-width free node would leak through to
// the next alloc scan.
func (m *Machine) split(idx int, size uint32) error {
	b := m.blocks[idx]
	if b.allocated {
		return errBlockSplit
	}
	span := b.end - b.start
	if span < size {
		return errBlockSplit
	}
	if span == size {
		return nil
	}

	newIdx := m.newBlockSlot(block{start: b.start + size, end: b.end, allocated: false, next: m.blocks[idx].next})
	m.blocks[idx].end = m.blocks[idx].start + size
	m.blocks[idx].next = newIdx
	return nil
}

// merge coalesces a free block with its immediate (free) successor.
func (m *Machine) merge(idx int) error {
	b := m.blocks[idx]
	if b.allocated {
		return errBlockMerge
	}
	if b.next == noBlock {
		return errBlockMerge
	}
	next := m.blocks[b.next]
	if next.allocated {
		return errBlockMerge
	}

	nextIdx := b.next
	m.blocks[idx].end = next.end
	m.blocks[idx].next = next.next
	m.releaseBlockSlot(nextIdx)
	return nil
}

// predecessorOf returns the index of the block whose next is idx, or noBlock
// if idx is the head (no predecessor) or unreachable.
func (m *Machine) predecessorOf(idx int) int {
	for i := m.head; i != noBlock; i = m.blocks[i].next {
		if m.blocks[i].next == idx {
			return i
		}
	}
	return noBlock
}

// alloc performs a first-fit scan and splits the chosen block to exactly
// size cells, returning the cell address of the new allocation.
func (m *Machine) alloc(size uint32) (uint32, error) {
	if size == 0 || size > MemCap {
		return 0, errBlockAlloc
	}

	for idx := m.head; idx != noBlock; idx = m.blocks[idx].next {
		b := m.blocks[idx]
		if !b.allocated && b.end-b.start >= size {
			if err := m.split(idx, size); err != nil {
				return 0, err
			}
			m.blocks[idx].allocated = true
			return m.blocks[idx].start, nil
		}
	}

	return 0, errBlockAlloc
}

// free releases the block starting at address, then coalesces it with both
// its free neighbors. The source only merges forward; merging both
// directions strengthens the invariant without changing its meaning.
func (m *Machine) free(address uint32) error {
	for idx := m.head; idx != noBlock; idx = m.blocks[idx].next {
		if m.blocks[idx].start != address {
			continue
		}

		m.blocks[idx].allocated = false
		_ = m.merge(idx)

		if pred := m.predecessorOf(idx); pred != noBlock {
			_ = m.merge(pred)
		}

		return nil
	}

	return errBlockFree
}
