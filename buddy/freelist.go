package buddy

import (
	"unsafe"

	"github.com/V01D-NULL/firefly-alloc/internal/logging"
)

// freelistSlots is the number of order slots the bank can ever need: orders
// from MinOrder to LargestAllowedOrder inclusive.
const freelistSlots = LargestAllowedOrder - MinOrder + 1

// freelistBank is a fixed-length array of singly linked intrusive freelists,
// one per order. Each node's link lives in the first machine word of the
// free block itself, so a free block costs no metadata beyond its own bytes.
type freelistBank struct {
	heads [freelistSlots]uintptr
}

// validSlot reports whether slot addresses a real order within the bank.
// SanityChecks gates whether an out-of-range slot panics or is trusted.
func validSlot(slot int) bool {
	return slot >= 0 && slot < freelistSlots
}

func checkSlot(slot int) {
	if SanityChecks && !validSlot(slot) {
		logging.Error("buddy: freelist slot out of range", "slot", slot)
		panic("buddy: freelist slot out of range")
	}
}

// readNext reads the link word stored at the start of block.
func readNext(block uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(block))
}

// writeNext stores next as the link word at the start of block.
func writeNext(block uintptr, next uintptr) {
	*(*uintptr)(unsafe.Pointer(block)) = next
}

// zeroBlock clears size bytes starting at block, poisoning its contents
// before it is linked onto a freelist.
func zeroBlock(block uintptr, size uintptr) {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(block)), int(size))
	for i := range buf {
		buf[i] = 0
	}
}

// blockSizeForSlot returns the byte size of blocks held at slot: slot i
// holds blocks of 2^(i + MinOrder + 3) bytes.
func blockSizeForSlot(slot int) uintptr {
	return uintptr(1) << uint(slot+MinOrder+3)
}

// add pushes block onto the freelist at slot, after zeroing it and writing
// the current head into its first word. block must not already be linked
// anywhere.
func (b *freelistBank) add(block uintptr, slot int) {
	checkSlot(slot)
	if block == 0 {
		return
	}

	zeroBlock(block, blockSizeForSlot(slot))
	writeNext(block, b.heads[slot])
	b.heads[slot] = block
}

// remove pops and returns the head of the freelist at slot, or 0 if empty.
func (b *freelistBank) remove(slot int) uintptr {
	checkSlot(slot)

	head := b.heads[slot]
	if head == 0 {
		return 0
	}

	b.heads[slot] = readNext(head)
	return head
}

// find performs a linear scan of the freelist at slot, reporting whether
// block is presently linked there, leaving the list unchanged. coalesce does
// not call it: it uses removeExact, which searches and unlinks in one pass.
func (b *freelistBank) find(block uintptr, slot int) bool {
	checkSlot(slot)

	node := b.heads[slot]
	for node != 0 {
		if node == block {
			return true
		}
		node = readNext(node)
	}
	return false
}

// removeExact removes block specifically from the freelist at slot,
// shifting the list to skip over it. Reports whether block was found.
func (b *freelistBank) removeExact(block uintptr, slot int) bool {
	checkSlot(slot)

	if b.heads[slot] == block {
		b.heads[slot] = readNext(block)
		return true
	}

	prev := b.heads[slot]
	for prev != 0 {
		next := readNext(prev)
		if next == block {
			writeNext(prev, readNext(next))
			return true
		}
		prev = next
	}
	return false
}
