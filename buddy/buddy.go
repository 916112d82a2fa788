// Package buddy implements a power-of-two buddy allocator over a single
// contiguous, caller-supplied region. It is the lower tier of the two-tier
// allocator: the slab package consumes page-sized blocks from it.
//
// Orders and byte sizes are offset by three bits: a block carried at order k
// has a concrete size of 2^(k+3) bytes, not 2^k. This is a deliberate
// convention of this allocator, not an oversight.
package buddy

import (
	"github.com/V01D-NULL/firefly-alloc/internal/logging"
	"github.com/V01D-NULL/firefly-alloc/synclock"
)

const (
	// MinOrder is the smallest order the allocator will ever hand out. By
	// the order/size formula this is a 4096-byte block - one page.
	MinOrder = 9
	// LargestAllowedOrder is the hard ceiling on MaxOrder, about 1 GiB.
	LargestAllowedOrder = 30
	// PageSize is the fixed page size this allocator's callers assume.
	PageSize = 4096
)

// SanityChecks gates bounds-checking on freelist slot indices and on the
// order argument to Free. Disabling it trusts callers completely and trades
// safety for the last bit of performance.
var SanityChecks = true

// FillMode controls whether Alloc zeroes the block it hands out.
type FillMode int

const (
	// FillZero zeroes the entire block before returning it.
	FillZero FillMode = iota
	// FillNone leaves the block's contents untouched.
	FillNone
)

// AllocResult is what Alloc returns on success.
type AllocResult struct {
	Ptr    uintptr
	Order  int
	NPages int
}

// Allocator manages a single contiguous region, splitting and coalescing
// power-of-two blocks down to MinOrder.
type Allocator struct {
	base        uintptr
	maxOrder    int
	initialized bool
	freelist    freelistBank
	lock        synclock.Lock
}

// New constructs an Allocator guarded by lock. A nil lock defaults to
// synclock.NoopLock{}, matching the single-threaded default the rest of this
// package assumes.
func New(lock synclock.Lock) *Allocator {
	if lock == nil {
		lock = synclock.NoopLock{}
	}
	return &Allocator{lock: lock}
}

// Init records base as the start of the managed region and sets MaxOrder to
// targetOrder - 3, then seeds the freelist with a single top-level block
// spanning the whole region. It must be called exactly once, before any
// Alloc or Free.
func (a *Allocator) Init(base uintptr, targetOrder int) {
	defer synclock.Guard(a.lock)()

	a.base = base
	a.maxOrder = targetOrder - 3
	a.freelist = freelistBank{}
	a.freelist.add(base, a.maxOrder-MinOrder)
	a.initialized = true

	logging.Debug("buddy: initialized", "base", base, "maxOrder", a.maxOrder)
}

// MaxOrder returns the allocator's configured maximum order.
func (a *Allocator) MaxOrder() int { return a.maxOrder }

// ceilLog2 returns the smallest n such that 1<<n >= size, matching the
// source's hand-rolled log2 (a loop, not math.Log2, to avoid float
// rounding at the boundary).
func ceilLog2(size uint64) int {
	n := 0
	for (uint64(1) << uint(n)) < size {
		n++
	}
	return n
}

func orderForSize(size uint64) int {
	order := ceilLog2(size >> 3)
	if order < MinOrder {
		return MinOrder
	}
	return order
}

// OrderForSize exposes the size-to-order formula Alloc uses internally, so
// callers that only hold a byte size (e.g. a backing-allocator adapter
// freeing memory it once allocated by size) can recover the order Free
// expects.
func OrderForSize(size uint64) int {
	return orderForSize(size)
}

// Alloc returns a block of at least size bytes. ok is false if the request
// is oversized (under SanityChecks) or the allocator is exhausted.
func (a *Allocator) Alloc(size uint64, fill FillMode) (AllocResult, bool) {
	defer synclock.Guard(a.lock)()

	if !a.initialized {
		logging.Error("buddy: Alloc called before Init")
		return AllocResult{}, false
	}

	order := orderForSize(size)
	if SanityChecks && order > a.maxOrder {
		logging.Debug("buddy: request too large", "order", order, "maxOrder", a.maxOrder)
		return AllocResult{}, false
	}

	var block uintptr
	found := order
	for ; found <= a.maxOrder; found++ {
		block = a.freelist.remove(found - MinOrder)
		if block != 0 {
			break
		}
	}

	if block == 0 {
		logging.Debug("buddy: exhausted", "order", order)
		return AllocResult{}, false
	}

	// Split the found block down to the requested order, pushing each
	// upper buddy back onto its own freelist slot as we go.
	for working := found; working > order; {
		working--
		buddy := a.buddyOf(block, working)
		a.freelist.add(buddy, working-MinOrder)
	}

	correctSize := uint64(1) << uint(order+3)
	if fill == FillZero {
		zeroBlock(block, uintptr(correctSize))
	}

	logging.Debug("buddy: allocated", "ptr", block, "order", order, "size", correctSize)
	return AllocResult{
		Ptr:    block,
		Order:  order,
		NPages: int(correctSize / PageSize),
	}, true
}

// Free returns block, previously returned at order, to the allocator. order
// must lie in [MinOrder, MaxOrder]; a nil block is a no-op.
func (a *Allocator) Free(block uintptr, order int) {
	defer synclock.Guard(a.lock)()

	if block == 0 {
		return
	}

	if SanityChecks && (order < MinOrder || order > a.maxOrder) {
		logging.Error("buddy: invalid order passed to Free", "order", order)
		panic(ErrInvalidOrder)
	}

	// There is no buddy at max order - it can never coalesce further.
	if order == a.maxOrder {
		a.freelist.add(block, a.maxOrder-MinOrder)
		return
	}

	a.coalesce(block, order)
}

// buddyOf computes the address of block's buddy at order: the block at the
// same order whose offset from base differs by exactly one bit, the block
// size 1<<(order+3).
func (a *Allocator) buddyOf(block uintptr, order int) uintptr {
	offset := block - a.base
	return a.base + (offset ^ (uintptr(1) << uint(order+3)))
}

// coalesce tries to merge block with its buddy at order into a single block
// at order+1, recursing upward as long as buddies keep freeing up. The
// freelist slot index is order-MinOrder throughout.
func (a *Allocator) coalesce(block uintptr, order int) {
	buddy := a.buddyOf(block, order)

	if order < a.maxOrder && a.freelist.removeExact(buddy, order-MinOrder) {
		merged := block
		if buddy < merged {
			merged = buddy
		}
		a.coalesce(merged, order+1)
		return
	}

	a.freelist.add(block, order-MinOrder)
}
