package slab

import (
	"github.com/cockroachdb/errors"

	"github.com/V01D-NULL/firefly-alloc/buddy"
)

// BackingAllocator is anything able to satisfy a slab cache's demand for
// raw, page-sized memory. The only production implementation in this repo
// is BuddyBacking, which delegates to the buddy tier, but tests substitute a
// simple fake.
type BackingAllocator interface {
	Allocate(size uint64) (uintptr, error)
	Free(ptr uintptr, size uint64) error
}

// BuddyBacking adapts a *buddy.Allocator to the BackingAllocator interface.
type BuddyBacking struct {
	Buddy *buddy.Allocator
}

// Allocate requests size bytes from the buddy tier, zeroed.
func (b *BuddyBacking) Allocate(size uint64) (uintptr, error) {
	res, ok := b.Buddy.Alloc(size, buddy.FillZero)
	if !ok {
		return 0, errors.Wrapf(ErrBackingAllocationFailed, "size=%d", size)
	}
	return res.Ptr, nil
}

// Free returns ptr to the buddy tier, recovering the order Free expects
// from the size originally requested.
func (b *BuddyBacking) Free(ptr uintptr, size uint64) error {
	b.Buddy.Free(ptr, buddy.OrderForSize(size))
	return nil
}
