package slab

import "github.com/cockroachdb/errors"

var (
	// ErrBackingAllocationFailed is returned when the backing allocator
	// cannot satisfy a request for a fresh slab.
	ErrBackingAllocationFailed = errors.New("slab: backing allocator failed")
	// ErrObjectNotOwned is returned by Deallocate when the address given
	// does not fall within any slab owned by this cache.
	ErrObjectNotOwned = errors.New("slab: address not owned by this cache")
	// ErrMisaligned is returned when an address is not a multiple of the
	// cache's object size, so it cannot be a real object address.
	ErrMisaligned = errors.New("slab: address misaligned for this cache's object size")
)
