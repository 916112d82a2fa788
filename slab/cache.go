// Package slab implements the upper tier of the two-tier allocator: a
// per-object-size pool of slabs, each carved from a page-sized block pulled
// from a BackingAllocator (in production, the buddy tier) on demand.
package slab

import (
	"github.com/cockroachdb/errors"

	"github.com/V01D-NULL/firefly-alloc/buddy"
	"github.com/V01D-NULL/firefly-alloc/internal/logging"
	"github.com/V01D-NULL/firefly-alloc/queue"
	"github.com/V01D-NULL/firefly-alloc/synclock"
)

// Cache is a pool of equal-size objects, drawn from slabs carved out of
// pages obtained from a BackingAllocator.
type Cache struct {
	objectSize uint64
	label      string
	backing    BackingAllocator
	lock       synclock.Lock

	// Reclaim, when true (the default), returns a slab's backing page to
	// the BackingAllocator the moment it becomes entirely free. When
	// false, empty slabs stay on the partial queue for reuse.
	Reclaim bool

	partial queue.Queue[*slab]
	full    queue.Queue[*slab]

	slabCount int
	allocated int
}

// NewCache constructs a Cache for objects of objectSize bytes, labeled for
// diagnostics, drawing fresh pages from backing. A nil lock defaults to
// synclock.NoopLock{}. No slabs are allocated eagerly.
func NewCache(objectSize uint64, label string, backing BackingAllocator, lock synclock.Lock) *Cache {
	if lock == nil {
		lock = synclock.NoopLock{}
	}
	return &Cache{
		objectSize: objectSize,
		label:      label,
		backing:    backing,
		lock:       lock,
		Reclaim:    true,
	}
}

// ObjectSize returns the fixed object size this cache hands out.
func (c *Cache) ObjectSize() uint64 { return c.objectSize }

// Label returns the cache's human-readable name.
func (c *Cache) Label() string { return c.label }

// SlabCount returns the number of backing pages currently held by this
// cache (partial + full).
func (c *Cache) SlabCount() int { return c.slabCount }

// Allocated returns the number of objects currently handed out.
func (c *Cache) Allocated() int { return c.allocated }

// Allocate returns one object address. If no partial slab has a free
// object, a fresh backing page is requested and carved into
// PageSize/ObjectSize objects first.
func (c *Cache) Allocate() (uintptr, error) {
	defer synclock.Guard(c.lock)()

	s, ok := c.partial.Dequeue()
	if !ok {
		base, err := c.backing.Allocate(buddy.PageSize)
		if err != nil {
			logging.Error("slab: backing allocation failed", "cache", c.label, "err", err)
			return 0, errors.Wrapf(err, "slab[%s]: allocate backing page", c.label)
		}
		s = newSlab(base, c.objectSize, buddy.PageSize)
		c.slabCount++
		logging.Debug("slab: new slab carved", "cache", c.label, "base", base, "capacity", s.capacity)
	}

	obj := s.popFree()
	c.allocated++

	if s.full() {
		c.full.Enqueue(s)
	} else {
		c.partial.Enqueue(s)
	}

	return obj, nil
}

// Deallocate returns object to its parent slab's freelist. The parent slab
// is found by masking object down to its page boundary. If the slab becomes
// entirely free and Reclaim is set, its backing page is returned to the
// BackingAllocator.
func (c *Cache) Deallocate(object uintptr) error {
	defer synclock.Guard(c.lock)()

	if object%uintptr(c.objectSize) != 0 {
		return errors.Wrapf(ErrMisaligned, "address=%#x size=%d", object, c.objectSize)
	}

	pageBase := object &^ uintptr(buddy.PageSize-1)

	s, found := c.full.RemoveMatch(func(s *slab) bool { return s.owns(pageBase) })
	if !found {
		s, found = c.partial.RemoveMatch(func(s *slab) bool { return s.owns(pageBase) })
	}
	if !found {
		return errors.Wrapf(ErrObjectNotOwned, "address=%#x", object)
	}

	s.pushFree(object)
	c.allocated--

	if s.empty() && c.Reclaim {
		c.slabCount--
		logging.Debug("slab: reclaiming empty slab", "cache", c.label, "base", s.base)
		return c.backing.Free(s.base, buddy.PageSize)
	}

	c.partial.Enqueue(s)
	return nil
}
