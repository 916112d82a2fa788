package slab

import (
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/V01D-NULL/firefly-alloc/buddy"
)

var (
	errFakeBackingExhausted  = errors.New("fakeBacking: exhausted")
	errFakeBackingUnknownPtr = errors.New("fakeBacking: free of unknown pointer")
)

// fakeBacking hands out host-backed pages without going through the buddy
// tier, so these tests can exercise the slab protocol in isolation.
type fakeBacking struct {
	pages     [][]byte
	allocated map[uintptr]int // base -> index into pages, for Free bookkeeping
	failNext  bool
}

func newFakeBacking() *fakeBacking {
	return &fakeBacking{allocated: make(map[uintptr]int)}
}

func (f *fakeBacking) Allocate(size uint64) (uintptr, error) {
	if f.failNext {
		f.failNext = false
		return 0, errFakeBackingExhausted
	}
	buf := make([]byte, size)
	f.pages = append(f.pages, buf)
	base := uintptr(unsafe.Pointer(&buf[0]))
	f.allocated[base] = len(f.pages) - 1
	return base, nil
}

func (f *fakeBacking) Free(ptr uintptr, size uint64) error {
	if _, ok := f.allocated[ptr]; !ok {
		return errFakeBackingUnknownPtr
	}
	delete(f.allocated, ptr)
	return nil
}

func TestAllocateFillsOnePageThenRequestsAnother(t *testing.T) {
	// S3: every object in a 64-byte cache backed by a single 4096-byte
	// page - 64 successful, pairwise distinct allocations within one
	// page, then the 65th allocation triggers a fresh backing request.
	backing := newFakeBacking()
	c := NewCache(64, "test-64", backing, nil)

	seen := make(map[uintptr]bool)
	var pageBase uintptr
	for i := 0; i < 64; i++ {
		addr, err := c.Allocate()
		require.NoError(t, err)
		require.False(t, seen[addr], "address returned twice")
		seen[addr] = true

		masked := addr &^ uintptr(buddy.PageSize-1)
		if i == 0 {
			pageBase = masked
		}
		require.Equal(t, pageBase, masked, "all 64 objects must live on one page")
	}
	require.Equal(t, 1, c.SlabCount())

	addr, err := c.Allocate()
	require.NoError(t, err)
	require.Equal(t, 2, c.SlabCount())
	require.NotEqual(t, pageBase, addr&^uintptr(buddy.PageSize-1))
}

func TestAllocateEightByteObjectsAligned(t *testing.T) {
	// S6: five successive Allocate() calls on an 8-byte cache return five
	// distinct, 8-byte-aligned addresses from the same backing page.
	backing := newFakeBacking()
	c := NewCache(8, "test-8", backing, nil)

	var addrs []uintptr
	for i := 0; i < 5; i++ {
		addr, err := c.Allocate()
		require.NoError(t, err)
		require.Zero(t, addr%8)
		addrs = append(addrs, addr)
	}

	for i := range addrs {
		for j := range addrs {
			if i != j {
				require.NotEqual(t, addrs[i], addrs[j])
			}
		}
	}
	require.Equal(t, 1, c.SlabCount())
}

func TestFullCycleReclaimsSlab(t *testing.T) {
	// S7: allocating and freeing every object in a slab returns its
	// backing page exactly once, and the next Allocate() starts fresh.
	backing := newFakeBacking()
	c := NewCache(64, "test-64", backing, nil)
	c.Reclaim = true

	var addrs []uintptr
	for i := 0; i < 64; i++ {
		addr, err := c.Allocate()
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}
	require.Equal(t, 1, c.SlabCount())

	for _, addr := range addrs {
		require.NoError(t, c.Deallocate(addr))
	}
	require.Equal(t, 0, c.SlabCount())
	require.Equal(t, 0, c.Allocated())
	require.Len(t, backing.allocated, 0)

	addr, err := c.Allocate()
	require.NoError(t, err)
	require.Equal(t, 1, c.SlabCount())
	require.NotZero(t, addr)
}

func TestNoReclaimKeepsEmptySlabForReuse(t *testing.T) {
	backing := newFakeBacking()
	c := NewCache(64, "test-64", backing, nil)
	c.Reclaim = false

	var addrs []uintptr
	for i := 0; i < 64; i++ {
		addr, err := c.Allocate()
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}
	for _, addr := range addrs {
		require.NoError(t, c.Deallocate(addr))
	}

	require.Equal(t, 1, c.SlabCount(), "slab should be kept, not returned to backing")
	require.Len(t, backing.allocated, 1)

	addr, err := c.Allocate()
	require.NoError(t, err)
	require.Equal(t, 1, c.SlabCount(), "reused the kept slab instead of requesting a new page")
	require.NotZero(t, addr)
}

func TestDeallocateUnknownAddressFails(t *testing.T) {
	backing := newFakeBacking()
	c := NewCache(32, "test-32", backing, nil)

	err := c.Deallocate(0xdeadbee0)
	require.ErrorIs(t, err, ErrObjectNotOwned)
}

func TestDeallocateMisalignedAddressFails(t *testing.T) {
	backing := newFakeBacking()
	c := NewCache(32, "test-32", backing, nil)

	addr, err := c.Allocate()
	require.NoError(t, err)

	err = c.Deallocate(addr + 1)
	require.ErrorIs(t, err, ErrMisaligned)
}

func TestBackingFailurePropagates(t *testing.T) {
	backing := newFakeBacking()
	backing.failNext = true
	c := NewCache(64, "test-64", backing, nil)

	_, err := c.Allocate()
	require.Error(t, err)
	require.ErrorIs(t, err, errFakeBackingExhausted)
}

func TestSlabConservationInvariant(t *testing.T) {
	// Invariant 5: (free objects) + (allocated objects) == slabs * capacity.
	backing := newFakeBacking()
	c := NewCache(128, "test-128", backing, nil)
	capacity := int(buddy.PageSize / 128)

	var live []uintptr
	for i := 0; i < capacity*3+5; i++ {
		addr, err := c.Allocate()
		require.NoError(t, err)
		live = append(live, addr)
	}

	for i := 0; i < len(live)/2; i++ {
		require.NoError(t, c.Deallocate(live[i]))
	}

	totalCapacity := c.SlabCount() * capacity
	require.Equal(t, totalCapacity, c.Allocated()+freeObjectsIn(c))
}

// freeObjectsIn counts free objects across a cache's partial queue by
// walking it non-destructively via repeated Dequeue/Enqueue, since Queue
// deliberately exposes no read-only iterator.
func freeObjectsIn(c *Cache) int {
	n := c.partial.Size()
	free := 0
	for i := 0; i < n; i++ {
		s, ok := c.partial.Dequeue()
		if !ok {
			break
		}
		free += s.freeCount
		c.partial.Enqueue(s)
	}
	return free
}
