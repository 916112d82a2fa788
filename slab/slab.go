package slab

import "unsafe"

// slab is a single page-sized backing region carved into equal-size objects,
// threaded on an embedded freelist exactly like the buddy tier's blocks: the
// first machine word of each free object holds the next free object's
// address. It implements queue.Node[*slab] so a cache's partial/full queues
// can link it directly, with no separate metadata node.
type slab struct {
	base       uintptr
	objectSize uint64
	capacity   int
	freeCount  int
	freeHead   uintptr
	next       *slab
}

func readNextObj(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

func writeNextObj(addr uintptr, next uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = next
}

// newSlab carves a freshly obtained backing page at base into
// pageSize/objectSize equal objects, linking every free slot's first word
// to the next one.
func newSlab(base uintptr, objectSize uint64, pageSize uint64) *slab {
	capacity := int(pageSize / objectSize)
	s := &slab{
		base:       base,
		objectSize: objectSize,
		capacity:   capacity,
		freeCount:  capacity,
	}

	var head uintptr
	for i := capacity - 1; i >= 0; i-- {
		addr := base + uintptr(i)*uintptr(objectSize)
		writeNextObj(addr, head)
		head = addr
	}
	s.freeHead = head

	return s
}

// popFree removes and returns one object from the slab's freelist, or 0 if
// the slab has none left.
func (s *slab) popFree() uintptr {
	if s.freeHead == 0 {
		return 0
	}
	obj := s.freeHead
	s.freeHead = readNextObj(obj)
	s.freeCount--
	return obj
}

// pushFree returns obj to the slab's freelist.
func (s *slab) pushFree(obj uintptr) {
	writeNextObj(obj, s.freeHead)
	s.freeHead = obj
	s.freeCount++
}

func (s *slab) full() bool  { return s.freeCount == 0 }
func (s *slab) empty() bool { return s.freeCount == s.capacity }

// owns reports whether addr falls within this slab's backing page.
func (s *slab) owns(pageBase uintptr) bool { return s.base == pageBase }

// SetNext and GetNext satisfy queue.Node[*slab].
func (s *slab) SetNext(n *slab) { s.next = n }
func (s *slab) GetNext() *slab  { return s.next }
