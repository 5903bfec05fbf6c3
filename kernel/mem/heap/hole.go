// Package heap implements a hole-list (free-list) allocator suitable for
// managing a single contiguous region of memory, e.g. the kernel heap.
package heap

import "unsafe"

// minHoleSize is the smallest block the list can track: a Hole record must
// fit inside every block it manages, including ones freed back to it.
const minHoleSize = unsafe.Sizeof(Hole{})

// Hole is a free block's header, written directly into the block's own
// first bytes; n chains to the next hole in ascending-address order.
type Hole struct {
	size uintptr
	n    *Hole
}

func holeAt(addr uintptr) *Hole {
	return (*Hole)(unsafe.Pointer(addr))
}

func addrOf(h *Hole) uintptr {
	return uintptr(unsafe.Pointer(h))
}

// info captures a hole's address and size without the pointer indirection,
// so it can be passed around after the hole it describes has possibly
// already been unlinked or overwritten.
type info struct {
	addr uintptr
	size uintptr
}

func (h *Hole) info() info {
	return info{addr: addrOf(h), size: h.size}
}

// Holes is a sorted singly-linked list of free blocks, headed by a sentinel
// zero-size hole that never itself describes real memory.
type Holes struct {
	front Hole
}

// NewHoles builds a list containing a single hole spanning
// [addr, addr+size), by writing a Hole header at addr.
func NewHoles(addr, size uintptr) Holes {
	h := holeAt(addr)
	*h = Hole{size: size}
	return Holes{front: Hole{n: h}}
}

// MinSize returns the smallest allocation (and smallest hole) the list can
// represent.
func MinSize() uintptr { return minHoleSize }

// allocation describes a satisfied request: the block to hand back, plus
// any leftover slivers on either side that must be released back into the
// list.
type allocation struct {
	block    info
	frontPad *info
	backPad  *info
}

// splitHole attempts to carve a size-byte, align-aligned block out of h. It
// returns false if h is not big enough once alignment padding is
// accounted for, or if a leftover sliver would be smaller than MinSize
// (such a sliver could never be reused, so the split is rejected outright —
// the allocator will look at the next hole instead rather than waste it).
func splitHole(h info, size, align uintptr) (allocation, bool) {
	var frontPad *info
	alignedAddr := h.addr
	if h.addr != alignUp(h.addr, align) {
		alignedAddr = alignUp(h.addr+minHoleSize, align)
		pad := info{addr: h.addr, size: alignedAddr - h.addr}
		frontPad = &pad
	}

	if alignedAddr+size > h.addr+h.size {
		return allocation{}, false
	}
	alignedSize := h.size - (alignedAddr - h.addr)

	var backPad *info
	switch {
	case alignedSize == size:
		// exact fit
	case alignedSize-size < minHoleSize:
		return allocation{}, false
	default:
		pad := info{addr: alignedAddr + size, size: alignedSize - size}
		backPad = &pad
	}

	return allocation{
		block:    info{addr: alignedAddr, size: size},
		frontPad: frontPad,
		backPad:  backPad,
	}, true
}

// allocFirstFit walks the list starting just after prev, returning the
// first hole that fits, unlinked from the list.
func allocFirstFit(prev *Hole, size, align uintptr) (allocation, bool) {
	for {
		cur := prev.n
		if cur == nil {
			return allocation{}, false
		}

		if a, ok := splitHole(cur.info(), size, align); ok {
			prev.n = cur.n
			return a, true
		}

		prev = cur
	}
}

// AllocFirstFit finds and removes the first hole able to satisfy a
// size-byte, align-aligned request, releasing any unused front/back padding
// back into the list, and returns the block's address.
func (hs *Holes) AllocFirstFit(size, align uintptr) (uintptr, bool) {
	if size < minHoleSize {
		size = minHoleSize
	}

	a, ok := allocFirstFit(&hs.front, size, align)
	if !ok {
		return 0, false
	}

	if a.frontPad != nil {
		dealloc(&hs.front, a.frontPad.addr, a.frontPad.size)
	}
	if a.backPad != nil {
		dealloc(&hs.front, a.backPad.addr, a.backPad.size)
	}

	return a.block.addr, true
}

// Dealloc releases the size-byte block at addr back into the list, merging
// it with adjacent holes where possible.
func (hs *Holes) Dealloc(addr, size uintptr) {
	dealloc(&hs.front, addr, size)
}

// dealloc walks the list to find addr's sorted position and links it in,
// merging with the hole before and/or after it when they are exactly
// adjacent.
func dealloc(hole *Hole, addr, size uintptr) {
	if size < minHoleSize {
		panic("heap: dealloc size smaller than the minimum hole size")
	}

	for {
		holeEnd := uintptr(0)
		if hole.size != 0 {
			holeEnd = addrOf(hole) + hole.size
		}
		if holeEnd > addr {
			panic("heap: dealloc of a block that overlaps a free hole (double free)")
		}

		next := hole.n
		switch {
		case next != nil && holeEnd == addr && addr+size == addrOf(next):
			hole.size += size + next.size
			hole.n = next.n
			return

		case holeEnd == addr:
			hole.size += size
			return

		case next != nil && addr+size == addrOf(next):
			hole.n = next.n
			size += next.size
			continue

		case next != nil && addrOf(next) <= addr:
			hole = next
			continue

		default:
			fresh := holeAt(addr)
			*fresh = Hole{size: size, n: next}
			hole.n = fresh
			return
		}
	}
}

func alignUp(addr, align uintptr) uintptr {
	return alignDown(addr+align-1, align)
}

func alignDown(addr, align uintptr) uintptr {
	if align == 0 {
		return addr
	}
	if align&(align-1) != 0 {
		panic("heap: alignment is not a power of two")
	}
	return addr &^ (align - 1)
}
