package heap

import (
	"talus/kernel/sync"
	"unsafe"
)

// Heap manages a single contiguous region [bottom, bottom+size) as a
// hole-list free store.
type Heap struct {
	bottom uintptr
	size   uintptr
	holes  Holes
}

// New initializes a heap over [bottom, bottom+size).
func New(bottom, size uintptr) Heap {
	return Heap{bottom: bottom, size: size, holes: NewHoles(bottom, size)}
}

// Bottom returns the heap's starting address.
func (h *Heap) Bottom() uintptr { return h.bottom }

// Size returns the heap's current size in bytes.
func (h *Heap) Size() uintptr { return h.size }

// Top returns the address just past the end of the heap.
func (h *Heap) Top() uintptr { return h.bottom + h.size }

// Extend grows the heap by n bytes, releasing the new region as a hole.
// The caller is responsible for ensuring the memory past the old top is
// actually backed (mapped and owned by nothing else) before calling this.
func (h *Heap) Extend(n uintptr) {
	h.holes.Dealloc(h.Top(), n)
	h.size += n
}

// roundRequest pads a request up to the list's minimum block size and to
// the Hole header's own alignment, matching what every stored hole must
// already satisfy.
func roundRequest(size uintptr) uintptr {
	if size < minHoleSize {
		size = minHoleSize
	}
	return alignUp(size, unsafe.Alignof(Hole{}))
}

// AllocFirstFit reserves size bytes aligned to align, returning the block's
// address.
func (h *Heap) AllocFirstFit(size, align uintptr) (uintptr, bool) {
	return h.holes.AllocFirstFit(roundRequest(size), align)
}

// Dealloc releases a size-byte block previously returned by AllocFirstFit.
func (h *Heap) Dealloc(addr, size uintptr) {
	h.holes.Dealloc(addr, roundRequest(size))
}

// Allocator is a Heap guarded by a spinlock, suitable as the kernel's
// single global allocator.
type Allocator struct {
	mu sync.Spinlock
	h  Heap
}

// Init establishes the allocator's backing region. Must be called exactly
// once, before any Alloc/Free call.
func (a *Allocator) Init(bottom, size uintptr) {
	a.mu.Acquire()
	defer a.mu.Release()
	a.h = New(bottom, size)
}

// Extend grows the backing region by n bytes.
func (a *Allocator) Extend(n uintptr) {
	a.mu.Acquire()
	defer a.mu.Release()
	a.h.Extend(n)
}

// Alloc reserves size bytes aligned to align.
func (a *Allocator) Alloc(size, align uintptr) (uintptr, bool) {
	a.mu.Acquire()
	defer a.mu.Release()
	return a.h.AllocFirstFit(size, align)
}

// Free releases a size-byte block previously returned by Alloc.
func (a *Allocator) Free(addr, size uintptr) {
	a.mu.Acquire()
	defer a.mu.Release()
	a.h.Dealloc(addr, size)
}

// Active is the kernel's single global heap allocator.
var Active Allocator
