package allocator

import (
	"talus/kernel"
	"talus/kernel/mem/pmm"
)

var errTinyOverflow = &kernel.Error{Module: "pmm_tiny_alloc", Message: "TinyAllocator frame overflow"}

// BackingAllocator is the minimal interface a frame source must implement to
// back a TinyAllocator.
type BackingAllocator interface {
	AllocFrame() (pmm.Frame, *kernel.Error)
}

// TinyAllocator is a fixed three-slot frame allocator, built by draining
// three frames from a backing allocator up front. It exists to satisfy the
// bounded frame needs of page-table mutations (at most three frames: up to
// one new table per level below L4) that may themselves occur while the
// backing allocator's own bookkeeping is awkward to re-enter.
type TinyAllocator struct {
	slots [3]pmm.Frame
}

// NewTinyAllocator predrains three frames from backing. It panics if the
// backing allocator cannot supply all three: a kernel that cannot obtain
// three frames this early in boot cannot proceed.
func NewTinyAllocator(backing BackingAllocator) *TinyAllocator {
	t := &TinyAllocator{}
	for i := range t.slots {
		f, err := backing.AllocFrame()
		if err != nil {
			panic(err)
		}
		t.slots[i] = f
	}
	return t
}

// AllocFrame returns one of the three predrained frames, or InvalidFrame if
// all three are already in use.
func (t *TinyAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	for i := range t.slots {
		if t.slots[i].Valid() {
			f := t.slots[i]
			t.slots[i] = pmm.InvalidFrame
			return f, nil
		}
	}
	return pmm.InvalidFrame, &kernel.Error{Module: "pmm_tiny_alloc", Message: "out of memory"}
}

// Dealloc returns frame f to the pool. It is fatal to return more frames
// than the allocator was created with.
func (t *TinyAllocator) Dealloc(f pmm.Frame) {
	for i := range t.slots {
		if !t.slots[i].Valid() {
			t.slots[i] = f
			return
		}
	}
	panic(errTinyOverflow)
}
