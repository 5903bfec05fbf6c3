// Package allocator provides physical frame allocators layered on top of
// the bootloader-reported memory map.
package allocator

import (
	"talus/kernel"
	"talus/kernel/mem"
	"talus/kernel/mem/pmm"
	"talus/kernel/multiboot"
)

var errOutOfMemory = &kernel.Error{Module: "pmm_area_alloc", Message: "out of memory"}

// area is one usable memory-map region, expressed as an inclusive frame
// range.
type area struct {
	start, end pmm.Frame
}

// AreaAllocator hands out 4 KiB physical frames drawn from the bootloader's
// memory-map areas, skipping both the kernel image and the boot-info blob.
// Deallocation is not supported: once a frame is handed out it is never
// reclaimed by this allocator.
type AreaAllocator struct {
	areas []area

	curArea    int
	cursor     pmm.Frame
	haveCursor bool

	kernelStart, kernelEnd pmm.Frame
	bootStart, bootEnd     pmm.Frame
}

// NewAreaAllocator builds an AreaAllocator from the bootloader's memory map,
// excluding the inclusive frame ranges [kernelStart, kernelEnd] and
// [bootStart, bootEnd].
func NewAreaAllocator(kernelStart, kernelEnd, bootStart, bootEnd uintptr) *AreaAllocator {
	a := &AreaAllocator{
		kernelStart: frameFor(kernelStart),
		kernelEnd:   frameFor(kernelEnd),
		bootStart:   frameFor(bootStart),
		bootEnd:     frameFor(bootEnd),
	}

	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable || region.Length < uint64(mem.PageSize) {
			return true
		}

		a.areas = append(a.areas, area{
			start: pmm.Frame(region.PhysAddress / uint64(mem.PageSize)),
			end:   pmm.Frame((region.PhysAddress+region.Length)/uint64(mem.PageSize)) - 1,
		})
		return true
	})

	return a
}

func frameFor(addr uintptr) pmm.Frame {
	return pmm.Frame(addr / uintptr(mem.PageSize))
}

// AllocFrame implements the six-step allocation algorithm: advance past the
// current area when the cursor runs off its end, skip the kernel-image
// range, skip the boot-info range, then hand out the candidate frame.
func (a *AreaAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	if !a.haveCursor {
		if !a.selectNextArea(0) {
			return pmm.InvalidFrame, errOutOfMemory
		}
	}

	for {
		if a.curArea < 0 || a.curArea >= len(a.areas) {
			return pmm.InvalidFrame, errOutOfMemory
		}

		ar := a.areas[a.curArea]
		if a.cursor > ar.end {
			if !a.selectNextArea(a.cursor) {
				return pmm.InvalidFrame, errOutOfMemory
			}
			continue
		}

		if a.cursor >= a.kernelStart && a.cursor <= a.kernelEnd {
			a.cursor = a.kernelEnd + 1
			continue
		}

		if a.cursor >= a.bootStart && a.cursor <= a.bootEnd {
			a.cursor = a.bootEnd + 1
			continue
		}

		f := a.cursor
		a.cursor++
		return f, nil
	}
}

// selectNextArea picks the smallest-base area whose last frame is >= from,
// and snaps the cursor to max(from, area.start). It returns false if no
// such area exists.
func (a *AreaAllocator) selectNextArea(from pmm.Frame) bool {
	best := -1
	for i, ar := range a.areas {
		if ar.end < from {
			continue
		}
		if best == -1 || a.areas[best].start > ar.start {
			best = i
		}
	}

	if best == -1 {
		return false
	}

	a.curArea = best
	a.haveCursor = true
	if from > a.areas[best].start {
		a.cursor = from
	} else {
		a.cursor = a.areas[best].start
	}
	return true
}

// Dealloc is not supported; the area allocator is monotonic.
func (a *AreaAllocator) Dealloc(pmm.Frame) {
	panic("AreaAllocator: deallocation is not supported")
}
