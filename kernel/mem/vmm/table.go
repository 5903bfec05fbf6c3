package vmm

import (
	"talus/kernel"
	"talus/kernel/mem/pmm"
	"unsafe"
)

// Level identifies a page-table's position in the 4-level hierarchy. Only
// L4, L3 and L2 may hold next-table pointers; L1 always terminates the
// walk with a frame mapping. The teacher's corpus predates Go generics, so
// where the original carries this as a compile-time phantom type, talus
// enforces the same L4→L3→L2→L1 relation with a runtime-checked tag
// instead — NextLevel panics rather than failing to compile when misused.
type Level uint8

// Page-table levels, highest first.
const (
	L4 Level = 4
	L3 Level = 3
	L2 Level = 2
	L1 Level = 1
)

// NextLevel returns the level directly below l, or 0 if l is L1.
func (l Level) NextLevel() Level {
	if l == L1 {
		return 0
	}
	return l - 1
}

// recursiveIndex is the L4 slot that every active L4 table points back at
// itself with, per the recursive-mapping invariant.
const recursiveIndex = 511

// p4VirtAddr is the virtual address that always addresses the current L4
// table, given the recursive self-mapping at entry 511.
const p4VirtAddr = uintptr(0xFFFF_FFFF_FFFF_F000)

// table is one level of the page-table hierarchy, viewed through the
// recursive mapping at its virtual address.
type table struct {
	entries [entryCount]pageTableEntry
	level   Level
}

// tableAt is a mockable indirection over "treat this virtual address as a
// page table", so tests can fake the recursive-mapping arithmetic without a
// real CR3/MMU underneath them.
var tableAt = func(addr uintptr) *table {
	return (*table)(unsafe.Pointer(addr))
}

func addrOf(t *table) uintptr {
	return uintptr(unsafe.Pointer(t))
}

// zero clears every entry in the table.
func (t *table) zero() {
	for i := range t.entries {
		t.entries[i].SetUnused()
	}
}

// nextTableAddr returns the virtual address of the next-level table for
// entry index, if that entry is PRESENT and not a huge page.
func (t *table) nextTableAddr(index uintptr) (uintptr, bool) {
	e := t.entries[index]
	if e.Flags()&FlagPresent == 0 || e.Flags()&FlagHugePage != 0 {
		return 0, false
	}

	selfAddr := addrOf(t)
	return (selfAddr << 9) | (index << 12), true
}

// nextTable returns the next-level table for entry index, or nil.
func (t *table) nextTable(index uintptr) *table {
	addr, ok := t.nextTableAddr(index)
	if !ok {
		return nil
	}
	return tableAt(addr)
}

// nextTableCreate returns the next-level table for entry index, allocating
// and zeroing a fresh frame for it if the entry is not yet PRESENT. It
// panics if the entry is a huge page: splitting huge pages is out of scope.
func (t *table) nextTableCreate(index uintptr, alloc FrameAllocator) *table {
	if t.entries[index].Flags()&FlagHugePage != 0 {
		panic("vmm: cannot create a next-level table over a huge page entry")
	}

	if t.entries[index].IsUnused() {
		frame, err := alloc.AllocFrame()
		if err != nil {
			panic(err)
		}
		t.entries[index].Set(frame, FlagPresent|FlagWritable)

		addr, _ := t.nextTableAddr(index)
		next := tableAt(addr)
		next.level = t.level.NextLevel()
		next.zero()
	}

	return t.nextTable(index)
}

// FrameAllocator is satisfied by every frame source the page-table
// manipulator can draw fresh intermediate tables from.
type FrameAllocator interface {
	AllocFrame() (pmm.Frame, *kernel.Error)
}
