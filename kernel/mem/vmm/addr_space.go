package vmm

import (
	"talus/kernel/cpu"
	"talus/kernel/mem"
	"talus/kernel/mem/pmm"
)

// TempPage is a fixed virtual page reserved for briefly mapping a physical
// frame so its contents can be read or written directly (e.g. to zero a
// fresh page-table frame, or to restore the active L4's recursive slot).
// It owns a small frame allocator because mapping it may itself need to
// create an intermediate table.
type TempPage struct {
	page  Page
	alloc FrameAllocator
}

// NewTempPage reserves virtAddr as a temporary-mapping page, backed by
// alloc for any intermediate tables its own mapping requires.
func NewTempPage(virtAddr uintptr, alloc FrameAllocator) *TempPage {
	return &TempPage{page: PageFromAddress(virtAddr), alloc: alloc}
}

// Map maps the temp page to frame under m and returns its virtual address.
func (tp *TempPage) Map(frame pmm.Frame, m Mapper) uintptr {
	if _, ok := m.Translate(tp.page.StartAddr()); ok {
		panic("vmm: TempPage already mapped")
	}
	m.MapTo(tp.page, frame, FlagWritable, tp.alloc)
	return tp.page.StartAddr()
}

// Unmap clears the temp page's mapping.
func (tp *TempPage) Unmap(m Mapper) {
	m.Unmap(tp.page)
}

// MapTableFrame maps frame via the temp page and returns it viewed as a
// page table, for direct manipulation of a table that is not (yet) part of
// any active hierarchy.
func (tp *TempPage) MapTableFrame(frame pmm.Frame, m Mapper) *table {
	return tableAt(tp.Map(frame, m))
}

// activePDTFn, switchPDTFn and flushTLBFn indirect the CR3-touching cpu
// calls so tests can run the With/Switch bookkeeping without a real MMU
// underneath them.
var (
	activePDTFn = cpu.ActivePDT
	switchPDTFn = cpu.SwitchPDT
	flushTLBFn  = cpu.FlushTLB
)

// ActivePageTable is a Mapper over the hierarchy CR3 currently points at.
// There is exactly one of these per kernel boot; it is never copied.
type ActivePageTable struct {
	Mapper
}

// NewActivePageTable returns a handle to the currently active hierarchy. It
// assumes the loader has already established the recursive self-mapping at
// entry 511, which is the case for the hierarchy the loader hands off.
func NewActivePageTable() *ActivePageTable {
	return &ActivePageTable{}
}

// With temporarily makes inactive's hierarchy reachable through the active
// recursive slot, invokes f with a Mapper over it, then restores the active
// slot. CR3 itself is never touched; this lets code running on the active
// hierarchy mutate an inactive one.
func (at *ActivePageTable) With(inactive *InactivePageTable, tempPage *TempPage, f func(Mapper)) {
	activeP4Frame := pmm.Frame(activePDTFn() >> mem.PageShift)

	backupAddr := tempPage.Map(activeP4Frame, at.Mapper)
	backup := tableAt(backupAddr)

	p4 := at.p4()
	savedEntry := p4.entries[recursiveIndex]
	p4.entries[recursiveIndex].Set(inactive.p4Frame, FlagPresent|FlagWritable)
	flushTLBFn()

	f(at.Mapper)

	// p4 now resolves through the rewired recursive slot and addresses
	// inactive's hierarchy, not the active one — the restore has to go
	// through backup, the temp-page view of the active L4 frame taken
	// before the rewire.
	backup.entries[recursiveIndex] = savedEntry
	flushTLBFn()

	tempPage.Unmap(at.Mapper)
}

// Switch installs new as the active hierarchy by writing CR3, and returns a
// handle to the hierarchy that was active until now.
func (at *ActivePageTable) Switch(newTable *InactivePageTable) *InactivePageTable {
	oldFrame := pmm.Frame(activePDTFn() >> mem.PageShift)
	switchPDTFn(newTable.p4Frame.Address())
	return &InactivePageTable{p4Frame: oldFrame}
}

// InactivePageTable is a hierarchy not currently pointed at by CR3. Its
// recursive slot is established before it is ever constructed from
// here — satisfying the "recursive invariant holds before activation"
// requirement — so it is safe to Switch to at any time.
type InactivePageTable struct {
	p4Frame pmm.Frame
}

// P4Frame returns the physical frame backing this hierarchy's L4 table.
func (it *InactivePageTable) P4Frame() pmm.Frame { return it.p4Frame }

// NewInactivePageTable zeroes frame and writes its own recursive entry 511,
// using active and tempPage to reach it while it is not yet mapped anywhere
// else.
func NewInactivePageTable(frame pmm.Frame, active *ActivePageTable, tempPage *TempPage) *InactivePageTable {
	addr := tempPage.Map(frame, active.Mapper)
	t := tableAt(addr)
	t.level = L4
	t.zero()
	t.entries[recursiveIndex].Set(frame, FlagPresent|FlagWritable)
	tempPage.Unmap(active.Mapper)

	return &InactivePageTable{p4Frame: frame}
}
