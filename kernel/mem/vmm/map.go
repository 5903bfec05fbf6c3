package vmm

import (
	"talus/kernel/cpu"
	"talus/kernel/mem"
	"talus/kernel/mem/pmm"
)

// Mapper operates on whatever hierarchy is currently reachable through the
// recursive self-mapping at p4VirtAddr. An activeTable is a Mapper over the
// hierarchy CR3 actually points at; inside With, the same Mapper instead
// reaches an inactive hierarchy because entry 511 has been temporarily
// rewired — the mapping code itself does not need to know which.
type Mapper struct{}

// flushTLBEntryFn indirects the single-page TLB flush so tests can exercise
// Unmap without a real MMU underneath them.
var flushTLBEntryFn = cpu.FlushTLBEntry

func (Mapper) p4() *table {
	t := tableAt(p4VirtAddr)
	t.level = L4
	return t
}

// Translate walks the hierarchy for virtAddr and returns the corresponding
// physical address, or false if no mapping exists. Huge L3/L2 entries are
// accounted for by adding the appropriate in-frame offset.
func (m Mapper) Translate(virtAddr uintptr) (uintptr, bool) {
	page := PageFromAddress(virtAddr)
	offset := virtAddr % uintptr(mem.PageSize)

	p4 := m.p4()
	p3 := p4.nextTable(page.P4Index())
	if p3 == nil {
		return 0, false
	}

	if e := p3.entries[page.P3Index()]; e.Flags()&FlagHugePage != 0 {
		frame := e.Frame()
		return frame.Address() + virtAddr%(1<<30), true
	}

	p2 := p3.nextTable(page.P3Index())
	if p2 == nil {
		return 0, false
	}

	if e := p2.entries[page.P2Index()]; e.Flags()&FlagHugePage != 0 {
		frame := e.Frame()
		return frame.Address() + virtAddr%(1<<21), true
	}

	p1 := p2.nextTable(page.P2Index())
	if p1 == nil {
		return 0, false
	}

	e := p1.entries[page.P1Index()]
	if e.Flags()&FlagPresent == 0 {
		return 0, false
	}

	return e.Frame().Address() + offset, true
}

// MapTo maps page to frame with the given flags, creating any missing
// intermediate tables along the way. It panics if the target L1 entry is
// already in use.
func (m Mapper) MapTo(page Page, frame pmm.Frame, flags PTFlags, alloc FrameAllocator) {
	p4 := m.p4()
	p3 := p4.nextTableCreate(page.P4Index(), alloc)
	p2 := p3.nextTableCreate(page.P3Index(), alloc)
	p1 := p2.nextTableCreate(page.P2Index(), alloc)

	if !p1.entries[page.P1Index()].IsUnused() {
		panic("vmm: MapTo target page is already mapped")
	}

	p1.entries[page.P1Index()].Set(frame, flags)
}

// Idmap identity-maps frame: the virtual page whose address equals the
// frame's physical base is mapped to that same frame.
func (m Mapper) Idmap(frame pmm.Frame, flags PTFlags, alloc FrameAllocator) {
	m.MapTo(PageFromAddress(frame.Address()), frame, flags, alloc)
}

// Map allocates a fresh frame and maps page to it.
func (m Mapper) Map(page Page, flags PTFlags, alloc FrameAllocator) pmm.Frame {
	frame, err := alloc.AllocFrame()
	if err != nil {
		panic(err)
	}
	m.MapTo(page, frame, flags, alloc)
	return frame
}

// Unmap clears the mapping for page and flushes its TLB entry. It panics if
// page is not currently mapped, or if the mapping is a huge page (splitting
// is out of scope).
func (m Mapper) Unmap(page Page) {
	p4 := m.p4()
	p3 := p4.nextTable(page.P4Index())
	if p3 == nil {
		panic("vmm: Unmap of an unmapped page")
	}
	p2 := p3.nextTable(page.P3Index())
	if p2 == nil {
		panic("vmm: Unmap of an unmapped page")
	}
	p1 := p2.nextTable(page.P2Index())
	if p1 == nil {
		panic("vmm: Unmap of an unmapped page")
	}

	e := &p1.entries[page.P1Index()]
	if e.Flags()&FlagHugePage != 0 {
		panic("vmm: Unmap does not support huge pages")
	}
	if e.IsUnused() {
		panic("vmm: Unmap of an unmapped page")
	}

	e.SetUnused()
	flushTLBEntryFn(page.StartAddr())
}
