// Package gdt builds the kernel's Global Descriptor Table and Task State
// Segment: a kernel code segment and a TSS descriptor whose Interrupt Stack
// Table slot 0 points at a dedicated double-fault stack.
package gdt

import (
	"talus/kernel/mem/control"
	"unsafe"
)

const (
	flagExecutable  = uint64(1) << 43
	flagUserSegment = uint64(1) << 44
	flagPresent     = uint64(1) << 47
	flagLongMode    = uint64(1) << 53

	// availableTSS is the System-Segment type field (bits 40..44) for an
	// available 64-bit TSS.
	availableTSS = uint64(0b1001) << 40
)

// Descriptor is either a one-entry user-segment descriptor or a two-entry
// (128-bit) system-segment descriptor.
type Descriptor struct {
	lo, hi uint64
	system bool
}

// KernelCodeSegment returns a 64-bit ring-0 code segment descriptor.
func KernelCodeSegment() Descriptor {
	return Descriptor{lo: flagExecutable | flagUserSegment | flagPresent | flagLongMode}
}

// TSSSegment returns the two-entry system-segment descriptor for tss.
func TSSSegment(tss *TSS) Descriptor {
	addr := uint64(uintptr(unsafe.Pointer(tss)))
	limit := uint64(unsafe.Sizeof(TSS{})) - 1

	lo := flagPresent
	lo |= limit & 0xFFFF
	lo |= (addr & 0xFFFFFF) << 16
	lo |= availableTSS
	lo |= ((addr >> 24) & 0xFF) << 56

	hi := (addr >> 32) & 0xFFFFFFFF

	return Descriptor{lo: lo, hi: hi, system: true}
}

// Selector is a GDT entry index with RPL 0.
type Selector uint16

// Value returns the selector's raw 16-bit encoding (index<<3 | RPL 0), as
// stored in a segment register or an IDT gate's selector field.
func (s Selector) Value() uint16 { return uint16(s) << 3 }

// GDT is a fixed 8-entry descriptor table; entry 0 is the reserved null
// descriptor. Entries are appended starting at index 1 and never removed.
type GDT struct {
	entries [8]uint64
	next    int
}

// New returns an empty GDT with only the null descriptor populated.
func New() *GDT {
	return &GDT{next: 1}
}

func (g *GDT) push(v uint64) int {
	if g.next >= len(g.entries) {
		panic("gdt: descriptor table is full")
	}
	i := g.next
	g.entries[i] = v
	g.next++
	return i
}

// AddEntry appends d to the table and returns its selector.
func (g *GDT) AddEntry(d Descriptor) Selector {
	i := g.push(d.lo)
	if d.system {
		g.push(d.hi)
	}
	return Selector(i)
}

// Load issues LGDT against this table's storage. g must not be moved or
// garbage collected afterward; callers keep it in a package-level var.
func (g *GDT) Load() {
	lgdt(uint64(uintptr(unsafe.Pointer(&g.entries[0]))), uint16(len(g.entries)*8-1))
}

// lgdt loads the GDTR with a descriptor-table pointer built entirely inside
// the assembly body, avoiding Go struct padding that would otherwise corrupt
// the {limit, base} layout the CPU expects.
func lgdt(base uint64, limit uint16)

// reloadCS performs a far return to selector, reloading CS with it. Used
// immediately after lgdt since the CPU never reads CS from a plain mov.
func reloadCS(selector uint64)

// loadTSS issues LTR against selector.
func loadTSS(selector uint64)

// TSS is the 64-bit Task State Segment layout: no I/O permission bitmap, and
// only the Interrupt Stack Table is used by this kernel. The hardware layout
// places 64-bit fields at 4-byte offsets, so each one is stored as a
// {low, high} pair of uint32 halves to keep Go from inserting padding.
type TSS struct {
	_         uint32
	rsp       [3 * 2]uint32
	_         [2]uint32
	ist       [7 * 2]uint32
	_         [2]uint32
	_         uint16
	ioMapBase uint16
}

// doubleFaultIST is the IST slot (1-based gate encoding selects ist[0] via
// value 1) carrying the dedicated double-fault stack.
const doubleFaultIST = 0

var (
	activeTSS *TSS
	activeGDT *GDT

	// codeSelector is set by Init and read (through CodeSelector) by the
	// interrupt-descriptor-table setup, which needs it to populate each gate.
	codeSelector Selector
)

// CodeSelector returns the kernel code segment selector installed by Init.
// It is only valid after Init has run.
func CodeSelector() Selector { return codeSelector }

// DoubleFaultIST is the IST index (as stored in an IDT gate) selecting the
// double-fault stack.
const DoubleFaultIST = doubleFaultIST + 1

// Init allocates the double-fault stack, builds and loads the TSS and GDT,
// reloads CS and loads TR. Must be called exactly once, after the kernel
// remap and stack allocator are ready.
func Init(mc *control.MemoryController) {
	if activeTSS != nil {
		panic("gdt: Init called twice")
	}

	dfStack, ok := mc.Alloc(1)
	if !ok {
		panic("gdt: could not allocate the double-fault stack")
	}

	tss := &TSS{}
	tss.ist[2*doubleFaultIST] = uint32(dfStack.Top())
	tss.ist[2*doubleFaultIST+1] = uint32(uint64(dfStack.Top()) >> 32)
	activeTSS = tss

	g := New()
	codeSelector = g.AddEntry(KernelCodeSegment())
	tssSelector := g.AddEntry(TSSSegment(tss))
	activeGDT = g

	g.Load()
	reloadCS(uint64(codeSelector.Value()))
	loadTSS(uint64(tssSelector.Value()))
}
