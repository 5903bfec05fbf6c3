// Package vmm implements the recursive 4-level page-table manipulator: the
// Page/Frame/pageTableEntry primitives, the table walker, and the
// active/inactive address-space switcher built on top of the recursive
// self-mapping.
package vmm

import "talus/kernel/mem"

const (
	entryCount = 512

	// canonicalLow and canonicalHigh bound the two canonical address
	// halves on amd64: [0, canonicalLow) and [canonicalHigh, 2^64).
	canonicalLow  = uintptr(1) << 47
	canonicalHigh = ^uintptr(0) - (uintptr(1) << 47) + 1
)

// Page is a virtual 4 KiB page, identified by its index.
type Page uintptr

// PageFromAddress constructs the Page containing virtAddr. It panics if
// virtAddr does not lie in one of the two canonical address halves.
func PageFromAddress(virtAddr uintptr) Page {
	if virtAddr >= canonicalLow && virtAddr < canonicalHigh {
		panic("vmm: non-canonical address")
	}
	return Page(virtAddr >> mem.PageShift)
}

// StartAddr returns the virtual address of the first byte of this page.
func (p Page) StartAddr() uintptr {
	return uintptr(p) << mem.PageShift
}

// P4Index returns the 9-bit index into the L4 table for this page.
func (p Page) P4Index() uintptr { return (uintptr(p) >> 27) & 0x1FF }

// P3Index returns the 9-bit index into the L3 table for this page.
func (p Page) P3Index() uintptr { return (uintptr(p) >> 18) & 0x1FF }

// P2Index returns the 9-bit index into the L2 table for this page.
func (p Page) P2Index() uintptr { return (uintptr(p) >> 9) & 0x1FF }

// P1Index returns the 9-bit index into the L1 table for this page.
func (p Page) P1Index() uintptr { return uintptr(p) & 0x1FF }
