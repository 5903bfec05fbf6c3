package vmm

import "talus/kernel/mem/pmm"

// PTFlags are the flag bits of a page-table entry.
type PTFlags uint64

const (
	// FlagPresent marks the entry as mapped.
	FlagPresent PTFlags = 1 << 0

	// FlagWritable allows writes through this mapping.
	FlagWritable PTFlags = 1 << 1

	// FlagUserAccessible allows ring-3 access through this mapping.
	FlagUserAccessible PTFlags = 1 << 2

	// FlagWriteThrough enables write-through caching for this mapping.
	FlagWriteThrough PTFlags = 1 << 3

	// FlagNoCache disables caching for this mapping.
	FlagNoCache PTFlags = 1 << 4

	// FlagAccessed is set by the CPU on first access.
	FlagAccessed PTFlags = 1 << 5

	// FlagDirty is set by the CPU on first write.
	FlagDirty PTFlags = 1 << 6

	// FlagHugePage marks a L3/L2 entry as mapping a large page directly
	// rather than pointing at a next-level table.
	FlagHugePage PTFlags = 1 << 7

	// FlagGlobal marks the mapping as global (not flushed on CR3 reload).
	FlagGlobal PTFlags = 1 << 8

	// FlagNoExecute disables instruction fetches through this mapping.
	FlagNoExecute PTFlags = 1 << 63
)

// frameAddrMask isolates bits 12..51, where the physical frame base lives.
const frameAddrMask = 0x000F_FFFF_FFFF_F000

// pageTableEntry is one 64-bit slot of a page table.
type pageTableEntry uint64

// IsUnused reports whether the entry is entirely zero.
func (e pageTableEntry) IsUnused() bool { return e == 0 }

// SetUnused clears the entry. Per the data model, when PRESENT is clear the
// whole entry must be zero — this is the only way to clear PRESENT.
func (e *pageTableEntry) SetUnused() { *e = 0 }

// Flags returns the flag bits of the entry.
func (e pageTableEntry) Flags() PTFlags {
	return PTFlags(e) &^ PTFlags(frameAddrMask)
}

// Frame returns the frame this entry points to, or pmm.InvalidFrame if the
// entry is not PRESENT.
func (e pageTableEntry) Frame() pmm.Frame {
	if e.Flags()&FlagPresent == 0 {
		return pmm.InvalidFrame
	}
	return pmm.Frame((uint64(e) & frameAddrMask) >> 12)
}

// Set points this entry at frame with the given flags (PRESENT is added
// automatically). It panics if frame's address does not fit in bits 12..51.
func (e *pageTableEntry) Set(frame pmm.Frame, flags PTFlags) {
	addr := uint64(frame.Address())
	if addr&^uint64(frameAddrMask) != 0 {
		panic("vmm: frame address does not fit in a page-table entry")
	}
	*e = pageTableEntry(addr | uint64(flags|FlagPresent))
}

// ElfFlagsToEntryFlags derives page-table entry flags from a Multiboot2 ELF
// section's flags, per the kernel remapper's mapping rule: PRESENT if
// allocated, WRITABLE if writable, NO_EXECUTE if not executable.
func ElfFlagsToEntryFlags(allocated, writable, executable bool) PTFlags {
	var f PTFlags
	if allocated {
		f |= FlagPresent
	}
	if writable {
		f |= FlagWritable
	}
	if !executable {
		f |= FlagNoExecute
	}
	return f
}
