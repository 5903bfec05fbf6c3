// Package control ties together the frame allocator, the page-table
// manipulator and the stack allocator into the one-shot kernel remap and
// the MemoryController handed to the rest of the kernel.
package control

import (
	"talus/kernel/kfmt/early"
	"talus/kernel/mem"
	"talus/kernel/mem/pmm"
	"talus/kernel/mem/pmm/allocator"
	"talus/kernel/mem/stack"
	"talus/kernel/mem/vmm"
	"talus/kernel/multiboot"
)

// tempPageAddr is a fixed lower-half virtual address reserved purely for the
// remap's own bookkeeping. It is never otherwise mapped.
const tempPageAddr = uintptr(0xCAFEBABE000)

var initialized bool

// MemoryController owns the kernel's address space, physical frame
// allocator and stack allocator once boot-time remapping is complete.
type MemoryController struct {
	activeTable *vmm.ActivePageTable
	frameAlloc  *allocator.AreaAllocator
	stackAlloc  *stack.StackAllocator
}

// Alloc reserves a size-page stack (preceded by a guard page) out of the
// controller's stack-allocator range.
func (mc *MemoryController) Alloc(size uintptr) (stack.Stack, bool) {
	return mc.stackAlloc.Alloc(mc.activeTable.Mapper, mc.frameAlloc, size)
}

// kernelRemap builds a fresh page-table hierarchy mapping every allocated
// ELF section with its correct permissions, identity-maps the VGA buffer
// and the boot-info blob, switches to it, and unmaps the old L4 frame.
//
// Unmapping the old L4 frame assumes the loader's own stack sits
// immediately above it in physical memory, as it does for every loader
// this core targets — the unmap is what turns that address into a guard
// page beneath the kernel stack, per the kernel-remap contract.
func kernelRemap(a *allocator.AreaAllocator) *vmm.ActivePageTable {
	tempPage := vmm.NewTempPage(tempPageAddr, a)
	active := vmm.NewActivePageTable()

	frame, err := a.AllocFrame()
	if err != nil {
		panic(err)
	}
	inactive := vmm.NewInactivePageTable(frame, active, tempPage)

	active.With(inactive, tempPage, func(m vmm.Mapper) {
		early.Printf("\nmapping kernel sections\n")

		multiboot.VisitElfSections(func(name string, flags multiboot.ElfSectionFlag, address uintptr, size uint64) {
			if flags&multiboot.ElfSectionAllocated == 0 {
				return
			}
			if address%uintptr(mem.PageSize) != 0 {
				panic("control: ELF section is not page-aligned")
			}

			early.Printf("\t%s: 0x%x (%d bytes)\n", name, address, size)

			ptFlags := vmm.ElfFlagsToEntryFlags(
				true,
				flags&multiboot.ElfSectionWritable != 0,
				flags&multiboot.ElfSectionExecutable != 0,
			)

			startFrame := pmm.Frame(address / uintptr(mem.PageSize))
			endFrame := pmm.Frame((address + uintptr(size) - 1) / uintptr(mem.PageSize))
			for f := startFrame; f <= endFrame; f++ {
				m.Idmap(f, ptFlags, a)
			}
		})

		const vgaPhysAddr = 0xB8000
		m.Idmap(pmm.Frame(vgaPhysAddr/mem.PageSize), vmm.FlagWritable, a)

		bootStart := pmm.Frame(multiboot.InfoStartAddr() / uintptr(mem.PageSize))
		bootEnd := pmm.Frame((multiboot.InfoEndAddr() - 1) / uintptr(mem.PageSize))
		for f := bootStart; f <= bootEnd; f++ {
			m.Idmap(f, vmm.FlagPresent, a)
		}
	})

	oldTable := active.Switch(inactive)

	oldP4Page := vmm.PageFromAddress(oldTable.P4Frame().Address())
	active.Unmap(oldP4Page)
	early.Printf("\nguard page at 0x%x\n", oldP4Page.StartAddr())

	return active
}

// Init parses the bootloader's memory map and ELF sections, builds the
// physical frame allocator, performs the one-shot kernel remap, reserves
// and maps the heap range, and reserves the stack-allocator range. Must be
// called exactly once.
func Init() *MemoryController {
	if initialized {
		panic("control: Init called twice")
	}
	initialized = true

	early.Printf("memory blocks:\n")
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		early.Printf("\tstart: 0x%x, len: 0x%x, type: %s\n", uintptr(region.PhysAddress), uintptr(region.Length), region.Type.String())
		return true
	})

	var kernelStart, kernelEnd uintptr
	haveKernelRange := false
	multiboot.VisitElfSections(func(name string, flags multiboot.ElfSectionFlag, address uintptr, size uint64) {
		if flags&multiboot.ElfSectionAllocated == 0 {
			return
		}
		if !haveKernelRange || address < kernelStart {
			kernelStart = address
		}
		if end := address + uintptr(size); !haveKernelRange || end > kernelEnd {
			kernelEnd = end
		}
		haveKernelRange = true
	})
	if !haveKernelRange {
		panic("control: no allocated ELF sections reported")
	}

	frameAlloc := allocator.NewAreaAllocator(kernelStart, kernelEnd, multiboot.InfoStartAddr(), multiboot.InfoEndAddr())

	activeTable := kernelRemap(frameAlloc)

	heapStart := vmm.PageFromAddress(mem.HeapStart)
	heapEnd := vmm.PageFromAddress(mem.HeapStart + mem.HeapSize - 1)
	for p := heapStart; p <= heapEnd; p++ {
		activeTable.Map(p, vmm.FlagWritable, frameAlloc)
	}

	stackRangeStart := heapEnd + 1
	stackRangeEnd := stackRangeStart + vmm.Page(mem.StackAllocatorPages)
	stackAlloc := stack.NewStackAllocator(stackRangeStart, stackRangeEnd)

	early.Printf("\nkernel\t\tat: 0x%x - 0x%x\n", kernelStart, kernelEnd)
	early.Printf("multiboot\tat: 0x%x - 0x%x\n", multiboot.InfoStartAddr(), multiboot.InfoEndAddr())
	early.Printf("heap\t\tat: 0x%x - 0x%x\n", mem.HeapStart, mem.HeapStart+mem.HeapSize-1)
	early.Printf("stack\t\tat: 0x%x - 0x%x\n", stackRangeStart.StartAddr(), stackRangeEnd.StartAddr())

	return &MemoryController{
		activeTable: activeTable,
		frameAlloc:  frameAlloc,
		stackAlloc:  stackAlloc,
	}
}
