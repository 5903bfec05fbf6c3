package mem

// Fixed virtual layout constants for the regions the kernel reserves for
// itself once the address space has been remapped. Chosen to sit well
// above any identity-mapped kernel/boot-info range; the stack-allocator
// range begins at the first page after the heap.
const (
	// HeapStart is the virtual address of the first byte of the kernel
	// heap.
	HeapStart = uintptr(0x_4444_4444_0000)

	// HeapSize is the kernel heap's initial size. The heap can grow via
	// Extend, but boots with this much backing memory mapped.
	HeapSize = uintptr(100 * Kb)

	// StackAllocatorPages is the number of pages reserved for the kernel
	// stack allocator's range, immediately above the heap.
	StackAllocatorPages = uintptr(100)
)
