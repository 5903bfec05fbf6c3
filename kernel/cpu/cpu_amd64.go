package cpu

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the value stored in the CR2 register.
func ReadCR2() uint64

// FlushTLB reloads CR3 with its own current value, flushing every TLB entry
// except global pages. Used after rewiring the active L4's recursive slot,
// where a single invlpg is not enough.
func FlushTLB() {
	SwitchPDT(ActivePDT())
}

// EnableWriteProtect sets CR0's write-protect bit so the CPU enforces
// read-only page mappings even while running at ring 0.
func EnableWriteProtect()

// EnableNX sets the no-execute-enable bit in the EFER MSR so the
// NO_EXECUTE page-table flag is honored.
func EnableNX()

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// Breakpoint executes INT 3, trapping to the breakpoint exception handler.
// Used as the kernel's own liveness probe once interrupts are wired up.
func Breakpoint()

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}
