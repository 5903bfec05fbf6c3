package irq

import (
	"talus/kernel/cpu"
	"talus/kernel/kfmt"
)

// handleBreakpoint prints the trapped location and returns control to it.
func handleBreakpoint(f *Frame, r *Regs) {
	kfmt.Printf("\nEXCEPTION: BREAKPOINT\n")
	f.Print()
	r.Print()
}

// handleDivideByZero prints the faulting location and halts.
func handleDivideByZero(f *Frame, r *Regs) {
	kfmt.Printf("\nEXCEPTION: DIVIDE BY ZERO\n")
	f.Print()
	r.Print()
	haltForever()
}

// handleInvalidOpcode prints the faulting instruction pointer and halts.
func handleInvalidOpcode(f *Frame, r *Regs) {
	kfmt.Printf("\nEXCEPTION: INVALID OPCODE [0x%x]\n", f.RIP)
	f.Print()
	r.Print()
	haltForever()
}

// handlePageFault reads the faulting address from CR2, prints it alongside
// the error code, and halts.
func handlePageFault(errCode uint64, f *Frame, r *Regs) {
	kfmt.Printf("\nEXCEPTION: PAGE FAULT [0x%x] ec=0x%x\n", uintptr(cpu.ReadCR2()), errCode)
	f.Print()
	r.Print()
	haltForever()
}

// handleDoubleFault prints the error code and halts. Running on its own IST
// stack (see gdt.Init / setGate) is what keeps a double fault caused by a
// corrupted kernel stack from cascading into a triple fault.
func handleDoubleFault(errCode uint64, f *Frame, r *Regs) {
	kfmt.Printf("\nEXCEPTION: DOUBLE FAULT ec=0x%x\n", errCode)
	f.Print()
	r.Print()
	haltForever()
}

func haltForever() {
	for {
		cpu.Halt()
	}
}
