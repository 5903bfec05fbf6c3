package main

import "talus/kernel"

// multibootInfoPtr is populated by the rt0 assembly stub before it jumps
// here, with the physical address the bootloader left in EBX. It is a
// package-level var rather than a literal argument so the compiler can't
// inline it away and drop Kmain from the generated object file.
var multibootInfoPtr uintptr

// main is the only Go symbol visible from the rt0 code. rt0 sets up a GDT,
// a minimal g0 stack and jumps here; main is not expected to return, and if
// it does the rt0 code halts the CPU.
func main() {
	kernel.Kmain(multibootInfoPtr)
}
