package kernel

import (
	"talus/device/console"
	"talus/kernel/cpu"
	"talus/kernel/gdt"
	"talus/kernel/irq"
	"talus/kernel/kfmt"
	"talus/kernel/kfmt/early"
	"talus/kernel/mem"
	"talus/kernel/mem/control"
	"talus/kernel/mem/heap"
	"talus/kernel/multiboot"
)

// Kmain is the kernel's boot sequence, called by main (boot.go) with the
// physical address of the Multiboot2 info structure the bootloader
// left behind, and is not expected to return.
//
//go:noinline
func Kmain(multibootInfoPtr uintptr) {
	console.Init(console.DefaultWidth, console.DefaultHeight, console.DefaultPhysAddr)

	multiboot.SetInfoPtr(multibootInfoPtr)

	cpu.EnableNX()
	cpu.EnableWriteProtect()

	mc := control.Init()

	heap.Active.Init(mem.HeapStart, mem.HeapSize)
	kfmt.SetOutputSink(&console.Active)

	gdt.Init(mc)
	irq.Init()

	early.Printf("\nstarting talus\n")

	cpu.Breakpoint()

	for {
		cpu.Halt()
	}
}
