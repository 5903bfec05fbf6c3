package allocator

import (
	"encoding/binary"
	"talus/kernel/mem"
	"talus/kernel/mem/pmm"
	"talus/kernel/multiboot"
	"testing"
	"unsafe"
)

// mockInfo holds the blob built by mockMemMap. The multiboot package keeps
// only its raw address, so the blob lives here, on the heap, to stay valid
// after mockMemMap returns.
var mockInfo []byte

// mockMemMap builds a synthetic Multiboot2 blob exposing a single available
// region [0, length) and points the multiboot package at it.
func mockMemMap(length uint64) {
	const (
		hdrSize   = 8
		tagHdr    = 8
		mmapHdr   = 8
		entrySize = 24
		endSize   = 8
	)
	total := hdrSize + tagHdr + mmapHdr + entrySize + endSize
	buf := make([]byte, total)
	mockInfo = buf

	binary.LittleEndian.PutUint32(buf[0:], uint32(total))

	off := hdrSize
	binary.LittleEndian.PutUint32(buf[off:], 6) // tagMemoryMap
	binary.LittleEndian.PutUint32(buf[off+4:], uint32(tagHdr+mmapHdr+entrySize))
	binary.LittleEndian.PutUint32(buf[off+8:], entrySize)

	entryOff := off + tagHdr + mmapHdr
	binary.LittleEndian.PutUint64(buf[entryOff:], 0)
	binary.LittleEndian.PutUint64(buf[entryOff+8:], length)
	binary.LittleEndian.PutUint32(buf[entryOff+16:], uint32(multiboot.MemAvailable))

	endOff := entryOff + entrySize
	binary.LittleEndian.PutUint32(buf[endOff:], 0)
	binary.LittleEndian.PutUint32(buf[endOff+4:], endSize)

	multiboot.SetInfoPtr(uintptr(unsafe.Pointer(&buf[0])))
}

func TestAreaAllocatorExcludesKernelAndBootInfo(t *testing.T) {
	mockMemMap(0x100000)

	a := NewAreaAllocator(0x10000, 0x20000-1, 0x30000, 0x30100-1)

	pageSize := uint64(mem.PageSize)
	var got []pmm.Frame
	for i := 0; i < 4; i++ {
		f, err := a.AllocFrame()
		if err != nil {
			t.Fatalf("unexpected error on alloc %d: %v", i, err)
		}
		got = append(got, f)
	}

	for i, f := range got {
		want := pmm.Frame(i)
		if f != want {
			t.Fatalf("alloc %d: expected frame %d, got %d", i, want, f)
		}
	}

	// Drain up to the kernel boundary (frame 0x10-1 = 0xF) then expect the
	// allocator to jump past the kernel range to frame 0x20000/pageSize.
	for {
		f, err := a.AllocFrame()
		if err != nil {
			t.Fatal("ran out of memory before reaching the kernel boundary")
		}
		if f == pmm.Frame(0x10000/pageSize)-1 {
			break
		}
	}

	f, err := a.AllocFrame()
	if err != nil {
		t.Fatal(err)
	}
	if f != pmm.Frame(0x20000/pageSize) {
		t.Fatalf("expected allocator to skip the kernel range, got frame %#x", f)
	}

	// Drain up to just before the boot-info region and confirm the jump
	// past it too.
	for f != pmm.Frame(0x30000/pageSize)-1 {
		f, err = a.AllocFrame()
		if err != nil {
			t.Fatal("ran out of memory before reaching the boot-info boundary")
		}
	}

	f, err = a.AllocFrame()
	if err != nil {
		t.Fatal(err)
	}
	if f != pmm.Frame(0x31000/pageSize) {
		t.Fatalf("expected allocator to skip the boot-info range, got frame %#x", f)
	}
}

func TestAreaAllocatorNeverRepeatsFrame(t *testing.T) {
	mockMemMap(0x10000)
	a := NewAreaAllocator(0, 0, 0, 0)

	seen := make(map[pmm.Frame]bool)
	for i := 0; i < 10; i++ {
		f, err := a.AllocFrame()
		if err != nil {
			t.Fatal(err)
		}
		if seen[f] {
			t.Fatalf("frame %#x handed out twice", f)
		}
		seen[f] = true
	}
}
