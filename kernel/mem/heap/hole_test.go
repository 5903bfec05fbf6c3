package heap

import (
	"testing"
	"unsafe"
)

func backing(size int) uintptr {
	buf := make([]byte, size)
	return uintptr(unsafe.Pointer(&buf[0]))
}

func TestAllocFirstFitExactSize(t *testing.T) {
	base := backing(4096)
	hs := NewHoles(base, 4096)

	addr, ok := hs.AllocFirstFit(64, 8)
	if !ok {
		t.Fatal("expected allocation to succeed")
	}
	if addr != base {
		t.Errorf("expected first allocation to come from the hole's base address 0x%x; got 0x%x", base, addr)
	}
}

func TestAllocFirstFitSplitsRemainder(t *testing.T) {
	base := backing(4096)
	hs := NewHoles(base, 4096)

	a1, ok := hs.AllocFirstFit(64, 8)
	if !ok {
		t.Fatal("expected first allocation to succeed")
	}
	a2, ok := hs.AllocFirstFit(64, 8)
	if !ok {
		t.Fatal("expected second allocation to succeed")
	}
	if a2 != a1+64 {
		t.Errorf("expected the second allocation to immediately follow the first; got 0x%x then 0x%x", a1, a2)
	}
}

func TestAllocExhaustsList(t *testing.T) {
	base := backing(128)
	hs := NewHoles(base, 128)

	if _, ok := hs.AllocFirstFit(256, 8); ok {
		t.Fatal("expected an over-sized allocation to fail")
	}
}

func TestDeallocMergesWithFollowingHole(t *testing.T) {
	base := backing(4096)
	hs := NewHoles(base, 4096)

	a, ok := hs.AllocFirstFit(64, 8)
	if !ok {
		t.Fatal("expected allocation to succeed")
	}

	hs.Dealloc(a, 64)

	// The freed block should have merged back with the remainder hole,
	// so a request for the whole remaining region (4096 minus the MinSize
	// front-padding allowance) should succeed again, starting at base.
	whole, ok := hs.AllocFirstFit(4096-MinSize(), 8)
	if !ok {
		t.Fatal("expected the freed block to have merged back into one hole spanning the region")
	}
	if whole != base {
		t.Errorf("expected the merged hole to start at 0x%x; got 0x%x", base, whole)
	}
}

func TestDeallocMergesWithPrecedingHole(t *testing.T) {
	base := backing(4096)
	hs := NewHoles(base, 4096)

	a1, _ := hs.AllocFirstFit(64, 8)
	a2, _ := hs.AllocFirstFit(64, 8)

	hs.Dealloc(a1, 64)
	hs.Dealloc(a2, 64)

	whole, ok := hs.AllocFirstFit(4096-MinSize(), 8)
	if !ok {
		t.Fatal("expected both freed blocks to merge with the trailing hole into one span")
	}
	if whole != base {
		t.Errorf("expected the merged hole to start at 0x%x; got 0x%x", base, whole)
	}
}

func TestAllocFirstFitHonorsAlignment(t *testing.T) {
	// The region's base is only guaranteed to be 8-byte aligned, so leave
	// room for up to MinSize+63 bytes of front padding before the block.
	base := backing(512)
	hs := NewHoles(base, 512)

	addr, ok := hs.AllocFirstFit(200, 64)
	if !ok {
		t.Fatal("expected an aligned allocation to succeed")
	}
	if addr%64 != 0 {
		t.Errorf("expected returned address to be 64-byte aligned; got 0x%x", addr)
	}
}
