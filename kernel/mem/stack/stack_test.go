package stack

import (
	"talus/kernel"
	"talus/kernel/mem"
	"talus/kernel/mem/pmm"
	"talus/kernel/mem/vmm"
	"testing"
)

type stubAllocator struct{ next pmm.Frame }

func (a *stubAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	a.next++
	return a.next, nil
}

// fakeMapper records every page Alloc asked it to map, standing in for
// vmm.Mapper so these tests never touch the real recursive mapping.
type fakeMapper struct {
	mapped []vmm.Page
}

func (f *fakeMapper) Map(page vmm.Page, flags vmm.PTFlags, alloc vmm.FrameAllocator) pmm.Frame {
	f.mapped = append(f.mapped, page)
	frame, _ := alloc.AllocFrame()
	return frame
}

func TestAllocRejectsZeroSize(t *testing.T) {
	sa := NewStackAllocator(vmm.Page(0), vmm.Page(100))
	if _, ok := sa.Alloc(&fakeMapper{}, &stubAllocator{}, 0); ok {
		t.Fatal("expected a zero-size request to be rejected")
	}
}

func TestAllocMapsExactlyTheStackPagesNotTheGuardPage(t *testing.T) {
	const size = 4
	sa := NewStackAllocator(vmm.Page(0), vmm.Page(100))
	m := &fakeMapper{}

	if _, ok := sa.Alloc(m, &stubAllocator{}, size); !ok {
		t.Fatal("expected allocation to succeed")
	}

	if len(m.mapped) != size {
		t.Fatalf("expected exactly %d pages mapped; got %d", size, len(m.mapped))
	}
	for i, p := range m.mapped {
		if p == vmm.Page(0) {
			t.Errorf("guard page (0) must never be mapped")
		}
		if int(p) != i+1 {
			t.Errorf("expected stack pages to be contiguous starting at 1; page %d was %d", i, p)
		}
	}
}

func TestAllocReturnsBoundsMatchingSize(t *testing.T) {
	const size = 4
	sa := NewStackAllocator(vmm.Page(0), vmm.Page(100))

	s, ok := sa.Alloc(&fakeMapper{}, &stubAllocator{}, size)
	if !ok {
		t.Fatal("expected allocation to succeed")
	}

	// guard page is page 0; the stack itself is pages [1, size].
	expectedBottom := vmm.Page(1).StartAddr()
	expectedTop := vmm.Page(size).StartAddr() + uintptr(mem.PageSize)

	if s.Bottom() != expectedBottom {
		t.Errorf("expected bottom 0x%x; got 0x%x", expectedBottom, s.Bottom())
	}
	if s.Top() != expectedTop {
		t.Errorf("expected top 0x%x; got 0x%x", expectedTop, s.Top())
	}
}

func TestSuccessiveAllocsDoNotOverlap(t *testing.T) {
	sa := NewStackAllocator(vmm.Page(0), vmm.Page(100))
	alloc := &stubAllocator{}
	m := &fakeMapper{}

	s1, ok := sa.Alloc(m, alloc, 2)
	if !ok {
		t.Fatal("expected first allocation to succeed")
	}
	s2, ok := sa.Alloc(m, alloc, 2)
	if !ok {
		t.Fatal("expected second allocation to succeed")
	}

	if s2.Bottom() < s1.Top() {
		t.Errorf("expected second stack (bottom 0x%x) to start at or after the first's top (0x%x) plus a guard page",
			s2.Bottom(), s1.Top())
	}
}

func TestAllocFailsWhenRangeExhausted(t *testing.T) {
	sa := NewStackAllocator(vmm.Page(0), vmm.Page(4))
	if _, ok := sa.Alloc(&fakeMapper{}, &stubAllocator{}, 100); ok {
		t.Fatal("expected an over-sized request against a small range to fail")
	}
}
