// Package console implements the kernel's sole output device: an
// EGA-compatible 80x25 VGA text framebuffer addressed directly by physical
// address. It is a byte sink, not a terminal emulator: no scrollback, no
// escape sequences, no VESA/graphics modes.
package console

import (
	"reflect"
	"talus/kernel/sync"
	"unsafe"
)

const (
	// DefaultWidth and DefaultHeight are the fixed text-mode geometry the
	// kernel initializes the console with; the bootloader's framebuffer
	// report is not consulted.
	DefaultWidth  = 80
	DefaultHeight = 25

	// DefaultPhysAddr is the standard VGA text-mode framebuffer address.
	DefaultPhysAddr = uintptr(0xB8000)

	tabWidth = 8

	// default light-gray-on-black colors, matching the standard CGA palette.
	defaultFg = 7
	defaultBg = 0
)

// clearChar is a blank cell: an all-zero cell, character code 0 on black,
// which VGA draws as an empty glyph.
var clearChar = uint16(0)

// Writer is a VGA text-mode framebuffer writer. It implements io.Writer and
// is safe for concurrent use; callers from interrupt context must be aware
// that Write may spin briefly if another CPU context holds the lock (there
// is exactly one hardware thread, so in practice this means "another
// interrupt handler currently mid-write").
type Writer struct {
	mu sync.Spinlock

	width, height uint32
	fb            []uint16

	col, row uint32
	fg, bg   uint8
}

// Active is the console instance attached to the live framebuffer; it is
// initialized once during boot by Init and used by kernel/kfmt/early and the
// post-heap kfmt package for all kernel output.
var Active Writer

// Init attaches the writer to the framebuffer at physAddr with the given
// character-cell geometry and clears the screen. Init must be called before
// any other package writes through Active.
func Init(width, height uint32, physAddr uintptr) {
	Active.width = width
	Active.height = height
	Active.fg = defaultFg
	Active.bg = defaultBg

	count := int(width * height)
	Active.fb = *(*[]uint16)(unsafe.Pointer(&reflect.SliceHeader{
		Data: physAddr,
		Len:  count,
		Cap:  count,
	}))

	Active.Clear()
}

// Clear blanks the framebuffer and resets the cursor to the top-left cell.
func (w *Writer) Clear() {
	w.mu.Acquire()
	defer w.mu.Release()

	for i := range w.fb {
		w.fb[i] = clearChar
	}
	w.col, w.row = 0, 0
}

// WriteByte writes a single byte to the console, interpreting '\n', '\r' and
// '\t' as cursor-control characters rather than glyphs.
func (w *Writer) WriteByte(b byte) error {
	w.mu.Acquire()
	w.writeByteLocked(b)
	w.mu.Release()
	return nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Acquire()
	for _, b := range p {
		w.writeByteLocked(b)
	}
	w.mu.Release()
	return len(p), nil
}

func (w *Writer) writeByteLocked(b byte) {
	switch b {
	case '\n':
		w.newline()
		return
	case '\r':
		w.col = 0
		return
	case '\t':
		w.col = ((w.col / (tabWidth + 1)) + 1) * (tabWidth + 1)
		if w.col >= w.width {
			w.newline()
		}
		return
	}

	// A full row wraps when the next glyph arrives, so a line of exactly
	// width characters followed by '\n' does not leave a blank row.
	if w.col >= w.width {
		w.newline()
	}

	attr := uint16(w.bg)<<4 | uint16(w.fg)
	w.fb[w.row*w.width+w.col] = uint16(b) | attr<<8
	w.col++
}

// newline moves the cursor to the start of the next line, scrolling the
// framebuffer contents upward by one row when already at the last row.
func (w *Writer) newline() {
	w.col = 0
	if w.row+1 < w.height {
		w.row++
		return
	}

	// Scroll: copy every row up by one, then clear the bottom row.
	copy(w.fb, w.fb[w.width:])
	for i := (w.height - 1) * w.width; i < w.height*w.width; i++ {
		w.fb[i] = clearChar
	}
}
