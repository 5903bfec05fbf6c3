package kernel

// Error is a plain error type usable before the heap allocator is available.
type Error struct {
	// Module is the name of the component that generated the error.
	Module string

	// Message describes what went wrong.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
