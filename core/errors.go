package core

import "fmt"

// AlignmentError is returned by main memory when an address does not meet
// the alignment required by the requested operation (spec.md §4.1).
type AlignmentError struct {
	Addr      uint64
	Alignment int
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("address 0x%x is not aligned to %d bytes", e.Addr, e.Alignment)
}

// RangeError is returned by main memory when an address falls outside the
// backing store (spec.md §4.1).
type RangeError struct {
	Addr uint64
	Size uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("address 0x%x is out of range for memory of size %d bytes", e.Addr, e.Size)
}
