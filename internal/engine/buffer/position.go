package buffer

import (
	"fmt"
	"sync/atomic"
)

// ByteOffset is a byte position in the buffer content.
type ByteOffset = int64

// Point is a 0-indexed line and column position. Column is measured in
// bytes from the start of the line.
type Point struct {
	Line   uint32
	Column uint32
}

// String returns a human-readable representation of the point.
func (p Point) String() string {
	return fmt.Sprintf("(%d:%d)", p.Line, p.Column)
}

// ID uniquely identifies a buffer. IDs are assigned from a process
// wide counter and are never reused within a process lifetime.
type ID uint64

var idCounter uint64

// NewID allocates a fresh buffer ID.
func NewID() ID {
	return ID(atomic.AddUint64(&idCounter, 1))
}

// String returns a human-readable representation of the ID.
func (id ID) String() string {
	return fmt.Sprintf("buf-%d", uint64(id))
}

// CompressionState describes where a buffer sits in the idle
// compression lifecycle.
type CompressionState uint8

const (
	// StateActive means the buffer was recently edited or read.
	StateActive CompressionState = iota
	// StateIdle means the inactivity threshold has passed; the buffer
	// is eligible for compression on the next sweep.
	StateIdle
	// StateCompressed means the delta log and snapshot are held in
	// compressed form and the rope has been released. Any access
	// decompresses first.
	StateCompressed
)

// String returns a string representation of the state.
func (s CompressionState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}
