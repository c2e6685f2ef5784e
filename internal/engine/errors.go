package engine

import (
	"fmt"

	"github.com/dshills/textengine/internal/engine/buffer"
	"github.com/dshills/textengine/internal/engine/history"
)

// Errors returned by engine operations, re-exported from the packages
// that produce them so callers only import engine.
var (
	// ErrOffsetOutOfRange indicates an offset outside the buffer content.
	ErrOffsetOutOfRange = buffer.ErrOffsetOutOfRange

	// ErrRangeInvalid indicates a negative or out-of-bounds edit range.
	ErrRangeInvalid = buffer.ErrRangeInvalid

	// ErrVersionNotFound indicates a version with no retained record.
	ErrVersionNotFound = buffer.ErrVersionNotFound

	// ErrNothingToUndo indicates the undo stack is empty.
	ErrNothingToUndo = history.ErrNothingToUndo

	// ErrNothingToRedo indicates the redo stack is empty.
	ErrNothingToRedo = history.ErrNothingToRedo
)

// BufferError wraps a failure with the operation and buffer it hit.
type BufferError struct {
	Op   string
	ID   buffer.ID
	Path string
	Err  error
}

func (e *BufferError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s buffer %d: %v", e.Op, e.ID, e.Err)
}

func (e *BufferError) Unwrap() error { return e.Err }
