package buffer

import "github.com/dshills/textengine/internal/engine/rope"

// View is a read-only materialization of buffer content at a fixed
// version. Ropes are immutable, so a View stays valid and consistent
// regardless of later edits to the buffer and is safe for concurrent
// use from other goroutines.
type View struct {
	rope       rope.Rope
	version    uint64
	lineEnding LineEnding
}

// Version returns the version this view materializes.
func (v *View) Version() uint64 { return v.version }

// LineEnding returns the line ending style of the content.
func (v *View) LineEnding() LineEnding { return v.lineEnding }

// Len returns the content length in bytes.
func (v *View) Len() ByteOffset { return v.rope.Len() }

// Text returns the full content as a string.
func (v *View) Text() string { return v.rope.String() }

// Slice returns the text in [start, end).
func (v *View) Slice(start, end ByteOffset) string {
	return v.rope.Slice(start, end)
}

// LineCount returns the number of lines.
func (v *View) LineCount() uint32 { return v.rope.LineCount() }

// LineText returns the text of a line without its line ending.
func (v *View) LineText(line uint32) string { return v.rope.LineText(line) }

// OffsetToPoint converts a byte offset to line/column.
func (v *View) OffsetToPoint(offset ByteOffset) Point {
	p := v.rope.OffsetToPoint(offset)
	return Point{Line: p.Line, Column: p.Column}
}

// PointToOffset converts line/column to a byte offset.
func (v *View) PointToOffset(p Point) ByteOffset {
	return v.rope.PointToOffset(rope.Point{Line: p.Line, Column: p.Column})
}

// Lines returns a lazy, restartable iterator over the view's lines.
func (v *View) Lines() *rope.LineIterator {
	return v.rope.Lines()
}
