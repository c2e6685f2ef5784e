package rope

import "strings"

// ByteOffset is a byte position within a rope.
type ByteOffset = int64

// Point is a 0-indexed line and column position. Column is measured in
// bytes from the start of the line.
type Point struct {
	Line   uint32
	Column uint32
}

// Rope is an immutable text sequence. The zero value is an empty rope.
type Rope struct {
	root *node
}

// New creates an empty rope.
func New() Rope {
	return Rope{}
}

// FromString creates a rope from a string.
func FromString(s string) Rope {
	if len(s) == 0 {
		return New()
	}

	leaves := make([]*node, 0, len(s)/MaxLeafBytes+1)
	for len(s) > 0 {
		n := MaxLeafBytes
		if n > len(s) {
			n = len(s)
		}
		// Do not split a CRLF pair across leaves; it keeps slicing
		// simple for callers that scan line endings.
		if n > 1 && n < len(s) && s[n-1] == '\r' && s[n] == '\n' {
			n--
		}
		leaves = append(leaves, newLeaf(s[:n]))
		s = s[n:]
	}
	return Rope{root: buildBalanced(leaves)}
}

// Len returns the total byte length.
func (r Rope) Len() ByteOffset {
	if r.root == nil {
		return 0
	}
	return r.root.length
}

// IsEmpty returns true if the rope contains no text.
func (r Rope) IsEmpty() bool {
	return r.Len() == 0
}

// LineCount returns the number of lines (newlines + 1).
func (r Rope) LineCount() uint32 {
	if r.root == nil {
		return 1
	}
	return uint32(r.root.newlines) + 1
}

// String returns the full text. Use sparingly for large ropes.
func (r Rope) String() string {
	return r.Slice(0, r.Len())
}

// Slice returns the text in [start, end). Out-of-range bounds are
// clamped to the rope.
func (r Rope) Slice(start, end ByteOffset) string {
	if start < 0 {
		start = 0
	}
	if end > r.Len() {
		end = r.Len()
	}
	if r.root == nil || start >= end {
		return ""
	}

	var sb strings.Builder
	sb.Grow(int(end - start))
	writeRange(r.root, start, end, &sb)
	return sb.String()
}

// ByteAt returns the byte at the given offset.
func (r Rope) ByteAt(offset ByteOffset) (byte, bool) {
	if offset < 0 || offset >= r.Len() {
		return 0, false
	}
	return byteAt(r.root, offset), true
}

// Insert returns a new rope with text inserted at the given offset.
// The offset is clamped to the rope bounds.
func (r Rope) Insert(offset ByteOffset, text string) Rope {
	if len(text) == 0 {
		return r
	}
	if offset < 0 {
		offset = 0
	}
	if offset > r.Len() {
		offset = r.Len()
	}

	left, right := split(r.root, offset)
	mid := FromString(text).root
	return Rope{root: concat(concat(left, mid), right)}
}

// Delete returns a new rope with [start, end) removed.
func (r Rope) Delete(start, end ByteOffset) Rope {
	if start < 0 {
		start = 0
	}
	if end > r.Len() {
		end = r.Len()
	}
	if start >= end {
		return r
	}

	left, rest := split(r.root, start)
	_, right := split(rest, end-start)
	return Rope{root: concat(left, right)}
}

// Replace returns a new rope with [start, end) replaced by text.
func (r Rope) Replace(start, end ByteOffset, text string) Rope {
	return r.Delete(start, end).Insert(start, text)
}

// Line addressing

// LineStartOffset returns the byte offset of the start of a line.
// Lines past the end report the rope length.
func (r Rope) LineStartOffset(line uint32) ByteOffset {
	if line == 0 {
		return 0
	}
	if r.root == nil || int64(line) > r.root.newlines {
		return r.Len()
	}
	return nthNewline(r.root, int64(line)-1) + 1
}

// LineEndOffset returns the byte offset of the end of a line, before
// its newline byte.
func (r Rope) LineEndOffset(line uint32) ByteOffset {
	if r.root == nil || int64(line) >= r.root.newlines {
		return r.Len()
	}
	return nthNewline(r.root, int64(line))
}

// LineText returns the text of a line without its trailing newline.
// A trailing '\r' (CRLF ending) is also stripped.
func (r Rope) LineText(line uint32) string {
	s := r.Slice(r.LineStartOffset(line), r.LineEndOffset(line))
	return strings.TrimSuffix(s, "\r")
}

// OffsetToPoint converts a byte offset to a line/column position.
// Offsets beyond the rope are clamped to the final position.
func (r Rope) OffsetToPoint(offset ByteOffset) Point {
	if offset < 0 {
		offset = 0
	}
	if offset > r.Len() {
		offset = r.Len()
	}
	if r.root == nil {
		return Point{}
	}

	line := uint32(newlinesBefore(r.root, offset))
	start := r.LineStartOffset(line)
	return Point{Line: line, Column: uint32(offset - start)}
}

// PointToOffset converts a line/column position to a byte offset.
// Columns past the end of the line clamp to the end of the line.
func (r Rope) PointToOffset(p Point) ByteOffset {
	start := r.LineStartOffset(p.Line)
	end := r.LineEndOffset(p.Line)

	offset := start + int64(p.Column)
	if offset > end {
		offset = end
	}
	return offset
}
