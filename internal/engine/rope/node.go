package rope

import (
	"math/bits"
	"strings"
)

// MaxLeafBytes is the largest text chunk stored in a single leaf.
// Leaves that grow beyond this are split on the next structural edit.
const MaxLeafBytes = 512

// node is a rope tree node. A node is either a leaf (left and right are
// nil, text holds the chunk) or an internal node (text is empty, both
// children are non-nil).
type node struct {
	left, right *node
	text        string

	length   int64  // total bytes in this subtree
	newlines int64  // total '\n' bytes in this subtree
	height   uint32 // 1 for leaves
}

func newLeaf(s string) *node {
	return &node{
		text:     s,
		length:   int64(len(s)),
		newlines: int64(strings.Count(s, "\n")),
		height:   1,
	}
}

func (n *node) isLeaf() bool {
	return n.left == nil
}

// concat joins two subtrees, rebuilding when the result drifts too far
// from balanced. Either side may be nil.
func concat(a, b *node) *node {
	if a == nil || a.length == 0 {
		return b
	}
	if b == nil || b.length == 0 {
		return a
	}

	// Merge small adjacent leaves to keep the tree shallow.
	if a.isLeaf() && b.isLeaf() && a.length+b.length <= MaxLeafBytes {
		return newLeaf(a.text + b.text)
	}

	n := &node{
		left:     a,
		right:    b,
		length:   a.length + b.length,
		newlines: a.newlines + b.newlines,
		height:   max(a.height, b.height) + 1,
	}

	if n.height > maxHeightFor(n.length) {
		return rebuild(n)
	}
	return n
}

// maxHeightFor returns the height bound beyond which a subtree of the
// given byte length is rebuilt.
func maxHeightFor(length int64) uint32 {
	leaves := length / (MaxLeafBytes / 4)
	if leaves < 1 {
		leaves = 1
	}
	return uint32(bits.Len64(uint64(leaves))) + 2
}

// rebuild collects the leaves of a subtree and reconstructs a balanced
// tree bottom-up.
func rebuild(n *node) *node {
	var leaves []*node
	collectLeaves(n, &leaves)
	return buildBalanced(leaves)
}

func collectLeaves(n *node, out *[]*node) {
	if n == nil {
		return
	}
	if n.isLeaf() {
		*out = append(*out, n)
		return
	}
	collectLeaves(n.left, out)
	collectLeaves(n.right, out)
}

func buildBalanced(leaves []*node) *node {
	switch len(leaves) {
	case 0:
		return nil
	case 1:
		return leaves[0]
	}

	mid := len(leaves) / 2
	left := buildBalanced(leaves[:mid])
	right := buildBalanced(leaves[mid:])

	return &node{
		left:     left,
		right:    right,
		length:   left.length + right.length,
		newlines: left.newlines + right.newlines,
		height:   max(left.height, right.height) + 1,
	}
}

// split divides a subtree at the given byte offset.
// The offset must satisfy 0 <= offset <= n.length.
func split(n *node, offset int64) (*node, *node) {
	if n == nil {
		return nil, nil
	}
	if offset <= 0 {
		return nil, n
	}
	if offset >= n.length {
		return n, nil
	}

	if n.isLeaf() {
		return newLeaf(n.text[:offset]), newLeaf(n.text[offset:])
	}

	if offset < n.left.length {
		l, r := split(n.left, offset)
		return l, concat(r, n.right)
	}
	l, r := split(n.right, offset-n.left.length)
	return concat(n.left, l), r
}

// byteAt returns the byte at the given offset within the subtree.
func byteAt(n *node, offset int64) byte {
	for !n.isLeaf() {
		if offset < n.left.length {
			n = n.left
		} else {
			offset -= n.left.length
			n = n.right
		}
	}
	return n.text[offset]
}

// writeRange appends the bytes in [start, end) of the subtree to sb.
func writeRange(n *node, start, end int64, sb *strings.Builder) {
	if n == nil || start >= end {
		return
	}
	if n.isLeaf() {
		sb.WriteString(n.text[start:end])
		return
	}

	ll := n.left.length
	if start < ll {
		writeRange(n.left, start, min(end, ll), sb)
	}
	if end > ll {
		writeRange(n.right, max(start-ll, 0), end-ll, sb)
	}
}

// newlinesBefore counts '\n' bytes in [0, offset) of the subtree.
func newlinesBefore(n *node, offset int64) int64 {
	if n == nil || offset <= 0 {
		return 0
	}
	if offset >= n.length {
		return n.newlines
	}
	if n.isLeaf() {
		return int64(strings.Count(n.text[:offset], "\n"))
	}
	if offset <= n.left.length {
		return newlinesBefore(n.left, offset)
	}
	return n.left.newlines + newlinesBefore(n.right, offset-n.left.length)
}

// nthNewline returns the byte offset of the i-th newline (0-indexed).
// The caller must ensure i < n.newlines.
func nthNewline(n *node, i int64) int64 {
	var base int64
	for !n.isLeaf() {
		if i < n.left.newlines {
			n = n.left
		} else {
			i -= n.left.newlines
			base += n.left.length
			n = n.right
		}
	}

	var seen int64
	for off := 0; off < len(n.text); off++ {
		if n.text[off] == '\n' {
			if seen == i {
				return base + int64(off)
			}
			seen++
		}
	}
	// Unreachable when the caller respects the newline count.
	return base + n.length
}
