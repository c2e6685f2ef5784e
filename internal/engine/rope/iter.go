package rope

// LineIterator walks the lines of a rope lazily. It is restartable via
// Reset and remains valid for the life of the rope it was created from
// (ropes are immutable).
type LineIterator struct {
	rope Rope
	line uint32
}

// Lines returns an iterator over all lines of the rope.
func (r Rope) Lines() *LineIterator {
	return &LineIterator{rope: r}
}

// Next returns the next line (without its line ending) and true, or
// ("", false) when the iterator is exhausted.
func (it *LineIterator) Next() (string, bool) {
	if it.line >= it.rope.LineCount() {
		return "", false
	}
	s := it.rope.LineText(it.line)
	it.line++
	return s, true
}

// Line returns the 0-indexed number of the line Next will return.
func (it *LineIterator) Line() uint32 {
	return it.line
}

// Reset restarts the iterator at the first line.
func (it *LineIterator) Reset() {
	it.line = 0
}

// ChunkIterator walks the underlying text chunks of a rope in order.
// Chunk boundaries are an implementation detail; concatenating all
// chunks yields the rope's full text.
type ChunkIterator struct {
	stack []*node
}

// Chunks returns an iterator over the rope's leaf chunks.
func (r Rope) Chunks() *ChunkIterator {
	it := &ChunkIterator{}
	it.push(r.root)
	return it
}

func (it *ChunkIterator) push(n *node) {
	for n != nil {
		it.stack = append(it.stack, n)
		n = n.left
	}
}

// Next returns the next chunk and true, or ("", false) at the end.
func (it *ChunkIterator) Next() (string, bool) {
	for len(it.stack) > 0 {
		n := it.stack[len(it.stack)-1]
		it.stack = it.stack[:len(it.stack)-1]
		it.push(n.right)
		if n.isLeaf() {
			return n.text, true
		}
	}
	return "", false
}
