package buffer

import "time"

// Option is a functional option for configuring a Buffer.
type Option func(*Buffer)

// WithPath binds the buffer to a file path. Buffers without a path are
// scratch buffers and are never flushed.
func WithPath(path string) Option {
	return func(b *Buffer) {
		b.path = path
	}
}

// WithEncoding sets the buffer's character encoding (an IANA name such
// as "utf-8" or "iso-8859-1"). The in-memory content is always UTF-8;
// the encoding applies when reading and writing the bound file.
func WithEncoding(name string) Option {
	return func(b *Buffer) {
		if name != "" {
			b.encoding = name
		}
	}
}

// WithLineEnding sets the buffer's line ending style.
func WithLineEnding(le LineEnding) Option {
	return func(b *Buffer) {
		b.lineEnding = le
	}
}

// WithCoalescing configures the undo coalescing window and the maximum
// records merged into one undo group.
func WithCoalescing(window time.Duration, maxGroup int) Option {
	return func(b *Buffer) {
		b.coalesceWindow = window
		b.coalesceMax = maxGroup
	}
}

// WithMaxUndo caps the number of retained undo groups.
func WithMaxUndo(n int) Option {
	return func(b *Buffer) {
		b.maxUndo = n
	}
}

// WithSnapshotInterval sets how many applied records pass between
// automatic content snapshots in the delta log.
func WithSnapshotInterval(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.snapInterval = n
		}
	}
}
