// Package rope provides an immutable rope data structure for efficient
// text storage and manipulation.
//
// A rope is a binary tree whose leaves hold small text chunks and whose
// internal nodes cache aggregated metrics (byte length, newline count).
// Operations return new ropes; the originals are never modified, which
// makes snapshots cheap and concurrent reads safe without locks.
//
// Key properties:
//   - O(log n) insertion, deletion, and random access
//   - Cached newline counts for line/column addressing
//   - Structural sharing between a rope and its edited descendants
//
// Basic usage:
//
//	r := rope.FromString("hello world")
//	r = r.Insert(5, ",")           // "hello, world"
//	r = r.Delete(0, 6)             // "world"
//	text := r.String()             // "world"
package rope
