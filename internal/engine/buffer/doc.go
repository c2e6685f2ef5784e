// Package buffer implements the per-document state of the text engine:
// the current materialized content (a rope), the append-only delta log
// it is derived from, the undo/redo history, and the version, dirty,
// and compression bookkeeping that the persistence and compression
// managers act on.
//
// The edit model is delta-based. Every Apply appends a Record to the
// buffer's log and updates the rope incrementally; replaying the log
// from the empty document (or the nearest snapshot) reconstructs the
// content at any retained version, byte for byte. Version numbers are
// assigned from a counter that never decreases, so a version is never
// reused even after undo invalidates part of the history.
//
// Concurrency: the edit path (Apply/Undo/Redo) is single-writer per
// buffer by design. The internal RWMutex exists for the background
// managers, which read activity and dirty state and swap the buffer
// between active and hibernated representations.
package buffer
