// Package history manages linear undo/redo state for a buffer.
//
// History tracks groups of delta record versions rather than the
// records themselves: the buffer's delta log remains the single owner
// of record data, so hibernating a buffer releases the log without
// losing undo state. Undoing a group applies the inverses of its
// records in reverse order; redoing reapplies them.
//
// Sequential single-rune inserts or deletes at contiguous offsets
// within a configured time window coalesce into one group, so typing a
// word undoes as a single action. Coalescing affects undo granularity
// only; the per-record delta log is untouched.
//
// History is not safe for concurrent use; the owning buffer serializes
// access (the edit path is single-writer by design).
package history
