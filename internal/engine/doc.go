// Package engine is the text engine facade. It owns the buffer
// registry and the background managers (persistence, compression) and
// exposes the operations an editor front end calls: open, edit, undo,
// materialize, save, close.
//
// Content is represented as deltas: every edit appends an invertible
// record to the buffer's log, and the current text is a rope kept in
// step with the log. Versions are monotonic and never reused; undo
// moves the current-version pointer backward without discarding
// records until a new edit invalidates the undone tail.
//
// All facade methods are safe for concurrent use. Hibernated buffers
// are woken transparently before any access.
package engine
