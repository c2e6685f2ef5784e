// Package delta defines the edit operation model for the buffer engine.
//
// Every content-changing operation on a buffer is recorded as a Record:
// the operation kind (insert, delete, replace), the byte range it
// affects, the text it adds and removes, and the buffer version it
// produces. Records carry enough information to compute their own
// inverse, which is the basis for undo.
//
// The Log is the append-only, version-ordered sequence of Records for
// one buffer, interleaved with periodic Snapshots (full materialized
// content at a version). Replaying the log from the empty document, or
// from the nearest Snapshot, deterministically reconstructs the content
// at any retained version.
package delta
