// Package persist writes delta logs to disk and loads them back.
//
// Each file-bound buffer owns a sidecar log file next to the document
// (path + ".txdl"). The log is a checksummed binary record stream;
// flushes append the unflushed suffix, or rewrite the file from the
// nearest snapshot when undo invalidated flushed records. Loading
// validates every checksum and truncates at the first invalid record,
// keeping the valid prefix.
//
// The Manager runs flushes asynchronously off the edit path with
// per-buffer FIFO ordering and drives the periodic flush timer.
package persist
