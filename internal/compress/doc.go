// Package compress manages buffer hibernation. A background sweep
// finds buffers idle past a threshold, serializes their delta state,
// and swaps the rope and log for a zstd blob. Any access through
// EnsureActive decompresses and restores the buffer first.
package compress
