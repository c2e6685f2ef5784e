// Package registry tracks open buffers by ID and bound path. Opening
// the same path twice returns the same buffer; scratch buffers live
// under their ID only. The registry owns the open/close lifecycle,
// notifies registered handlers, and watches bound files for external
// changes.
package registry
