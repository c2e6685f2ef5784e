package buffer

import "github.com/dshills/textengine/internal/engine/delta"

// FlushPlan is a consistent description of what a flush must write.
// It is captured under the buffer lock; the write itself happens off
// the edit path, and MarkFlushed reconciles afterward.
type FlushPlan struct {
	Path       string
	Encoding   string
	LineEnding LineEnding

	// Rewrite means the target file must be replaced wholesale: either
	// no on-disk log exists yet, or undo/truncation made the existing
	// file diverge from the in-memory log.
	Rewrite bool
	Epoch   uint64

	// Records and Snapshots are the entries to write, each in version
	// order. For an append they are the unflushed suffix; for a
	// rewrite they start from the nearest snapshot base.
	Records   []delta.Record
	Snapshots []delta.Snapshot

	// TargetVersion is the version the flush makes durable.
	TargetVersion uint64
}

// FlushPlan returns the work a flush must perform, or nil when the
// buffer is clean or scratch. The returned slices are copies; the plan
// stays valid while edits continue.
func (b *Buffer) FlushPlan() *FlushPlan {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.path == "" || b.state == StateCompressed || !b.dirtyLocked() {
		return nil
	}

	plan := &FlushPlan{
		Path:          b.path,
		Encoding:      b.encoding,
		LineEnding:    b.lineEnding,
		Epoch:         b.rewriteEpoch,
		TargetVersion: b.version,
	}

	if b.needsRewrite || !b.diskHasLog {
		plan.Rewrite = true
		base := b.log.NearestSnapshot(b.version)
		plan.Snapshots = append([]delta.Snapshot{base}, b.log.SnapshotsAfter(base.Version, b.version)...)
		plan.Records = append([]delta.Record(nil), b.log.RecordsAfter(base.Version, b.version)...)
		return plan
	}

	plan.Records = append([]delta.Record(nil), b.log.RecordsAfter(b.flushedVersion, b.version)...)
	plan.Snapshots = append([]delta.Snapshot(nil), b.log.SnapshotsAfter(b.flushedVersion, b.version)...)
	return plan
}

// RequireRewrite forces the next flush to replace the on-disk log
// wholesale. Used when the durable file is untrustworthy (a corrupt
// tail was truncated on load) or cannot be appended to (compressed
// log bodies).
func (b *Buffer) RequireRewrite() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.path == "" {
		return
	}
	b.markRewriteLocked()
}

// MarkFlushed records that the plan's writes are durable. A rewrite
// that raced with another truncation (the epoch moved on) leaves the
// rewrite flag set so the next flush repairs the file again.
func (b *Buffer) MarkFlushed(plan *FlushPlan) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.diskHasLog = true

	// An undo during the write leaves the durable log replaying past
	// our current state; flag it for repair instead of advancing.
	if plan.TargetVersion > b.version {
		b.flushedVersion = b.version
		b.markRewriteLocked()
		return
	}

	if plan.TargetVersion > b.flushedVersion {
		b.flushedVersion = plan.TargetVersion
	}
	if b.needsRewrite && plan.Rewrite && plan.Epoch == b.rewriteEpoch {
		b.needsRewrite = false
	}
}
