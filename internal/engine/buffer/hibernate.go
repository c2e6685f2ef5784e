package buffer

import (
	"errors"

	"github.com/dshills/textengine/internal/engine/delta"
	"github.com/dshills/textengine/internal/engine/rope"
)

// ErrNotIdle reports a hibernation attempt on a buffer that is no
// longer eligible (touched since the sweep, or already compressed).
var ErrNotIdle = errors.New("buffer not idle")

// HibernatePayload is the serializable state of an idle buffer: its
// snapshots and records, in version order. Undo history is version
// numbers only and stays in memory; it costs nothing next to the rope.
type HibernatePayload struct {
	Version   uint64
	Snapshots []delta.Snapshot
	Records   []delta.Record
}

// BeginHibernate captures the buffer state for compression. It takes a
// fresh snapshot at the current version so reactivation replays almost
// nothing. The buffer stays usable; CompleteHibernate finishes the
// swap only if nothing changed in between.
func (b *Buffer) BeginHibernate() (*HibernatePayload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateIdle {
		return nil, ErrNotIdle
	}

	// Snapshot the current version unless an undo left a newer
	// snapshot in the log; snapshot versions only grow.
	if snaps := b.log.Snapshots(); len(snaps) == 0 || snaps[len(snaps)-1].Version <= b.version {
		b.log.AddSnapshot(b.version, b.rope.String())
	}

	return &HibernatePayload{
		Version:   b.version,
		Snapshots: append([]delta.Snapshot(nil), b.log.Snapshots()...),
		Records:   append([]delta.Record(nil), b.log.Records()...),
	}, nil
}

// CompleteHibernate installs the compressed blob and releases the rope
// and log. It refuses if the buffer was touched since BeginHibernate;
// the caller then discards the blob.
func (b *Buffer) CompleteHibernate(blob []byte, version uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateIdle || b.version != version {
		return false
	}

	b.compressed = blob
	b.rope = rope.New()
	b.log = nil
	b.state = StateCompressed
	return true
}

// CompressedBlob returns the compressed state of a hibernated buffer.
func (b *Buffer) CompressedBlob() ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.state != StateCompressed {
		return nil, false
	}
	return b.compressed, true
}

// Wake reinstates a decoded delta log, rebuilds the rope at the
// current version, and returns the buffer to Active. A payload that no
// longer replays to the buffer's version is corrupt; the buffer stays
// compressed and the error is surfaced.
func (b *Buffer) Wake(payload *HibernatePayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateCompressed {
		return nil
	}

	log := delta.NewLog()
	for _, rec := range payload.Records {
		// Reinterleave records and snapshots in version order.
		log.Append(rec)
	}
	for _, snap := range payload.Snapshots {
		log.AddSnapshot(snap.Version, snap.Text)
	}

	r, err := log.ReplayTo(b.version)
	if err != nil {
		return err
	}

	b.log = log
	b.rope = r
	b.compressed = nil
	b.state = StateActive
	b.touchLocked()
	return nil
}
