package delta

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dshills/textengine/internal/engine/rope"
)

// ErrVersionNotFound is returned when a requested version has no
// retained record, either because it never existed or because it was
// discarded when an edit invalidated an undone tail.
var ErrVersionNotFound = errors.New("version not found")

// Snapshot is a fully materialized content checkpoint at a version.
// Replays can start from the nearest snapshot at or below the target
// version instead of from the empty document.
type Snapshot struct {
	Version uint64
	Text    string
}

// Log is the append-only record of edits for one buffer, ordered by
// the version each record produces. Versions are strictly increasing
// but not necessarily contiguous: invalidating an undone tail leaves
// gaps, since version numbers are never reused.
//
// Log is not safe for concurrent use; the owning buffer serializes
// access.
type Log struct {
	records []Record
	snaps   []Snapshot
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append adds a record to the log. Records must arrive in strictly
// increasing version order; anything else means the engine itself
// produced a corrupt sequence, which fails loudly.
func (l *Log) Append(rec Record) {
	if last := l.MaxVersion(); rec.Version <= last {
		panic(fmt.Sprintf("delta: append version %d not after %d", rec.Version, last))
	}
	l.records = append(l.records, rec)
}

// AddSnapshot records a full-content checkpoint. Snapshots must also
// arrive in increasing version order; a duplicate version is ignored.
func (l *Log) AddSnapshot(version uint64, text string) {
	if n := len(l.snaps); n > 0 {
		if l.snaps[n-1].Version == version {
			return
		}
		if l.snaps[n-1].Version > version {
			panic(fmt.Sprintf("delta: snapshot version %d not after %d", version, l.snaps[n-1].Version))
		}
	}
	l.snaps = append(l.snaps, Snapshot{Version: version, Text: text})
}

// Len returns the number of edit records.
func (l *Log) Len() int {
	return len(l.records)
}

// LastVersion returns the version of the newest record, or 0 for an
// empty log.
func (l *Log) LastVersion() uint64 {
	if len(l.records) == 0 {
		return 0
	}
	return l.records[len(l.records)-1].Version
}

// Records returns the edit records in version order. The slice is
// shared; callers must not modify it.
func (l *Log) Records() []Record {
	return l.records
}

// Snapshots returns the snapshots in version order. The slice is
// shared; callers must not modify it.
func (l *Log) Snapshots() []Snapshot {
	return l.snaps
}

// Get returns the record producing the given version.
func (l *Log) Get(version uint64) (Record, bool) {
	i := sort.Search(len(l.records), func(i int) bool {
		return l.records[i].Version >= version
	})
	if i < len(l.records) && l.records[i].Version == version {
		return l.records[i], true
	}
	return Record{}, false
}

// VersionBefore returns the greatest version strictly below the given
// one that has a retained record or snapshot, or 0 if none precedes
// it. Snapshots count as landing points: a log loaded from a compacted
// file holds a snapshot with no record at its version, and undoing the
// first edit after it must land there, not at 0.
func (l *Log) VersionBefore(version uint64) uint64 {
	var v uint64
	i := sort.Search(len(l.records), func(i int) bool {
		return l.records[i].Version >= version
	})
	if i > 0 {
		v = l.records[i-1].Version
	}
	j := sort.Search(len(l.snaps), func(j int) bool {
		return l.snaps[j].Version >= version
	})
	if j > 0 && l.snaps[j-1].Version > v {
		v = l.snaps[j-1].Version
	}
	return v
}

// RecordsAfter returns the records with versions in (after, upTo].
func (l *Log) RecordsAfter(after, upTo uint64) []Record {
	lo := sort.Search(len(l.records), func(i int) bool {
		return l.records[i].Version > after
	})
	hi := sort.Search(len(l.records), func(i int) bool {
		return l.records[i].Version > upTo
	})
	return l.records[lo:hi]
}

// TruncateAfter discards all records and snapshots with versions above
// the given version and returns the number of records dropped. The
// dropped versions become unreachable forever; they are never reused.
func (l *Log) TruncateAfter(version uint64) int {
	i := sort.Search(len(l.records), func(i int) bool {
		return l.records[i].Version > version
	})
	dropped := len(l.records) - i
	l.records = l.records[:i]

	j := sort.Search(len(l.snaps), func(j int) bool {
		return l.snaps[j].Version > version
	})
	l.snaps = l.snaps[:j]

	return dropped
}

// NearestSnapshot returns the snapshot with the greatest version at or
// below the given version. The empty document at version 0 is the
// implicit base when no stored snapshot qualifies.
func (l *Log) NearestSnapshot(version uint64) Snapshot {
	i := sort.Search(len(l.snaps), func(i int) bool {
		return l.snaps[i].Version > version
	})
	if i == 0 {
		return Snapshot{}
	}
	return l.snaps[i-1]
}

// ReplayTo reconstructs the content at the given version by applying
// records from the nearest snapshot at or below it. Version 0 is the
// creation point (empty document). Any other version must match a
// retained record or snapshot exactly, or ErrVersionNotFound is
// returned. Versions in truncation gaps are gone for good.
func (l *Log) ReplayTo(version uint64) (rope.Rope, error) {
	if version == 0 {
		return rope.New(), nil
	}
	if !l.hasVersion(version) {
		return rope.Rope{}, ErrVersionNotFound
	}

	snap := l.NearestSnapshot(version)
	r := rope.FromString(snap.Text)
	for _, rec := range l.RecordsAfter(snap.Version, version) {
		r = rec.ApplyTo(r)
	}
	return r, nil
}

// hasVersion reports whether a record or snapshot exists at exactly
// the given version. Loaded logs may hold a snapshot with no records
// after it, so snapshots count as materialization points too.
func (l *Log) hasVersion(version uint64) bool {
	if _, ok := l.Get(version); ok {
		return true
	}
	i := sort.Search(len(l.snaps), func(i int) bool {
		return l.snaps[i].Version >= version
	})
	return i < len(l.snaps) && l.snaps[i].Version == version
}

// MaxVersion returns the greatest version represented by a record or
// snapshot, or 0 for an empty log.
func (l *Log) MaxVersion() uint64 {
	v := l.LastVersion()
	if n := len(l.snaps); n > 0 && l.snaps[n-1].Version > v {
		v = l.snaps[n-1].Version
	}
	return v
}

// SnapshotsAfter returns the snapshots with versions in (after, upTo].
func (l *Log) SnapshotsAfter(after, upTo uint64) []Snapshot {
	lo := sort.Search(len(l.snaps), func(i int) bool {
		return l.snaps[i].Version > after
	})
	hi := sort.Search(len(l.snaps), func(i int) bool {
		return l.snaps[i].Version > upTo
	})
	return l.snaps[lo:hi]
}
