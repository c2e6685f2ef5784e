package buffer

import (
	"errors"
	"sync"
	"time"

	"github.com/dshills/textengine/internal/engine/delta"
	"github.com/dshills/textengine/internal/engine/history"
	"github.com/dshills/textengine/internal/engine/rope"
)

// Errors returned by buffer operations.
var (
	// ErrOffsetOutOfRange reports an edit offset outside the current
	// content bounds. The buffer is unchanged.
	ErrOffsetOutOfRange = errors.New("offset out of range")
	// ErrRangeInvalid reports a negative or out-of-bounds edit range.
	// The buffer is unchanged.
	ErrRangeInvalid = errors.New("invalid range")
	// ErrHibernated reports an operation against a compressed buffer.
	// Callers go through the compression manager, which wakes the
	// buffer before any access.
	ErrHibernated = errors.New("buffer is compressed")
	// ErrVersionNotFound mirrors delta.ErrVersionNotFound for callers
	// of MaterializeAt.
	ErrVersionNotFound = delta.ErrVersionNotFound
)

// Buffer is one open document: the current rope, the delta log it
// derives from, undo/redo history, and the version/dirty/compression
// bookkeeping acted on by the background managers.
type Buffer struct {
	mu sync.RWMutex

	id       ID
	path     string // empty for scratch buffers
	encoding string // IANA name; in-memory content is always UTF-8

	lineEnding LineEnding

	rope rope.Rope
	log  *delta.Log
	hist *history.History

	version        uint64 // current version
	nextVersion    uint64 // next version to assign; never decreases
	flushedVersion uint64 // all records at or below are durable
	needsRewrite   bool   // on-disk log no longer a prefix of ours
	rewriteEpoch   uint64
	diskHasLog     bool

	state      CompressionState
	compressed []byte
	lastActive time.Time

	snapInterval   int
	applySinceSnap int

	coalesceWindow time.Duration
	coalesceMax    int
	maxUndo        int
}

// New creates an empty buffer. Without WithPath it is a scratch buffer.
func New(opts ...Option) *Buffer {
	b := &Buffer{
		id:           NewID(),
		encoding:     "utf-8",
		lineEnding:   LineEndingLF,
		rope:         rope.New(),
		log:          delta.NewLog(),
		nextVersion:  1,
		snapInterval: 256,
		lastActive:   time.Now(),
	}

	for _, opt := range opts {
		opt(b)
	}

	b.hist = history.New(b.coalesceWindow, b.coalesceMax, b.maxUndo)
	return b
}

// NewFromString creates a buffer seeded with content. The content is
// recorded as the initial insert delta (version 1) and counted as
// durable: for a file-bound buffer it came from the file itself.
func NewFromString(s string, opts ...Option) *Buffer {
	b := New(opts...)
	if s == "" {
		return b
	}

	s = b.lineEnding.Normalize(s)
	rec := delta.Record{
		Kind:    delta.KindInsert,
		Version: b.nextVersion,
		Seq:     delta.NextSeq(),
		Time:    time.Now(),
		Text:    s,
	}
	b.nextVersion++
	b.log.Append(rec)
	b.rope = rec.ApplyTo(b.rope)
	b.version = rec.Version
	b.flushedVersion = rec.Version
	return b
}

// NewFromLog reconstructs a buffer from a loaded delta log. The
// buffer's version is the newest one the log retains, and everything
// in the log counts as flushed.
func NewFromLog(log *delta.Log, opts ...Option) (*Buffer, error) {
	b := New(opts...)

	version := log.MaxVersion()
	r, err := log.ReplayTo(version)
	if err != nil {
		return nil, err
	}

	b.log = log
	b.rope = r
	b.version = version
	b.nextVersion = version + 1
	b.flushedVersion = version
	b.diskHasLog = true
	return b, nil
}

// Identity and state accessors

// ID returns the buffer's identifier.
func (b *Buffer) ID() ID { return b.id }

// Path returns the bound file path, or "" for a scratch buffer.
func (b *Buffer) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

// IsScratch returns true if the buffer has no bound file.
func (b *Buffer) IsScratch() bool {
	return b.Path() == ""
}

// Encoding returns the buffer's character encoding name.
func (b *Buffer) Encoding() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.encoding
}

// LineEnding returns the buffer's line ending style.
func (b *Buffer) LineEnding() LineEnding {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lineEnding
}

// Version returns the current version number.
func (b *Buffer) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// State returns the compression state.
func (b *Buffer) State() CompressionState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// LastActive returns the time of the most recent access.
func (b *Buffer) LastActive() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastActive
}

// Dirty reports whether durable state lags the buffer: unflushed
// records exist, or an undo invalidated part of the flushed log.
// Scratch buffers are never dirty; they have nowhere to flush to.
func (b *Buffer) Dirty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dirtyLocked()
}

func (b *Buffer) dirtyLocked() bool {
	if b.path == "" {
		return false
	}
	return b.needsRewrite || b.version > b.flushedVersion
}

// UnflushedCount returns the number of records not yet durable. A
// compressed buffer reports 0; it is woken before any flush.
func (b *Buffer) UnflushedCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.log == nil {
		return 0
	}
	return len(b.log.RecordsAfter(b.flushedVersion, b.version))
}

// Content accessors. All observe the current version.

// Len returns the content length in bytes.
func (b *Buffer) Len() ByteOffset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rope.Len()
}

// Text returns the full content. Prefer Materialize for large buffers.
func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rope.String()
}

// LineCount returns the number of lines.
func (b *Buffer) LineCount() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rope.LineCount()
}

// LineText returns the text of a line without its line ending.
func (b *Buffer) LineText(line uint32) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rope.LineText(line)
}

// OffsetToPoint converts a byte offset to line/column.
func (b *Buffer) OffsetToPoint(offset ByteOffset) Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p := b.rope.OffsetToPoint(offset)
	return Point{Line: p.Line, Column: p.Column}
}

// PointToOffset converts line/column to a byte offset.
func (b *Buffer) PointToOffset(p Point) ByteOffset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rope.PointToOffset(rope.Point{Line: p.Line, Column: p.Column})
}

// Editing

// Apply validates and applies an edit, appends its record to the delta
// log, and returns the new version. An apply after undo discards the
// undone tail; those versions are gone and the replacement takes a
// fresh, never-used number.
func (b *Buffer) Apply(op Op) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateCompressed {
		return 0, ErrHibernated
	}

	rec, err := b.buildRecord(op)
	if err != nil {
		return 0, err
	}

	b.invalidateRedoTailLocked()

	b.log.Append(rec)
	b.rope = rec.ApplyTo(b.rope)
	b.version = rec.Version
	b.hist.Push(rec)
	b.touchLocked()

	b.applySinceSnap++
	if b.applySinceSnap >= b.snapInterval {
		b.log.AddSnapshot(b.version, b.rope.String())
		b.applySinceSnap = 0
	}

	return b.version, nil
}

// buildRecord validates op against current bounds and constructs its
// record, including the stored inverse text.
func (b *Buffer) buildRecord(op Op) (delta.Record, error) {
	length := b.rope.Len()

	rec := delta.Record{
		Kind:    op.Kind,
		Version: b.nextVersion,
		Seq:     delta.NextSeq(),
		Time:    time.Now(),
		Offset:  op.Offset,
	}

	switch op.Kind {
	case delta.KindInsert:
		if op.Offset < 0 || op.Offset > length {
			return delta.Record{}, ErrOffsetOutOfRange
		}
		rec.Text = b.lineEnding.Normalize(op.Text)
	case delta.KindDelete:
		if op.Offset < 0 || op.Length < 0 || op.Offset+op.Length > length {
			return delta.Record{}, ErrRangeInvalid
		}
		rec.Length = op.Length
		rec.OldText = b.rope.Slice(op.Offset, op.Offset+op.Length)
	case delta.KindReplace:
		if op.Offset < 0 || op.Length < 0 || op.Offset+op.Length > length {
			return delta.Record{}, ErrRangeInvalid
		}
		rec.Length = op.Length
		rec.OldText = b.rope.Slice(op.Offset, op.Offset+op.Length)
		rec.Text = b.lineEnding.Normalize(op.Text)
	default:
		return delta.Record{}, ErrRangeInvalid
	}

	b.nextVersion++
	return rec, nil
}

// invalidateRedoTailLocked truncates log records above the current
// version before a fresh apply. If any of them had been flushed, the
// on-disk log is no longer a prefix of ours and must be rewritten.
func (b *Buffer) invalidateRedoTailLocked() {
	if b.log.LastVersion() <= b.version {
		return
	}
	b.log.TruncateAfter(b.version)
	if b.flushedVersion > b.version {
		b.flushedVersion = b.version
		b.markRewriteLocked()
	}
}

func (b *Buffer) markRewriteLocked() {
	b.needsRewrite = true
	b.rewriteEpoch++
}

// Undo reverts the most recent undo group and returns the version it
// lands on. The group's records stay in the log for redo; only the
// current-version pointer moves back.
func (b *Buffer) Undo() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateCompressed {
		return 0, ErrHibernated
	}

	g, err := b.hist.PopUndo()
	if err != nil {
		return 0, err
	}

	for i := len(g.Versions) - 1; i >= 0; i-- {
		rec, ok := b.log.Get(g.Versions[i])
		if !ok {
			panic("buffer: undo group references missing log record")
		}
		b.rope = rec.Invert().ApplyTo(b.rope)
	}

	b.version = b.log.VersionBefore(g.Versions[0])
	b.hist.PushRedo(g)
	b.touchLocked()

	// The durable log now replays past our current state.
	if b.flushedVersion > b.version {
		b.flushedVersion = b.version
		b.markRewriteLocked()
	}

	return b.version, nil
}

// Redo reapplies the most recently undone group and returns the
// version it lands on.
func (b *Buffer) Redo() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateCompressed {
		return 0, ErrHibernated
	}

	g, err := b.hist.PopRedo()
	if err != nil {
		return 0, err
	}

	for _, v := range g.Versions {
		rec, ok := b.log.Get(v)
		if !ok {
			panic("buffer: redo group references missing log record")
		}
		b.rope = rec.ApplyTo(b.rope)
	}

	b.version = g.Versions[len(g.Versions)-1]
	b.hist.RestoreUndo(g)
	b.touchLocked()

	return b.version, nil
}

// CanUndo returns true if undo is available.
func (b *Buffer) CanUndo() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hist.CanUndo()
}

// CanRedo returns true if redo is available.
func (b *Buffer) CanRedo() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hist.CanRedo()
}

// BreakCoalescing seals the current undo group so the next edit starts
// a fresh one. Called on saves and pauses in input.
func (b *Buffer) BreakCoalescing() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hist.Break()
}

// Materialization

// Materialize returns a read-only view of the current content.
func (b *Buffer) Materialize() (*View, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.state == StateCompressed {
		return nil, ErrHibernated
	}
	return &View{rope: b.rope, version: b.version, lineEnding: b.lineEnding}, nil
}

// MaterializeAt reconstructs the content at a historical version by
// replaying from the nearest snapshot. Versions above the current one,
// or discarded by history truncation, report ErrVersionNotFound.
func (b *Buffer) MaterializeAt(version uint64) (*View, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.state == StateCompressed {
		return nil, ErrHibernated
	}
	if version > b.version {
		return nil, ErrVersionNotFound
	}
	if version == b.version {
		return &View{rope: b.rope, version: b.version, lineEnding: b.lineEnding}, nil
	}

	r, err := b.log.ReplayTo(version)
	if err != nil {
		return nil, err
	}
	return &View{rope: r, version: version, lineEnding: b.lineEnding}, nil
}

// Activity tracking

// Touch records buffer activity and returns a compressed-state buffer
// to the caller untouched; waking is the compression manager's job.
func (b *Buffer) Touch() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.touchLocked()
}

func (b *Buffer) touchLocked() {
	b.lastActive = time.Now()
	if b.state == StateIdle {
		b.state = StateActive
	}
}

// MarkIdleIfInactive transitions Active to Idle when the buffer has
// seen no activity for at least the threshold. Returns true if the
// buffer is now Idle.
func (b *Buffer) MarkIdleIfInactive(threshold time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateIdle:
		return true
	case StateActive:
		if time.Since(b.lastActive) >= threshold {
			b.state = StateIdle
			return true
		}
	}
	return false
}
