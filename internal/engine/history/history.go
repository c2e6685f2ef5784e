package history

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/dshills/textengine/internal/engine/delta"
)

// Common errors for history operations. Both are no-op notices for the
// caller, never fatal.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Group is one undo unit: the versions of one or more coalesced
// records, in apply order.
type Group struct {
	Versions []uint64

	kind      delta.Kind
	endOffset int64 // content offset immediately after the last edit
	last      time.Time
	sealed    bool
}

// History holds the undo and redo stacks for a buffer.
type History struct {
	undo []*Group
	redo []*Group

	window     time.Duration
	maxGroup   int
	maxEntries int
}

// New creates a history with the given coalescing window, maximum
// records per coalesced group, and maximum retained undo groups.
// Non-positive arguments select defaults.
func New(window time.Duration, maxGroup, maxEntries int) *History {
	if window <= 0 {
		window = 400 * time.Millisecond
	}
	if maxGroup <= 0 {
		maxGroup = 32
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &History{window: window, maxGroup: maxGroup, maxEntries: maxEntries}
}

// Push records a newly applied record on the undo stack, coalescing
// with the previous group when the record continues a run of single-rune
// typing. Any push clears the redo stack.
func (h *History) Push(rec delta.Record) {
	h.redo = nil

	if g := h.top(); g != nil && h.coalesces(g, rec) {
		g.Versions = append(g.Versions, rec.Version)
		g.last = rec.Time
		g.endOffset = groupEnd(rec)
		return
	}

	h.undo = append(h.undo, &Group{
		Versions:  []uint64{rec.Version},
		kind:      rec.Kind,
		endOffset: groupEnd(rec),
		last:      rec.Time,
	})

	if len(h.undo) > h.maxEntries {
		excess := len(h.undo) - h.maxEntries
		h.undo = h.undo[excess:]
	}
}

func (h *History) top() *Group {
	if len(h.undo) == 0 {
		return nil
	}
	return h.undo[len(h.undo)-1]
}

// coalesces reports whether rec extends the run of typing captured by g.
func (h *History) coalesces(g *Group, rec delta.Record) bool {
	if g.sealed || g.kind != rec.Kind || len(g.Versions) >= h.maxGroup {
		return false
	}
	if rec.Time.Sub(g.last) > h.window {
		return false
	}

	switch rec.Kind {
	case delta.KindInsert:
		// A single typed rune appended where the previous one ended.
		return utf8.RuneCountInString(rec.Text) == 1 && rec.Offset == g.endOffset
	case delta.KindDelete:
		if utf8.RuneCountInString(rec.OldText) != 1 {
			return false
		}
		// Backspace eats backward; forward-delete stays in place.
		return rec.Offset+rec.Length == g.endOffset || rec.Offset == g.endOffset
	default:
		return false
	}
}

// groupEnd returns the content offset a continuing keystroke would
// edit at after rec.
func groupEnd(rec delta.Record) int64 {
	switch rec.Kind {
	case delta.KindInsert:
		return rec.Offset + int64(len(rec.Text))
	default:
		return rec.Offset
	}
}

// Break seals the current coalescing group so the next record starts a
// new undo unit. Called on pauses, saves, and cursor movement.
func (h *History) Break() {
	if g := h.top(); g != nil {
		g.sealed = true
	}
}

// PopUndo removes and returns the most recent undo group.
func (h *History) PopUndo() (*Group, error) {
	if len(h.undo) == 0 {
		return nil, ErrNothingToUndo
	}
	g := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	return g, nil
}

// PopRedo removes and returns the most recently undone group.
func (h *History) PopRedo() (*Group, error) {
	if len(h.redo) == 0 {
		return nil, ErrNothingToRedo
	}
	g := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	return g, nil
}

// PushRedo places an undone group on the redo stack.
func (h *History) PushRedo(g *Group) {
	h.redo = append(h.redo, g)
}

// RestoreUndo returns a group to the undo stack without touching the
// redo stack. Used after a redo, and to roll back a failed undo.
func (h *History) RestoreUndo(g *Group) {
	g.sealed = true
	h.undo = append(h.undo, g)
}

// CanUndo returns true if undo is available.
func (h *History) CanUndo() bool {
	return len(h.undo) > 0
}

// CanRedo returns true if redo is available.
func (h *History) CanRedo() bool {
	return len(h.redo) > 0
}

// UndoCount returns the number of undo groups available.
func (h *History) UndoCount() int {
	return len(h.undo)
}

// RedoCount returns the number of redo groups available.
func (h *History) RedoCount() int {
	return len(h.redo)
}

// Clear removes all undo/redo state.
func (h *History) Clear() {
	h.undo = nil
	h.redo = nil
}
