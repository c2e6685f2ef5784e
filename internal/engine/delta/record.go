package delta

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dshills/textengine/internal/engine/rope"
)

// Kind identifies the type of edit a Record represents.
type Kind uint8

const (
	// KindInsert adds text at an offset.
	KindInsert Kind = iota + 1
	// KindDelete removes a range of text.
	KindDelete
	// KindReplace substitutes a range of text in a single version bump,
	// keeping the delete+insert pair atomic for undo.
	KindReplace
	// KindSnapshot marks a full-content checkpoint in serialized logs.
	// Snapshots never appear as live edit records.
	KindSnapshot
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindDelete:
		return "delete"
	case KindReplace:
		return "replace"
	case KindSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

var seqCounter uint64

// NextSeq returns a process-monotonic logical timestamp. Replay never
// depends on it; it exists for ordering and coalescing decisions.
func NextSeq() uint64 {
	return atomic.AddUint64(&seqCounter, 1)
}

// Record is one recorded edit operation.
//
// Offset and Length describe the pre-existing text the operation
// affects: Length is 0 for an insert and the removed byte count for
// delete and replace. Text holds added bytes, OldText removed bytes.
// OldText is what makes a Record invertible.
type Record struct {
	Kind    Kind
	Version uint64    // version this record produces
	Seq     uint64    // logical timestamp
	Time    time.Time // wall clock; used for coalescing only
	Offset  int64
	Length  int64
	Text    string
	OldText string
}

// Invert returns the record that undoes this one. The inverse of an
// inverse is the original operation (modulo Seq and Time).
func (r Record) Invert() Record {
	inv := Record{
		Version: r.Version,
		Seq:     r.Seq,
		Time:    r.Time,
		Offset:  r.Offset,
	}

	switch r.Kind {
	case KindInsert:
		inv.Kind = KindDelete
		inv.Length = int64(len(r.Text))
		inv.OldText = r.Text
	case KindDelete:
		inv.Kind = KindInsert
		inv.Text = r.OldText
	case KindReplace:
		inv.Kind = KindReplace
		inv.Length = int64(len(r.Text))
		inv.Text = r.OldText
		inv.OldText = r.Text
	default:
		panic(fmt.Sprintf("delta: invert of non-edit record kind %d", r.Kind))
	}
	return inv
}

// Delta returns the change in content length this record causes.
func (r Record) Delta() int64 {
	return int64(len(r.Text)) - r.Length
}

// String returns a human-readable representation of the record.
func (r Record) String() string {
	switch r.Kind {
	case KindInsert:
		return fmt.Sprintf("v%d insert(%d, %q)", r.Version, r.Offset, r.Text)
	case KindDelete:
		return fmt.Sprintf("v%d delete(%d, %d)", r.Version, r.Offset, r.Length)
	case KindReplace:
		return fmt.Sprintf("v%d replace(%d, %d, %q)", r.Version, r.Offset, r.Length, r.Text)
	case KindSnapshot:
		return fmt.Sprintf("v%d snapshot(%d bytes)", r.Version, len(r.Text))
	default:
		return fmt.Sprintf("v%d unknown", r.Version)
	}
}

// ApplyTo applies the record to a rope and returns the result.
// A record with a range outside the rope indicates a log the engine
// itself wrote incorrectly, so it fails loudly rather than repair.
func (r Record) ApplyTo(rp rope.Rope) rope.Rope {
	switch r.Kind {
	case KindInsert:
		if r.Offset < 0 || r.Offset > rp.Len() {
			panic(fmt.Sprintf("delta: insert offset %d outside content of %d bytes (version %d)", r.Offset, rp.Len(), r.Version))
		}
		return rp.Insert(r.Offset, r.Text)
	case KindDelete:
		if r.Offset < 0 || r.Offset+r.Length > rp.Len() {
			panic(fmt.Sprintf("delta: delete range [%d,%d) outside content of %d bytes (version %d)", r.Offset, r.Offset+r.Length, rp.Len(), r.Version))
		}
		return rp.Delete(r.Offset, r.Offset+r.Length)
	case KindReplace:
		if r.Offset < 0 || r.Offset+r.Length > rp.Len() {
			panic(fmt.Sprintf("delta: replace range [%d,%d) outside content of %d bytes (version %d)", r.Offset, r.Offset+r.Length, rp.Len(), r.Version))
		}
		return rp.Replace(r.Offset, r.Offset+r.Length, r.Text)
	default:
		panic(fmt.Sprintf("delta: apply of non-edit record kind %d", r.Kind))
	}
}
