package buffer

import (
	"fmt"

	"github.com/dshills/textengine/internal/engine/delta"
)

// Op is an edit request against the current buffer content. Offset and
// Length address pre-existing bytes; Text is the content to add.
type Op struct {
	Kind   delta.Kind
	Offset ByteOffset
	Length ByteOffset
	Text   string
}

// Insert builds an op that inserts text at the given offset.
func Insert(offset ByteOffset, text string) Op {
	return Op{Kind: delta.KindInsert, Offset: offset, Text: text}
}

// Delete builds an op that removes length bytes at the given offset.
func Delete(offset, length ByteOffset) Op {
	return Op{Kind: delta.KindDelete, Offset: offset, Length: length}
}

// Replace builds an op that substitutes length bytes at the given
// offset with text, as a single version bump.
func Replace(offset, length ByteOffset, text string) Op {
	return Op{Kind: delta.KindReplace, Offset: offset, Length: length, Text: text}
}

// String returns a human-readable representation of the op.
func (op Op) String() string {
	switch op.Kind {
	case delta.KindInsert:
		return fmt.Sprintf("insert(%d, %q)", op.Offset, op.Text)
	case delta.KindDelete:
		return fmt.Sprintf("delete(%d, %d)", op.Offset, op.Length)
	case delta.KindReplace:
		return fmt.Sprintf("replace(%d, %d, %q)", op.Offset, op.Length, op.Text)
	default:
		return "unknown op"
	}
}
