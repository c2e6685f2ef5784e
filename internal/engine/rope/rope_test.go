package rope

import (
	"math/rand"
	"strings"
	"testing"
)

func TestEmptyRope(t *testing.T) {
	r := New()

	if !r.IsEmpty() {
		t.Error("new rope should be empty")
	}
	if r.Len() != 0 {
		t.Errorf("expected length 0, got %d", r.Len())
	}
	if r.LineCount() != 1 {
		t.Errorf("expected 1 line, got %d", r.LineCount())
	}
	if r.String() != "" {
		t.Errorf("expected empty string, got %q", r.String())
	}
}

func TestFromString(t *testing.T) {
	text := "hello, world"
	r := FromString(text)

	if r.String() != text {
		t.Errorf("expected %q, got %q", text, r.String())
	}
	if r.Len() != int64(len(text)) {
		t.Errorf("expected length %d, got %d", len(text), r.Len())
	}
}

func TestFromStringLarge(t *testing.T) {
	text := strings.Repeat("abcdefghij\n", 2000)
	r := FromString(text)

	if r.String() != text {
		t.Error("large rope round-trip mismatch")
	}
	if r.LineCount() != 2001 {
		t.Errorf("expected 2001 lines, got %d", r.LineCount())
	}
}

func TestInsert(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		offset int64
		text   string
		want   string
	}{
		{"start", "world", 0, "hello ", "hello world"},
		{"middle", "hello world", 5, ",", "hello, world"},
		{"end", "hello", 5, "!", "hello!"},
		{"empty base", "", 0, "abc", "abc"},
		{"empty text", "abc", 1, "", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FromString(tt.base).Insert(tt.offset, tt.text)
			if r.String() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, r.String())
			}
		})
	}
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name       string
		base       string
		start, end int64
		want       string
	}{
		{"prefix", "hello world", 0, 6, "world"},
		{"middle", "hello world", 5, 6, "helloworld"},
		{"suffix", "hello world", 5, 11, "hello"},
		{"all", "hello", 0, 5, ""},
		{"empty range", "hello", 2, 2, "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FromString(tt.base).Delete(tt.start, tt.end)
			if r.String() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, r.String())
			}
		})
	}
}

func TestReplace(t *testing.T) {
	r := FromString("hello world").Replace(6, 11, "rope")
	if r.String() != "hello rope" {
		t.Errorf("expected %q, got %q", "hello rope", r.String())
	}
}

func TestImmutability(t *testing.T) {
	r1 := FromString("hello")
	r2 := r1.Insert(5, " world")

	if r1.String() != "hello" {
		t.Errorf("original rope changed: %q", r1.String())
	}
	if r2.String() != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", r2.String())
	}
}

func TestSlice(t *testing.T) {
	r := FromString("hello, world")

	if got := r.Slice(0, 5); got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
	if got := r.Slice(7, 12); got != "world" {
		t.Errorf("expected %q, got %q", "world", got)
	}
	if got := r.Slice(5, 5); got != "" {
		t.Errorf("expected empty slice, got %q", got)
	}
	if got := r.Slice(-3, 100); got != "hello, world" {
		t.Errorf("clamped slice mismatch: %q", got)
	}
}

func TestByteAt(t *testing.T) {
	r := FromString("abc")

	if b, ok := r.ByteAt(1); !ok || b != 'b' {
		t.Errorf("expected 'b', got %q ok=%v", b, ok)
	}
	if _, ok := r.ByteAt(3); ok {
		t.Error("expected out-of-range offset to fail")
	}
	if _, ok := r.ByteAt(-1); ok {
		t.Error("expected negative offset to fail")
	}
}

func TestLineAddressing(t *testing.T) {
	r := FromString("one\ntwo\nthree")

	if r.LineCount() != 3 {
		t.Fatalf("expected 3 lines, got %d", r.LineCount())
	}

	lines := []string{"one", "two", "three"}
	for i, want := range lines {
		if got := r.LineText(uint32(i)); got != want {
			t.Errorf("line %d: expected %q, got %q", i, want, got)
		}
	}

	if got := r.LineStartOffset(1); got != 4 {
		t.Errorf("line 1 start: expected 4, got %d", got)
	}
	if got := r.LineEndOffset(1); got != 7 {
		t.Errorf("line 1 end: expected 7, got %d", got)
	}
	if got := r.LineEndOffset(2); got != 13 {
		t.Errorf("line 2 end: expected 13, got %d", got)
	}
}

func TestOffsetToPoint(t *testing.T) {
	r := FromString("one\ntwo\nthree")

	tests := []struct {
		offset int64
		want   Point
	}{
		{0, Point{0, 0}},
		{3, Point{0, 3}},
		{4, Point{1, 0}},
		{6, Point{1, 2}},
		{8, Point{2, 0}},
		{13, Point{2, 5}},
	}

	for _, tt := range tests {
		if got := r.OffsetToPoint(tt.offset); got != tt.want {
			t.Errorf("offset %d: expected %v, got %v", tt.offset, tt.want, got)
		}
	}
}

func TestPointToOffset(t *testing.T) {
	r := FromString("one\ntwo\nthree")

	tests := []struct {
		point Point
		want  int64
	}{
		{Point{0, 0}, 0},
		{Point{1, 0}, 4},
		{Point{1, 2}, 6},
		{Point{2, 5}, 13},
		{Point{0, 99}, 3}, // clamps to end of line
	}

	for _, tt := range tests {
		if got := r.PointToOffset(tt.point); got != tt.want {
			t.Errorf("point %v: expected %d, got %d", tt.point, tt.want, got)
		}
	}
}

func TestTrailingNewline(t *testing.T) {
	r := FromString("one\n")

	if r.LineCount() != 2 {
		t.Errorf("expected 2 lines, got %d", r.LineCount())
	}
	if got := r.LineText(1); got != "" {
		t.Errorf("expected empty final line, got %q", got)
	}
}

func TestLineIterator(t *testing.T) {
	r := FromString("a\nb\nc")
	it := r.Lines()

	var got []string
	for {
		line, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, line)
	}

	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	it.Reset()
	if line, ok := it.Next(); !ok || line != "a" {
		t.Errorf("after reset expected %q, got %q ok=%v", "a", line, ok)
	}
}

func TestChunkIterator(t *testing.T) {
	text := strings.Repeat("0123456789", 500)
	r := FromString(text)

	var sb strings.Builder
	it := r.Chunks()
	for {
		chunk, ok := it.Next()
		if !ok {
			break
		}
		sb.WriteString(chunk)
	}

	if sb.String() != text {
		t.Error("chunk concatenation mismatch")
	}
}

// TestRandomEditsMatchReference drives the rope and a plain string
// through the same random edit sequence and compares after every step.
func TestRandomEditsMatchReference(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ref := ""
	r := New()

	alphabet := "abcdefg\nhij\n"

	for i := 0; i < 2000; i++ {
		switch rng.Intn(3) {
		case 0, 1: // insert
			off := int64(rng.Intn(len(ref) + 1))
			n := rng.Intn(8) + 1
			var sb strings.Builder
			for j := 0; j < n; j++ {
				sb.WriteByte(alphabet[rng.Intn(len(alphabet))])
			}
			text := sb.String()
			r = r.Insert(off, text)
			ref = ref[:off] + text + ref[off:]
		case 2: // delete
			if len(ref) == 0 {
				continue
			}
			start := int64(rng.Intn(len(ref)))
			end := start + int64(rng.Intn(int(int64(len(ref))-start))+1)
			r = r.Delete(start, end)
			ref = ref[:start] + ref[end:]
		}

		if r.String() != ref {
			t.Fatalf("step %d: rope diverged from reference", i)
		}
		if r.Len() != int64(len(ref)) {
			t.Fatalf("step %d: length mismatch %d vs %d", i, r.Len(), len(ref))
		}
		wantLines := strings.Count(ref, "\n") + 1
		if int(r.LineCount()) != wantLines {
			t.Fatalf("step %d: line count mismatch %d vs %d", i, r.LineCount(), wantLines)
		}
	}
}
