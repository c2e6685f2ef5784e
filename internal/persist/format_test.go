package persist

import (
	"testing"

	"github.com/dshills/textengine/internal/engine/buffer"
	"github.com/dshills/textengine/internal/engine/delta"
)

func sampleRecords() []delta.Record {
	return []delta.Record{
		{Kind: delta.KindInsert, Version: 1, Offset: 0, Text: "hello world"},
		{Kind: delta.KindDelete, Version: 2, Offset: 5, Length: 6, OldText: " world"},
		{Kind: delta.KindReplace, Version: 3, Offset: 0, Length: 5, Text: "goodbye", OldText: "hello"},
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Flags: FlagZstdBody, Encoding: "utf-8", Path: "/home/u/notes.txt"}

	data := EncodeHeader(h)
	got, n, err := DecodeHeader(data)
	if err != nil {
		t.Fatal(err)
	}
	if int(n) != len(data) {
		t.Errorf("consumed %d of %d header bytes", n, len(data))
	}
	if got != h {
		t.Errorf("header round trip: got %+v, want %+v", got, h)
	}
}

func TestDecodeHeaderRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeHeader([]byte("definitely not a log")); err == nil {
		t.Error("expected error for bad magic")
	}
	if _, _, err := DecodeHeader(nil); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestRecordStreamRoundTrip(t *testing.T) {
	records := sampleRecords()
	snaps := []delta.Snapshot{{Version: 2, Text: "hello"}}

	body := EncodeLogBody(records, snaps)
	log, cerr := DecodeRecords(body)
	if cerr != nil {
		t.Fatalf("unexpected corruption: %v", cerr)
	}

	if log.Len() != len(records) {
		t.Fatalf("decoded %d records, want %d", log.Len(), len(records))
	}
	for i, rec := range log.Records() {
		want := records[i]
		if rec.Kind != want.Kind || rec.Version != want.Version ||
			rec.Offset != want.Offset || rec.Length != want.Length ||
			rec.Text != want.Text || rec.OldText != want.OldText {
			t.Errorf("record %d: got %+v, want %+v", i, rec, want)
		}
	}

	if got := log.Snapshots(); len(got) != 1 || got[0] != snaps[0] {
		t.Errorf("snapshots: got %+v, want %+v", got, snaps)
	}
}

func TestDecodeTruncatesAtFlippedBit(t *testing.T) {
	body := EncodeLogBody(sampleRecords(), nil)

	// Flip a byte inside the second record's text.
	firstLen := len(AppendRecord(nil, sampleRecords()[0]))
	corrupted := append([]byte(nil), body...)
	corrupted[firstLen+30] ^= 0xFF

	log, cerr := DecodeRecords(corrupted)
	if cerr == nil {
		t.Fatal("expected corruption error")
	}
	if log.Len() != 1 {
		t.Errorf("expected valid prefix of 1 record, got %d", log.Len())
	}
	if log.LastVersion() != 1 {
		t.Errorf("prefix ends at version %d, want 1", log.LastVersion())
	}
}

func TestDecodeTruncatedTail(t *testing.T) {
	body := EncodeLogBody(sampleRecords(), nil)

	log, cerr := DecodeRecords(body[:len(body)-5])
	if cerr == nil {
		t.Fatal("expected corruption error for cut-off record")
	}
	if log.Len() != 2 {
		t.Errorf("expected valid prefix of 2 records, got %d", log.Len())
	}
}

func TestDecodeRejectsOutOfOrderVersions(t *testing.T) {
	buf := AppendRecord(nil, delta.Record{Kind: delta.KindInsert, Version: 5, Text: "x"})
	buf = AppendRecord(buf, delta.Record{Kind: delta.KindInsert, Version: 3, Text: "y"})

	log, cerr := DecodeRecords(buf)
	if cerr == nil {
		t.Fatal("expected corruption error for version regression")
	}
	if log.Len() != 1 {
		t.Errorf("expected valid prefix of 1 record, got %d", log.Len())
	}
}

func TestPayloadCodecRoundTrip(t *testing.T) {
	payload := &buffer.HibernatePayload{
		Version:   3,
		Records:   sampleRecords(),
		Snapshots: []delta.Snapshot{{Version: 2, Text: "hello"}},
	}

	data, err := Codec{}.EncodePayload(payload)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Codec{}.DecodePayload(data)
	if err != nil {
		t.Fatal(err)
	}

	if got.Version != payload.Version {
		t.Errorf("version %d, want %d", got.Version, payload.Version)
	}
	if len(got.Records) != len(payload.Records) {
		t.Errorf("%d records, want %d", len(got.Records), len(payload.Records))
	}
	if len(got.Snapshots) != 1 || got.Snapshots[0].Text != "hello" {
		t.Errorf("snapshots did not survive: %+v", got.Snapshots)
	}
}

func TestPayloadCodecRejectsGarbage(t *testing.T) {
	if _, err := (Codec{}).DecodePayload([]byte{1, 2}); err == nil {
		t.Error("expected error for truncated payload")
	}
}
