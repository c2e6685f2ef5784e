package persist

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/dshills/textengine/internal/engine/buffer"
	"github.com/dshills/textengine/internal/engine/delta"
)

// File layout, little-endian throughout:
//
//	magic "TXDL0001"
//	format version uint32
//	flags uint32 (bit0: zstd-compressed body)
//	encoding name: len uint16 + bytes
//	bound path: len uint16 + bytes
//	record stream (possibly one zstd frame when bit0 set)
//
// Each record is kind uint8, version uint64, offset int64, length
// int64, old text (len uint32 + bytes), new text (len uint32 + bytes),
// then the xxhash64 of everything before the checksum. Snapshot
// records (kind 4) carry the full content in the new-text field.

var magic = [8]byte{'T', 'X', 'D', 'L', '0', '0', '0', '1'}

const (
	formatVersion = 1

	// FlagZstdBody marks a record stream wrapped in one zstd frame.
	FlagZstdBody uint32 = 1 << 0
)

// Errors surfaced by the codec.
var (
	// ErrBadMagic reports a file that is not a delta log.
	ErrBadMagic = errors.New("not a delta log file")
	// ErrUnsupportedVersion reports a log written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported log format version")
)

// CorruptionError reports a record that failed validation during load.
// The log's valid prefix up to the bad record is still usable.
type CorruptionError struct {
	Path   string
	Offset int64 // byte offset of the bad record within the stream
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt delta log %s at byte %d: %s", e.Path, e.Offset, e.Reason)
}

// Header is the decoded file header.
type Header struct {
	Flags    uint32
	Encoding string
	Path     string
}

func appendUint16Str(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func appendUint32Str(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// EncodeHeader serializes a file header.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, 0, 32+len(h.Encoding)+len(h.Path))
	buf = append(buf, magic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, formatVersion)
	buf = binary.LittleEndian.AppendUint32(buf, h.Flags)
	buf = appendUint16Str(buf, h.Encoding)
	buf = appendUint16Str(buf, h.Path)
	return buf
}

// AppendRecord serializes one edit record onto buf.
func AppendRecord(buf []byte, rec delta.Record) []byte {
	start := len(buf)
	buf = append(buf, byte(rec.Kind))
	buf = binary.LittleEndian.AppendUint64(buf, rec.Version)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(rec.Offset))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(rec.Length))
	buf = appendUint32Str(buf, rec.OldText)
	buf = appendUint32Str(buf, rec.Text)
	sum := xxhash.Sum64(buf[start:])
	return binary.LittleEndian.AppendUint64(buf, sum)
}

// AppendSnapshot serializes one snapshot record onto buf.
func AppendSnapshot(buf []byte, snap delta.Snapshot) []byte {
	return AppendRecord(buf, delta.Record{
		Kind:    delta.KindSnapshot,
		Version: snap.Version,
		Text:    snap.Text,
	})
}

// decoder walks a byte stream of records.
type decoder struct {
	data []byte
	pos  int64
}

func (d *decoder) remaining() int64 { return int64(len(d.data)) - d.pos }

func (d *decoder) corrupt(reason string) *CorruptionError {
	return &CorruptionError{Offset: d.pos, Reason: reason}
}

// next decodes one record. io semantics: (rec, nil) on success, (zero,
// nil) with done=true at a clean end of stream, error on corruption.
func (d *decoder) next() (rec delta.Record, done bool, err error) {
	if d.remaining() == 0 {
		return delta.Record{}, true, nil
	}

	start := d.pos
	if d.remaining() < 25 {
		return delta.Record{}, false, d.corrupt("truncated record header")
	}

	kind := delta.Kind(d.data[d.pos])
	if kind < delta.KindInsert || kind > delta.KindSnapshot {
		return delta.Record{}, false, d.corrupt(fmt.Sprintf("invalid record kind %d", kind))
	}
	version := binary.LittleEndian.Uint64(d.data[d.pos+1:])
	offset := int64(binary.LittleEndian.Uint64(d.data[d.pos+9:]))
	length := int64(binary.LittleEndian.Uint64(d.data[d.pos+17:]))
	d.pos += 25

	oldText, err := d.readString()
	if err != nil {
		return delta.Record{}, false, err
	}
	text, err := d.readString()
	if err != nil {
		return delta.Record{}, false, err
	}

	if d.remaining() < 8 {
		return delta.Record{}, false, d.corrupt("truncated checksum")
	}
	want := binary.LittleEndian.Uint64(d.data[d.pos:])
	got := xxhash.Sum64(d.data[start:d.pos])
	d.pos += 8

	if got != want {
		d.pos = start
		return delta.Record{}, false, d.corrupt("checksum mismatch")
	}

	return delta.Record{
		Kind:    kind,
		Version: version,
		Offset:  offset,
		Length:  length,
		OldText: oldText,
		Text:    text,
	}, false, nil
}

func (d *decoder) readString() (string, error) {
	if d.remaining() < 4 {
		return "", d.corrupt("truncated string length")
	}
	n := int64(binary.LittleEndian.Uint32(d.data[d.pos:]))
	d.pos += 4
	if d.remaining() < n {
		return "", d.corrupt("truncated string body")
	}
	s := string(d.data[d.pos : d.pos+n])
	d.pos += n
	return s, nil
}

// DecodeHeader parses the file header and returns it with the byte
// count it consumed.
func DecodeHeader(data []byte) (Header, int64, error) {
	if len(data) < 16 || string(data[:8]) != string(magic[:]) {
		return Header{}, 0, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint32(data[8:]); v != formatVersion {
		return Header{}, 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	h := Header{Flags: binary.LittleEndian.Uint32(data[12:])}
	pos := int64(16)

	read := func() (string, error) {
		if int64(len(data))-pos < 2 {
			return "", ErrBadMagic
		}
		n := int64(binary.LittleEndian.Uint16(data[pos:]))
		pos += 2
		if int64(len(data))-pos < n {
			return "", ErrBadMagic
		}
		s := string(data[pos : pos+n])
		pos += n
		return s, nil
	}

	var err error
	if h.Encoding, err = read(); err != nil {
		return Header{}, 0, err
	}
	if h.Path, err = read(); err != nil {
		return Header{}, 0, err
	}
	return h, pos, nil
}

// DecodeRecords decodes a record stream into a delta log. On a corrupt
// record it stops and returns the valid prefix alongside the error;
// the caller decides whether truncation is acceptable.
func DecodeRecords(data []byte) (*delta.Log, *CorruptionError) {
	log := delta.NewLog()
	d := &decoder{data: data}

	for {
		rec, done, err := d.next()
		if err != nil {
			var cerr *CorruptionError
			errors.As(err, &cerr)
			return log, cerr
		}
		if done {
			return log, nil
		}

		if rec.Kind == delta.KindSnapshot {
			if n := len(log.Snapshots()); n > 0 && log.Snapshots()[n-1].Version > rec.Version {
				return log, d.corrupt("snapshot version out of order")
			}
			log.AddSnapshot(rec.Version, rec.Text)
			continue
		}
		if rec.Version <= log.MaxVersion() {
			return log, d.corrupt("record version out of order")
		}
		log.Append(rec)
	}
}

// EncodeLogBody serializes records and snapshots merged in version
// order. A snapshot at version v follows the record producing v, so a
// sequential decode always sees increasing versions.
func EncodeLogBody(records []delta.Record, snaps []delta.Snapshot) []byte {
	var buf []byte
	si := 0
	for _, rec := range records {
		for si < len(snaps) && snaps[si].Version < rec.Version {
			buf = AppendSnapshot(buf, snaps[si])
			si++
		}
		buf = AppendRecord(buf, rec)
		if si < len(snaps) && snaps[si].Version == rec.Version {
			buf = AppendSnapshot(buf, snaps[si])
			si++
		}
	}
	for ; si < len(snaps); si++ {
		buf = AppendSnapshot(buf, snaps[si])
	}
	return buf
}

// Codec implements the compression manager's payload serialization so
// hibernated buffers and on-disk logs share one record format.
type Codec struct{}

// EncodePayload serializes a hibernation payload.
func (Codec) EncodePayload(p *buffer.HibernatePayload) ([]byte, error) {
	buf := binary.LittleEndian.AppendUint64(nil, p.Version)
	return append(buf, EncodeLogBody(p.Records, p.Snapshots)...), nil
}

// DecodePayload inverts EncodePayload.
func (Codec) DecodePayload(data []byte) (*buffer.HibernatePayload, error) {
	if len(data) < 8 {
		return nil, &CorruptionError{Reason: "truncated payload"}
	}
	version := binary.LittleEndian.Uint64(data)

	log, cerr := DecodeRecords(data[8:])
	if cerr != nil {
		return nil, cerr
	}

	return &buffer.HibernatePayload{
		Version:   version,
		Snapshots: append([]delta.Snapshot(nil), log.Snapshots()...),
		Records:   append([]delta.Record(nil), log.Records()...),
	}, nil
}
