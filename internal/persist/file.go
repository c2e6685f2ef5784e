package persist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/textengine/internal/compress"
	"github.com/dshills/textengine/internal/engine/buffer"
	"github.com/dshills/textengine/internal/engine/delta"
)

// LogExt is the sidecar suffix for delta log files.
const LogExt = ".txdl"

// LogPath returns the delta log path for a document path.
func LogPath(docPath string) string {
	return docPath + LogExt
}

// WriteRewrite replaces the log file wholesale with the plan's
// snapshots and records. The write goes through a temp file and
// rename so readers never see a partial log.
func WriteRewrite(plan *buffer.FlushPlan, codec *compress.Codec, compressBody bool) error {
	path := LogPath(plan.Path)

	var flags uint32
	body := EncodeLogBody(plan.Records, plan.Snapshots)
	if compressBody {
		flags |= FlagZstdBody
		body = codec.Compress(body)
	}

	data := EncodeHeader(Header{Flags: flags, Encoding: plan.Encoding, Path: plan.Path})
	data = append(data, body...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("writing temp log: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("replacing log: %w", err)
	}
	return nil
}

// WriteAppend appends the plan's records to an existing log file. A
// compressed-body log cannot grow in place; callers rewrite instead.
func WriteAppend(plan *buffer.FlushPlan) error {
	path := LogPath(plan.Path)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(EncodeLogBody(plan.Records, plan.Snapshots)); err != nil {
		return fmt.Errorf("appending to log: %w", err)
	}
	return f.Sync()
}

// LoadResult is the outcome of reading a log file.
type LoadResult struct {
	Header Header
	Log    *delta.Log

	// Corruption is non-nil when the file was truncated at an invalid
	// record. Log still holds the valid prefix.
	Corruption *CorruptionError
}

// LoadLog reads and validates a delta log file.
func LoadLog(docPath string, codec *compress.Codec) (*LoadResult, error) {
	path := LogPath(docPath)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	header, n, err := DecodeHeader(data)
	if err != nil {
		return nil, fmt.Errorf("reading log %s: %w", path, err)
	}

	body := data[n:]
	if header.Flags&FlagZstdBody != 0 {
		body, err = codec.Decompress(body)
		if err != nil {
			return nil, fmt.Errorf("reading log %s: %w", path, err)
		}
	}

	log, cerr := DecodeRecords(body)
	if cerr != nil {
		cerr.Path = path
	}
	return &LoadResult{Header: header, Log: log, Corruption: cerr}, nil
}
