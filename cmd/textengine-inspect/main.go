// Package main is a maintenance tool for delta log files: dump the
// record stream, verify checksums, or compact a log down to a single
// snapshot.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dshills/textengine/internal/compress"
	"github.com/dshills/textengine/internal/engine/buffer"
	"github.com/dshills/textengine/internal/engine/delta"
	"github.com/dshills/textengine/internal/persist"
)

// Version information (set via ldflags during build).
var version = "dev"

func main() {
	os.Exit(run())
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: textengine-inspect <command> [flags] <document-path>

Commands:
  dump     print the log header and every record
  verify   validate checksums and report corruption
  compact  rewrite the log as one snapshot at the latest version

Flags:
`)
	flag.PrintDefaults()
}

func run() int {
	var showVersion bool
	var compressOut bool
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.BoolVar(&compressOut, "z", false, "Write compacted log with zstd body")
	flag.Usage = usage
	flag.Parse()

	if showVersion {
		fmt.Printf("textengine-inspect %s\n", version)
		return 0
	}

	args := flag.Args()
	if len(args) != 2 {
		usage()
		return 2
	}
	command, path := args[0], args[1]

	codec, err := compress.NewCodec(2)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer codec.Close()

	result, err := persist.LoadLog(path, codec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch command {
	case "dump":
		return dump(result)
	case "verify":
		return verify(result)
	case "compact":
		return compact(path, result, codec, compressOut)
	default:
		usage()
		return 2
	}
}

func dump(result *persist.LoadResult) int {
	h := result.Header
	fmt.Printf("path:     %s\n", h.Path)
	fmt.Printf("encoding: %s\n", h.Encoding)
	fmt.Printf("zstd:     %v\n", h.Flags&persist.FlagZstdBody != 0)
	fmt.Printf("records:  %d\n", result.Log.Len())
	fmt.Printf("snapshots:%d\n\n", len(result.Log.Snapshots()))

	snaps := result.Log.Snapshots()
	si := 0
	for _, rec := range result.Log.Records() {
		for si < len(snaps) && snaps[si].Version < rec.Version {
			fmt.Printf("v%d snapshot(%d bytes)\n", snaps[si].Version, len(snaps[si].Text))
			si++
		}
		fmt.Println(rec.String())
	}
	for ; si < len(snaps); si++ {
		fmt.Printf("v%d snapshot(%d bytes)\n", snaps[si].Version, len(snaps[si].Text))
	}

	if result.Corruption != nil {
		fmt.Fprintf(os.Stderr, "\nWARNING: %v\n", result.Corruption)
		return 1
	}
	return 0
}

func verify(result *persist.LoadResult) int {
	if result.Corruption != nil {
		fmt.Fprintf(os.Stderr, "CORRUPT: %v\n", result.Corruption)
		fmt.Fprintf(os.Stderr, "valid prefix: %d records up to version %d\n",
			result.Log.Len(), result.Log.MaxVersion())
		return 1
	}
	fmt.Printf("ok: %d records, %d snapshots, latest version %d\n",
		result.Log.Len(), len(result.Log.Snapshots()), result.Log.MaxVersion())
	return 0
}

func compact(path string, result *persist.LoadResult, codec *compress.Codec, compressOut bool) int {
	if result.Corruption != nil {
		fmt.Fprintf(os.Stderr, "WARNING: %v\n", result.Corruption)
		fmt.Fprintf(os.Stderr, "compacting the valid prefix; records after the corrupt region are dropped\n")
	}

	version := result.Log.MaxVersion()
	r, err := result.Log.ReplayTo(version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: replaying to version %d: %v\n", version, err)
		return 1
	}

	plan := &buffer.FlushPlan{
		Path:          path,
		Encoding:      result.Header.Encoding,
		Rewrite:       true,
		Snapshots:     []delta.Snapshot{{Version: version, Text: r.String()}},
		TargetVersion: version,
	}
	if err := persist.WriteRewrite(plan, codec, compressOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("compacted to one snapshot at version %d\n", version)
	return 0
}
