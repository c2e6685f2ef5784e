package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds the engine's tunable settings.
type Config struct {
	// CoalesceWindow is the maximum pause between single-rune edits
	// that still merge into one undo group.
	CoalesceWindow time.Duration `toml:"coalesce_window" yaml:"coalesce_window"`

	// CoalesceMaxGroup caps the number of edits in one undo group.
	CoalesceMaxGroup int `toml:"coalesce_max_group" yaml:"coalesce_max_group"`

	// MaxUndo caps the undo stack depth per buffer.
	MaxUndo int `toml:"max_undo" yaml:"max_undo"`

	// SnapshotInterval is the number of applied records between
	// materialization snapshots.
	SnapshotInterval int `toml:"snapshot_interval" yaml:"snapshot_interval"`

	// IdleThreshold is how long a buffer must go untouched before the
	// compression sweep considers it idle.
	IdleThreshold time.Duration `toml:"idle_threshold" yaml:"idle_threshold"`

	// SweepInterval is how often the compression manager scans for
	// idle buffers.
	SweepInterval time.Duration `toml:"sweep_interval" yaml:"sweep_interval"`

	// CompressionLevel maps onto zstd encoder levels 1 (fastest)
	// through 4 (best).
	CompressionLevel int `toml:"compression_level" yaml:"compression_level"`

	// FlushInterval is how often dirty buffers are flushed to their
	// delta logs.
	FlushInterval time.Duration `toml:"flush_interval" yaml:"flush_interval"`

	// MaxUnflushed is the per-buffer unflushed record count that
	// triggers a backlog warning.
	MaxUnflushed int `toml:"max_unflushed" yaml:"max_unflushed"`

	// MaxConcurrentTasks bounds background work (flushes, compression).
	MaxConcurrentTasks int `toml:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`

	// ShutdownTimeout bounds how long Shutdown waits for final flushes.
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`

	// WatchFiles enables external-change detection on open files.
	WatchFiles bool `toml:"watch_files" yaml:"watch_files"`
}

// Default returns the engine defaults.
func Default() Config {
	return Config{
		CoalesceWindow:     400 * time.Millisecond,
		CoalesceMaxGroup:   32,
		MaxUndo:            1000,
		SnapshotInterval:   256,
		IdleThreshold:      5 * time.Minute,
		SweepInterval:      30 * time.Second,
		CompressionLevel:   2,
		FlushInterval:      3 * time.Second,
		MaxUnflushed:       512,
		MaxConcurrentTasks: 4,
		ShutdownTimeout:    10 * time.Second,
		WatchFiles:         true,
	}
}

// Validate checks the configuration for values the engine cannot run
// with.
func (c *Config) Validate() error {
	if c.CoalesceWindow < 0 {
		return &ValidationError{Field: "coalesce_window", Message: "must not be negative"}
	}
	if c.CoalesceMaxGroup < 1 {
		return &ValidationError{Field: "coalesce_max_group", Message: "must be at least 1"}
	}
	if c.MaxUndo < 1 {
		return &ValidationError{Field: "max_undo", Message: "must be at least 1"}
	}
	if c.SnapshotInterval < 1 {
		return &ValidationError{Field: "snapshot_interval", Message: "must be at least 1"}
	}
	if c.IdleThreshold <= 0 {
		return &ValidationError{Field: "idle_threshold", Message: "must be positive"}
	}
	if c.SweepInterval <= 0 {
		return &ValidationError{Field: "sweep_interval", Message: "must be positive"}
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 4 {
		return &ValidationError{Field: "compression_level", Message: "must be between 1 and 4"}
	}
	if c.FlushInterval <= 0 {
		return &ValidationError{Field: "flush_interval", Message: "must be positive"}
	}
	if c.MaxUnflushed < 1 {
		return &ValidationError{Field: "max_unflushed", Message: "must be at least 1"}
	}
	if c.MaxConcurrentTasks < 1 {
		return &ValidationError{Field: "max_concurrent_tasks", Message: "must be at least 1"}
	}
	if c.ShutdownTimeout <= 0 {
		return &ValidationError{Field: "shutdown_timeout", Message: "must be positive"}
	}
	return nil
}

// ValidationError reports a config field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ParseError reports a config file that could not be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config: parsing %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads a config file and overlays it on the defaults. The format
// is chosen by extension: .toml, or .yaml/.yml. A missing file returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch ext := filepath.Ext(path); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Default(), &ParseError{Path: path, Err: err}
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Default(), &ParseError{Path: path, Err: err}
		}
	default:
		return Default(), fmt.Errorf("config: unsupported extension %q", ext)
	}

	if err := cfg.Validate(); err != nil {
		return Default(), err
	}
	return cfg, nil
}
