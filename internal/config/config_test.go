package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg != Default() {
		t.Error("missing file should yield defaults")
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	content := `
coalesce_window = "250ms"
snapshot_interval = 128
compression_level = 3
watch_files = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CoalesceWindow != 250*time.Millisecond {
		t.Errorf("coalesce_window = %v", cfg.CoalesceWindow)
	}
	if cfg.SnapshotInterval != 128 {
		t.Errorf("snapshot_interval = %d", cfg.SnapshotInterval)
	}
	if cfg.CompressionLevel != 3 {
		t.Errorf("compression_level = %d", cfg.CompressionLevel)
	}
	if cfg.WatchFiles {
		t.Error("watch_files should be false")
	}
	// Unset fields keep defaults.
	if cfg.MaxUndo != Default().MaxUndo {
		t.Errorf("max_undo = %d, want default", cfg.MaxUndo)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	content := "flush_interval: 1s\nmax_unflushed: 64\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FlushInterval != time.Second {
		t.Errorf("flush_interval = %v", cfg.FlushInterval)
	}
	if cfg.MaxUnflushed != 64 {
		t.Errorf("max_unflushed = %d", cfg.MaxUnflushed)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("= not toml ="), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Errorf("expected ParseError, got %v", err)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative window", func(c *Config) { c.CoalesceWindow = -time.Second }},
		{"zero group", func(c *Config) { c.CoalesceMaxGroup = 0 }},
		{"zero snapshot interval", func(c *Config) { c.SnapshotInterval = 0 }},
		{"zero idle threshold", func(c *Config) { c.IdleThreshold = 0 }},
		{"compression too high", func(c *Config) { c.CompressionLevel = 9 }},
		{"zero flush interval", func(c *Config) { c.FlushInterval = 0 }},
		{"zero tasks", func(c *Config) { c.MaxConcurrentTasks = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestLoadInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	if err := os.WriteFile(path, []byte("compression_level = 99\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}
