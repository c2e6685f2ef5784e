package engine

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/textengine/internal/config"
	"github.com/dshills/textengine/internal/engine/buffer"
)

func newTestEngine(t *testing.T, mutate func(*config.Config)) *Engine {
	t.Helper()

	cfg := config.Default()
	cfg.FlushInterval = time.Hour
	cfg.SweepInterval = time.Hour
	cfg.WatchFiles = false
	if mutate != nil {
		mutate(&cfg)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	e, err := New(cfg, log)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := e.Shutdown(); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return e
}

func TestOpenEditSaveCycle(t *testing.T) {
	e := newTestEngine(t, nil)
	path := filepath.Join(t.TempDir(), "doc.txt")

	b, err := e.Open(path, "utf-8")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Apply(b.ID(), buffer.Insert(0, "hello world\n")); err != nil {
		t.Fatal(err)
	}
	if err := e.Save(b.ID()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world\n" {
		t.Errorf("saved content %q", data)
	}
	if b.Dirty() {
		t.Error("buffer should be clean after save")
	}
}

func TestApplyUnknownBuffer(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.Apply(buffer.NewID(), buffer.Insert(0, "x"))
	var berr *BufferError
	if !errors.As(err, &berr) {
		t.Fatalf("expected BufferError, got %v", err)
	}
	if berr.Op != "apply" {
		t.Errorf("op = %q", berr.Op)
	}
}

func TestApplyBadRangeWrapsSentinel(t *testing.T) {
	e := newTestEngine(t, nil)
	b := e.OpenScratch()

	_, err := e.Apply(b.ID(), buffer.Insert(-1, "x"))
	if !errors.Is(err, ErrOffsetOutOfRange) {
		t.Errorf("expected ErrOffsetOutOfRange through the wrapper, got %v", err)
	}
}

func TestUndoRedoThroughFacade(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) {
		c.CoalesceWindow = time.Nanosecond
		c.CoalesceMaxGroup = 1
	})
	b := e.OpenScratch()
	base := b.Text()

	if _, err := e.Apply(b.ID(), buffer.Insert(0, "added ")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Undo(b.ID()); err != nil {
		t.Fatal(err)
	}
	if b.Text() != base {
		t.Errorf("undo did not restore scratch banner")
	}
	if _, err := e.Redo(b.ID()); err != nil {
		t.Fatal(err)
	}
	if b.Text() != "added "+base {
		t.Errorf("redo content %q", b.Text())
	}

	if _, err := e.Undo(b.ID()); err != nil {
		t.Fatal(err)
	}
	// The seed banner is not an edit; nothing remains to undo.
	if _, err := e.Undo(b.ID()); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("expected ErrNothingToUndo, got %v", err)
	}
}

func TestMaterializeAtHistoricalVersion(t *testing.T) {
	e := newTestEngine(t, nil)
	b := e.OpenScratch()

	v1 := b.Version()
	want := b.Text()
	if _, err := e.Apply(b.ID(), buffer.Insert(0, "top\n")); err != nil {
		t.Fatal(err)
	}

	view, err := e.MaterializeAt(b.ID(), v1)
	if err != nil {
		t.Fatal(err)
	}
	if view.Text() != want {
		t.Errorf("historical view %q, want %q", view.Text(), want)
	}

	if _, err := e.MaterializeAt(b.ID(), 999); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("expected ErrVersionNotFound, got %v", err)
	}
}

func TestHibernatedBufferWakesOnAccess(t *testing.T) {
	e := newTestEngine(t, func(c *config.Config) {
		c.IdleThreshold = time.Nanosecond
	})
	path := filepath.Join(t.TempDir(), "doc.txt")

	b, err := e.Open(path, "utf-8")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Apply(b.ID(), buffer.Insert(0, "park me")); err != nil {
		t.Fatal(err)
	}

	// Drain the flush, then force a sweep cycle.
	e.persist.FlushAll()
	deadline := time.Now().Add(2 * time.Second)
	for b.State() != buffer.StateCompressed && time.Now().Before(deadline) {
		e.compress.Sweep()
		time.Sleep(time.Millisecond)
	}
	if b.State() != buffer.StateCompressed {
		t.Fatal("buffer never hibernated")
	}

	// Any facade access wakes it transparently.
	view, err := e.Materialize(b.ID())
	if err != nil {
		t.Fatal(err)
	}
	if view.Text() != "park me" {
		t.Errorf("woken content %q", view.Text())
	}
	if b.State() != buffer.StateActive {
		t.Errorf("state after access = %v", b.State())
	}
}

func TestListSummaries(t *testing.T) {
	e := newTestEngine(t, nil)
	dir := t.TempDir()

	b, err := e.Open(filepath.Join(dir, "a.txt"), "utf-8")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Apply(b.ID(), buffer.Insert(0, "x")); err != nil {
		t.Fatal(err)
	}
	e.OpenScratch()

	it := e.List()
	var n int
	for it.Next() {
		n++
		s := it.Summary()
		if s.ID == b.ID() && !s.Dirty {
			t.Error("edited file buffer should be listed dirty")
		}
	}
	if n != 2 {
		t.Errorf("listed %d buffers, want 2", n)
	}
}

func TestShutdownFlushesEverything(t *testing.T) {
	cfg := config.Default()
	cfg.FlushInterval = time.Hour
	cfg.SweepInterval = time.Hour
	cfg.WatchFiles = false

	log := logrus.New()
	log.SetOutput(io.Discard)

	e, err := New(cfg, log)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "doc.txt")
	b, err := e.Open(path, "utf-8")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Apply(b.ID(), buffer.Insert(0, "durable")); err != nil {
		t.Fatal(err)
	}

	if err := e.Shutdown(); err != nil {
		t.Fatal(err)
	}

	// A fresh engine replays the flushed log.
	e2, err := New(cfg, log)
	if err != nil {
		t.Fatal(err)
	}
	defer e2.Shutdown()

	b2, err := e2.Open(path, "utf-8")
	if err != nil {
		t.Fatal(err)
	}
	if b2.Text() != "durable" {
		t.Errorf("reloaded content %q", b2.Text())
	}
}
