package engine

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dshills/textengine/internal/compress"
	"github.com/dshills/textengine/internal/config"
	"github.com/dshills/textengine/internal/engine/buffer"
	"github.com/dshills/textengine/internal/persist"
	"github.com/dshills/textengine/internal/registry"
	"github.com/dshills/textengine/internal/task"
)

// Engine wires the registry and background managers together.
type Engine struct {
	cfg config.Config
	log logrus.FieldLogger

	codec    *compress.Codec
	sched    *task.Scheduler
	persist  *persist.Manager
	compress *compress.Manager
	registry *registry.Registry
	watcher  *registry.Watcher

	closeOnce sync.Once
	closeErr  error
}

// New creates an engine and starts its background loops.
func New(cfg config.Config, log logrus.FieldLogger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	codec, err := compress.NewCodec(cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}

	sched := task.NewScheduler(cfg.MaxConcurrentTasks)
	pm := persist.NewManager(persist.ManagerConfig{
		FlushInterval: cfg.FlushInterval,
		MaxUnflushed:  cfg.MaxUnflushed,
	}, codec, sched, log)

	var watcher *registry.Watcher
	if cfg.WatchFiles {
		watcher, err = registry.NewWatcher(log)
		if err != nil {
			codec.Close()
			return nil, err
		}
	}

	reg := registry.New(pm, watcher, log)
	pm.SetOnFlush(reg.NotifyFlushed)
	cm := compress.NewManager(compress.ManagerConfig{
		IdleThreshold: cfg.IdleThreshold,
		SweepInterval: cfg.SweepInterval,
	}, codec, persist.Codec{}, reg.All, sched, log)

	e := &Engine{
		cfg:      cfg,
		log:      log,
		codec:    codec,
		sched:    sched,
		persist:  pm,
		compress: cm,
		registry: reg,
		watcher:  watcher,
	}

	pm.Start()
	cm.Start()
	return e, nil
}

// bufferOptions translates config into per-buffer options.
func (e *Engine) bufferOptions() []buffer.Option {
	return []buffer.Option{
		buffer.WithCoalescing(e.cfg.CoalesceWindow, e.cfg.CoalesceMaxGroup),
		buffer.WithMaxUndo(e.cfg.MaxUndo),
		buffer.WithSnapshotInterval(e.cfg.SnapshotInterval),
	}
}

// Open loads a file into a buffer, or returns the already-open buffer
// for the path. The encoding names the file's character set; "" or
// "utf-8" means no conversion.
func (e *Engine) Open(path string, encoding string) (*buffer.Buffer, error) {
	b, err := e.registry.Open(path, encoding, e.bufferOptions()...)
	if err != nil {
		return nil, &BufferError{Op: "open", Path: path, Err: err}
	}
	return b, nil
}

// OpenScratch creates a new scratch buffer. Scratch buffers are never
// persisted.
func (e *Engine) OpenScratch() *buffer.Buffer {
	return e.registry.OpenScratch(e.bufferOptions()...)
}

// Buffer returns an open buffer by ID.
func (e *Engine) Buffer(id buffer.ID) (*buffer.Buffer, bool) {
	return e.registry.Get(id)
}

// List returns an iterator over open buffer summaries.
func (e *Engine) List() *registry.ListIterator {
	return e.registry.List()
}

// AddHandler registers a registry lifecycle handler.
func (e *Engine) AddHandler(h registry.Handler) {
	e.registry.AddHandler(h)
}

// lookup resolves an ID and wakes the buffer if hibernated.
func (e *Engine) lookup(op string, id buffer.ID) (*buffer.Buffer, error) {
	b, ok := e.registry.Get(id)
	if !ok {
		return nil, &BufferError{Op: op, ID: id, Err: registry.ErrNotOpen}
	}
	if err := e.compress.EnsureActive(b); err != nil {
		return nil, &BufferError{Op: op, ID: id, Path: b.Path(), Err: err}
	}
	return b, nil
}

// Apply performs one edit and returns the version it produces. The
// buffer is marked dirty for the next flush cycle.
func (e *Engine) Apply(id buffer.ID, op buffer.Op) (uint64, error) {
	b, err := e.lookup("apply", id)
	if err != nil {
		return 0, err
	}

	v, err := b.Apply(op)
	if err != nil {
		return 0, &BufferError{Op: "apply", ID: id, Path: b.Path(), Err: err}
	}

	e.markDirty(b)
	return v, nil
}

func (e *Engine) markDirty(b *buffer.Buffer) {
	if !b.Dirty() {
		return
	}
	e.persist.MarkDirty(b)
	e.registry.NotifyDirty(b)
}

// Undo reverts the most recent undo group and returns the resulting
// version.
func (e *Engine) Undo(id buffer.ID) (uint64, error) {
	b, err := e.lookup("undo", id)
	if err != nil {
		return 0, err
	}

	v, err := b.Undo()
	if err != nil {
		return 0, &BufferError{Op: "undo", ID: id, Path: b.Path(), Err: err}
	}

	e.markDirty(b)
	return v, nil
}

// Redo reapplies the most recently undone group.
func (e *Engine) Redo(id buffer.ID) (uint64, error) {
	b, err := e.lookup("redo", id)
	if err != nil {
		return 0, err
	}

	v, err := b.Redo()
	if err != nil {
		return 0, &BufferError{Op: "redo", ID: id, Path: b.Path(), Err: err}
	}

	e.markDirty(b)
	return v, nil
}

// Materialize returns a read-only view of the buffer's current
// content.
func (e *Engine) Materialize(id buffer.ID) (*buffer.View, error) {
	b, err := e.lookup("materialize", id)
	if err != nil {
		return nil, err
	}

	view, err := b.Materialize()
	if err != nil {
		return nil, &BufferError{Op: "materialize", ID: id, Path: b.Path(), Err: err}
	}
	return view, nil
}

// MaterializeAt reconstructs the content at a historical version.
func (e *Engine) MaterializeAt(id buffer.ID, version uint64) (*buffer.View, error) {
	b, err := e.lookup("materialize", id)
	if err != nil {
		return nil, err
	}

	view, err := b.MaterializeAt(version)
	if err != nil {
		return nil, &BufferError{Op: "materialize", ID: id, Path: b.Path(), Err: err}
	}
	return view, nil
}

// Save writes the buffer's content to its document file and flushes
// the delta log.
func (e *Engine) Save(id buffer.ID) error {
	b, err := e.lookup("save", id)
	if err != nil {
		return err
	}

	if e.watcher != nil && b.Path() != "" {
		e.watcher.SuppressNext(b.Path())
	}
	if err := e.persist.Save(b); err != nil {
		return &BufferError{Op: "save", ID: id, Path: b.Path(), Err: err}
	}
	return nil
}

// Flush schedules an async flush of the buffer's delta log.
func (e *Engine) Flush(id buffer.ID) error {
	b, err := e.lookup("flush", id)
	if err != nil {
		return err
	}
	e.persist.Flush(b)
	return nil
}

// Close flushes and removes one buffer.
func (e *Engine) Close(id buffer.ID) error {
	if err := e.registry.Close(id); err != nil {
		return &BufferError{Op: "close", ID: id, Err: err}
	}
	return nil
}

// Shutdown stops the background loops, flushes every dirty buffer
// within the configured timeout, and releases all resources. Safe to
// call more than once.
func (e *Engine) Shutdown() error {
	e.closeOnce.Do(func() {
		e.compress.Close()
		e.persist.Stop()

		err := e.registry.CloseAll()
		if ferr := e.persist.Shutdown(e.cfg.ShutdownTimeout); ferr != nil {
			if err == nil {
				err = ferr
			}
		}
		if serr := e.sched.Shutdown(e.cfg.ShutdownTimeout); serr != nil && err == nil {
			err = serr
		}
		if e.watcher != nil {
			e.watcher.Close()
		}
		e.codec.Close()
		e.closeErr = err
	})
	return e.closeErr
}
