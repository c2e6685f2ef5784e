package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/textengine/internal/compress"
	"github.com/dshills/textengine/internal/engine/buffer"
	"github.com/dshills/textengine/internal/task"
)

// ManagerConfig configures the persistence manager.
type ManagerConfig struct {
	// FlushInterval is how often dirty buffers flush automatically.
	FlushInterval time.Duration

	// MaxUnflushed is the per-buffer unflushed record count that logs
	// a backlog warning. Edits are never blocked.
	MaxUnflushed int

	// CompressLogs writes log bodies as zstd frames. Compressed logs
	// cannot grow in place, so every flush becomes a rewrite.
	CompressLogs bool
}

// Manager flushes dirty buffers to their delta logs asynchronously.
// Each buffer has at most one flush in flight; edits arriving during a
// write are picked up by a follow-up flush, preserving per-buffer FIFO
// order.
type Manager struct {
	cfg   ManagerConfig
	codec *compress.Codec
	sched *task.Scheduler
	log   logrus.FieldLogger

	mu       sync.Mutex
	dirty    map[buffer.ID]*buffer.Buffer
	inflight map[buffer.ID]bool
	writeMu  map[buffer.ID]*sync.Mutex

	onFlush func(*buffer.Buffer, uint64)

	started  bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewManager creates a persistence manager. The codec is shared with
// the compression manager so both use one zstd instance.
func NewManager(cfg ManagerConfig, codec *compress.Codec, sched *task.Scheduler, log logrus.FieldLogger) *Manager {
	return &Manager{
		cfg:      cfg,
		codec:    codec,
		sched:    sched,
		log:      log,
		dirty:    make(map[buffer.ID]*buffer.Buffer),
		inflight: make(map[buffer.ID]bool),
		writeMu:  make(map[buffer.ID]*sync.Mutex),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetOnFlush registers a callback invoked after each successful
// flush with the version made durable. Set it before Start.
func (m *Manager) SetOnFlush(fn func(*buffer.Buffer, uint64)) {
	m.onFlush = fn
}

// Start launches the periodic flush loop.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.loop()
}

func (m *Manager) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.FlushAll()
		case <-m.stop:
			return
		}
	}
}

// Stop halts the periodic loop without flushing. Shutdown flushes.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.done
	}
}

// MarkDirty notes that a buffer has unflushed changes. Idempotent and
// cheap; the edit path calls it after every apply.
func (m *Manager) MarkDirty(b *buffer.Buffer) {
	if b.IsScratch() {
		return
	}

	m.mu.Lock()
	m.dirty[b.ID()] = b
	m.mu.Unlock()

	if n := b.UnflushedCount(); n > m.cfg.MaxUnflushed {
		m.log.WithFields(logrus.Fields{
			"buffer":    b.ID(),
			"path":      b.Path(),
			"unflushed": n,
		}).Warn("flush backlog exceeds limit")
	}
}

// FlushAll schedules a flush for every dirty buffer.
func (m *Manager) FlushAll() {
	m.mu.Lock()
	bufs := make([]*buffer.Buffer, 0, len(m.dirty))
	for _, b := range m.dirty {
		bufs = append(bufs, b)
	}
	m.mu.Unlock()

	for _, b := range bufs {
		m.Flush(b)
	}
}

// Flush schedules an async flush for one buffer. A flush already in
// flight covers it: the completion check reschedules if the buffer is
// still dirty afterward.
func (m *Manager) Flush(b *buffer.Buffer) {
	m.mu.Lock()
	if m.inflight[b.ID()] {
		m.mu.Unlock()
		return
	}
	m.inflight[b.ID()] = true
	m.mu.Unlock()

	_, err := m.sched.Submit("flush", func(ctx context.Context) error {
		err := m.flushOnce(b)

		m.mu.Lock()
		delete(m.inflight, b.ID())
		stillDirty := err == nil && b.Dirty()
		if !stillDirty && err == nil {
			delete(m.dirty, b.ID())
		}
		m.mu.Unlock()

		if stillDirty {
			m.Flush(b)
		}
		return err
	})
	if err != nil {
		m.mu.Lock()
		delete(m.inflight, b.ID())
		m.mu.Unlock()
	}
}

// FlushSync flushes one buffer and waits for the write to land.
func (m *Manager) FlushSync(b *buffer.Buffer) error {
	for {
		err := m.flushOnce(b)
		if err != nil {
			return err
		}
		if !b.Dirty() {
			m.mu.Lock()
			delete(m.dirty, b.ID())
			m.mu.Unlock()
			return nil
		}
	}
}

func (m *Manager) writeLock(id buffer.ID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	mu, ok := m.writeMu[id]
	if !ok {
		mu = &sync.Mutex{}
		m.writeMu[id] = mu
	}
	return mu
}

// flushOnce captures a plan and performs its write. The per-buffer
// write lock serializes async flushes with FlushSync callers; plan
// capture inside the lock keeps records in FIFO order on disk.
func (m *Manager) flushOnce(b *buffer.Buffer) error {
	mu := m.writeLock(b.ID())
	mu.Lock()
	defer mu.Unlock()

	if m.cfg.CompressLogs && b.Dirty() {
		b.RequireRewrite()
	}

	plan := b.FlushPlan()
	if plan == nil {
		return nil
	}

	var err error
	if plan.Rewrite {
		err = WriteRewrite(plan, m.codec, m.cfg.CompressLogs)
	} else {
		if err = WriteAppend(plan); err != nil {
			// A failed append may leave a partial record at the tail;
			// the retry must replace the file, not append after it.
			b.RequireRewrite()
		}
	}
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"buffer": b.ID(),
			"path":   plan.Path,
		}).WithError(err).Warn("flush failed")
		return err
	}

	b.MarkFlushed(plan)
	if m.onFlush != nil {
		m.onFlush(b, plan.TargetVersion)
	}
	m.log.WithFields(logrus.Fields{
		"buffer":  b.ID(),
		"path":    plan.Path,
		"version": plan.TargetVersion,
		"rewrite": plan.Rewrite,
		"records": len(plan.Records),
	}).Debug("buffer flushed")
	return nil
}

// Forget releases tracking state for a closed buffer. Any in-flight
// flush cleans up after itself.
func (m *Manager) Forget(b *buffer.Buffer) {
	m.mu.Lock()
	delete(m.dirty, b.ID())
	delete(m.writeMu, b.ID())
	m.mu.Unlock()
}

// Shutdown stops the periodic loop and flushes every dirty buffer,
// bounded by timeout. Buffers still dirty afterward are reported.
func (m *Manager) Shutdown(timeout time.Duration) error {
	m.Stop()

	m.mu.Lock()
	bufs := make([]*buffer.Buffer, 0, len(m.dirty))
	for _, b := range m.dirty {
		bufs = append(bufs, b)
	}
	m.mu.Unlock()

	deadline := time.Now().Add(timeout)
	var firstErr error
	for _, b := range bufs {
		if time.Now().After(deadline) {
			firstErr = errors.Join(firstErr, fmt.Errorf("shutdown timeout with %s still dirty", b.Path()))
			continue
		}
		if err := m.FlushSync(b); err != nil {
			firstErr = errors.Join(firstErr, err)
		}
	}
	return firstErr
}

// OpenResult is the outcome of opening a document.
type OpenResult struct {
	Buffer *buffer.Buffer

	// Corruption is non-nil when the on-disk log had an invalid tail.
	// The buffer holds the valid prefix and will rewrite the log on
	// its next flush.
	Corruption *CorruptionError
}

// Open loads a document into a buffer. An existing delta log is
// replayed; otherwise the plain file becomes the initial insert
// record; otherwise the buffer starts empty and bound to the path.
func (m *Manager) Open(path string, encoding string, opts ...buffer.Option) (*OpenResult, error) {
	opts = append([]buffer.Option{buffer.WithPath(path), buffer.WithEncoding(encoding)}, opts...)

	result, err := LoadLog(path, m.codec)
	switch {
	case err == nil:
		if result.Header.Encoding != "" {
			opts = append(opts, buffer.WithEncoding(result.Header.Encoding))
		}
		b, berr := buffer.NewFromLog(result.Log, opts...)
		if berr != nil {
			return nil, fmt.Errorf("replaying log for %s: %w", path, berr)
		}
		if result.Corruption != nil {
			m.log.WithField("path", path).WithError(result.Corruption).Warn("delta log truncated at corrupt record")
			b.RequireRewrite()
			m.MarkDirty(b)
		}
		return &OpenResult{Buffer: b, Corruption: result.Corruption}, nil

	case os.IsNotExist(err):
		// No log; fall through to the plain file.
	default:
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &OpenResult{Buffer: buffer.New(opts...)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	text, err := DecodeToUTF8(data, encoding)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	opts = append(opts, buffer.WithLineEnding(buffer.DetectLineEnding(text)))
	return &OpenResult{Buffer: buffer.NewFromString(text, opts...)}, nil
}

// Save writes the buffer's materialized content to its document file
// in the buffer's encoding and line endings, then flushes the delta
// log synchronously. Saving seals the current undo group.
func (m *Manager) Save(b *buffer.Buffer) error {
	path := b.Path()
	if path == "" {
		return errors.New("cannot save a scratch buffer")
	}

	view, err := b.Materialize()
	if err != nil {
		return err
	}
	b.BreakCoalescing()

	// Content already carries the buffer's line ending style; only the
	// character encoding may differ from the in-memory UTF-8.
	data, err := EncodeFromUTF8(view.Text(), b.Encoding())
	if err != nil {
		return err
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("replacing %s: %w", path, err)
	}

	if err := m.FlushSync(b); err != nil {
		return err
	}

	m.log.WithFields(logrus.Fields{
		"buffer":  b.ID(),
		"path":    path,
		"version": b.Version(),
	}).Info("buffer saved")
	return nil
}
