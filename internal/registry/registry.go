package registry

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dshills/textengine/internal/engine/buffer"
	"github.com/dshills/textengine/internal/persist"
)

// ErrNotOpen reports an operation on a buffer the registry does not
// track.
var ErrNotOpen = errors.New("buffer not open")

// ScratchText seeds buffers that are not connected to a file.
const ScratchText = "This is the scratch buffer\n" +
	"This buffer isn't connected to a file, so nothing in here is saved.\n" +
	" \n"

// Handler receives registry lifecycle notifications. Callbacks run on
// the goroutine performing the operation; handlers must not call back
// into the registry.
type Handler interface {
	// BufferOpened fires after a buffer is registered.
	BufferOpened(b *buffer.Buffer)
	// BufferClosed fires after a buffer is removed.
	BufferClosed(b *buffer.Buffer)
	// BufferDirty fires when an edit leaves a buffer with unflushed
	// changes.
	BufferDirty(b *buffer.Buffer)
	// BufferFlushed fires after a flush makes the buffer durable
	// through the given version.
	BufferFlushed(b *buffer.Buffer, version uint64)
	// ExternalChange fires when a bound file changes outside the
	// engine. The buffer's in-memory state is untouched.
	ExternalChange(b *buffer.Buffer)
}

// Summary describes one open buffer without touching its content.
type Summary struct {
	ID      buffer.ID
	Path    string
	Version uint64
	Dirty   bool
	State   buffer.CompressionState
}

// Registry is the set of open buffers.
type Registry struct {
	persist *persist.Manager
	log     logrus.FieldLogger

	mu     sync.RWMutex
	byID   map[buffer.ID]*buffer.Buffer
	byPath map[string]*buffer.Buffer

	handlers   []Handler
	handlersMu sync.RWMutex

	watcher *Watcher
}

// New creates an empty registry. The watcher is optional; without it
// external changes go unnoticed.
func New(pm *persist.Manager, watcher *Watcher, log logrus.FieldLogger) *Registry {
	r := &Registry{
		persist: pm,
		log:     log,
		byID:    make(map[buffer.ID]*buffer.Buffer),
		byPath:  make(map[string]*buffer.Buffer),
		watcher: watcher,
	}
	if watcher != nil {
		watcher.onChange = r.notifyExternalChange
	}
	return r
}

// AddHandler registers a lifecycle handler.
func (r *Registry) AddHandler(h Handler) {
	r.handlersMu.Lock()
	r.handlers = append(r.handlers, h)
	r.handlersMu.Unlock()
}

func (r *Registry) snapshotHandlers() []Handler {
	r.handlersMu.RLock()
	defer r.handlersMu.RUnlock()
	return append([]Handler(nil), r.handlers...)
}

// Open returns the buffer bound to path, loading it on first open.
// Concurrent opens of the same path converge on one buffer.
func (r *Registry) Open(path string, encoding string, opts ...buffer.Option) (*buffer.Buffer, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	r.mu.RLock()
	b, ok := r.byPath[abs]
	r.mu.RUnlock()
	if ok {
		b.Touch()
		return b, nil
	}

	res, err := r.persist.Open(abs, encoding, opts...)
	if err != nil {
		return nil, err
	}

	// A concurrent open may have won; keep the registered buffer and
	// drop ours.
	r.mu.Lock()
	if existing, ok := r.byPath[abs]; ok {
		r.mu.Unlock()
		existing.Touch()
		return existing, nil
	}
	b = res.Buffer
	r.byID[b.ID()] = b
	r.byPath[abs] = b
	r.mu.Unlock()

	if r.watcher != nil {
		if werr := r.watcher.Watch(abs, b); werr != nil {
			r.log.WithField("path", abs).WithError(werr).Debug("watch failed")
		}
	}

	for _, h := range r.snapshotHandlers() {
		h.BufferOpened(b)
	}
	r.log.WithFields(logrus.Fields{"buffer": b.ID(), "path": abs}).Info("buffer opened")
	return b, nil
}

// OpenScratch creates and registers a new scratch buffer seeded with
// the banner text.
func (r *Registry) OpenScratch(opts ...buffer.Option) *buffer.Buffer {
	b := buffer.NewFromString(ScratchText, opts...)

	r.mu.Lock()
	r.byID[b.ID()] = b
	r.mu.Unlock()

	for _, h := range r.snapshotHandlers() {
		h.BufferOpened(b)
	}
	r.log.WithField("buffer", b.ID()).Info("scratch buffer opened")
	return b
}

// Get returns an open buffer by ID.
func (r *Registry) Get(id buffer.ID) (*buffer.Buffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	return b, ok
}

// Lookup returns the buffer bound to a path, if open.
func (r *Registry) Lookup(path string) (*buffer.Buffer, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byPath[abs]
	return b, ok
}

// Close flushes a buffer's outstanding changes and removes it from
// the registry. Scratch buffers are discarded outright.
func (r *Registry) Close(id buffer.ID) error {
	r.mu.Lock()
	b, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotOpen
	}
	delete(r.byID, id)
	if p := b.Path(); p != "" {
		delete(r.byPath, p)
	}
	r.mu.Unlock()

	if r.watcher != nil && b.Path() != "" {
		r.watcher.Unwatch(b.Path())
	}

	var err error
	if b.Dirty() {
		err = r.persist.FlushSync(b)
	}
	r.persist.Forget(b)

	for _, h := range r.snapshotHandlers() {
		h.BufferClosed(b)
	}
	r.log.WithFields(logrus.Fields{"buffer": id, "path": b.Path()}).Info("buffer closed")
	return err
}

// All returns the open buffers in unspecified order.
func (r *Registry) All() []*buffer.Buffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bufs := make([]*buffer.Buffer, 0, len(r.byID))
	for _, b := range r.byID {
		bufs = append(bufs, b)
	}
	return bufs
}

// Len returns the number of open buffers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// List returns an iterator over buffer summaries. The summaries are a
// point-in-time copy; iteration holds no locks.
func (r *Registry) List() *ListIterator {
	bufs := r.All()
	summaries := make([]Summary, len(bufs))
	for i, b := range bufs {
		summaries[i] = Summary{
			ID:      b.ID(),
			Path:    b.Path(),
			Version: b.Version(),
			Dirty:   b.Dirty(),
			State:   b.State(),
		}
	}
	return &ListIterator{summaries: summaries, pos: -1}
}

// CloseAll closes every open buffer, flushing dirty ones. The first
// flush error is returned; closing continues regardless.
func (r *Registry) CloseAll() error {
	var firstErr error
	for _, b := range r.All() {
		if err := r.Close(b.ID()); err != nil && !errors.Is(err, ErrNotOpen) {
			firstErr = errors.Join(firstErr, err)
		}
	}
	return firstErr
}

// NotifyDirty forwards a dirty transition to the handlers.
func (r *Registry) NotifyDirty(b *buffer.Buffer) {
	for _, h := range r.snapshotHandlers() {
		h.BufferDirty(b)
	}
}

// NotifyFlushed forwards a completed flush to the handlers.
func (r *Registry) NotifyFlushed(b *buffer.Buffer, version uint64) {
	for _, h := range r.snapshotHandlers() {
		h.BufferFlushed(b, version)
	}
}

func (r *Registry) notifyExternalChange(b *buffer.Buffer) {
	r.log.WithFields(logrus.Fields{"buffer": b.ID(), "path": b.Path()}).Info("file changed externally")
	for _, h := range r.snapshotHandlers() {
		h.ExternalChange(b)
	}
}

// ListIterator walks buffer summaries.
type ListIterator struct {
	summaries []Summary
	pos       int
}

// Next advances the iterator. It returns false when exhausted.
func (it *ListIterator) Next() bool {
	it.pos++
	return it.pos < len(it.summaries)
}

// Summary returns the current entry. Valid only after a true Next.
func (it *ListIterator) Summary() Summary {
	return it.summaries[it.pos]
}

// Reset rewinds the iterator for reuse.
func (it *ListIterator) Reset() {
	it.pos = -1
}
