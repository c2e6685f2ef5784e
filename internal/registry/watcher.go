package registry

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/dshills/textengine/internal/engine/buffer"
)

// pollInterval paces the stat fallback for paths fsnotify cannot
// watch (network mounts, exhausted watch descriptors).
const pollInterval = 2 * time.Second

type polledFile struct {
	buf     *buffer.Buffer
	modTime time.Time
	size    int64
}

// Watcher reports external modifications to bound files. Saves made
// through the engine are suppressed for one event so a buffer's own
// write does not come back as an external change.
type Watcher struct {
	fsw *fsnotify.Watcher
	log logrus.FieldLogger

	mu       sync.Mutex
	paths    map[string]*buffer.Buffer
	polled   map[string]*polledFile
	suppress map[string]int

	onChange func(*buffer.Buffer)

	closeOnce sync.Once
	done      chan struct{}
}

// NewWatcher creates and starts a file watcher.
func NewWatcher(log logrus.FieldLogger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		log:      log,
		paths:    make(map[string]*buffer.Buffer),
		polled:   make(map[string]*polledFile),
		suppress: make(map[string]int),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Debug("watch error")
		case <-ticker.C:
			w.pollOnce()
		case <-w.done:
			return
		}
	}
}

// pollOnce stats fallback-watched files and reports mtime or size
// changes.
func (w *Watcher) pollOnce() {
	w.mu.Lock()
	type hit struct {
		path string
		buf  *buffer.Buffer
	}
	var hits []hit
	for path, pf := range w.polled {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Equal(pf.modTime) && info.Size() == pf.size {
			continue
		}
		pf.modTime = info.ModTime()
		pf.size = info.Size()
		if w.suppress[path] > 0 {
			w.suppress[path]--
			continue
		}
		hits = append(hits, hit{path, pf.buf})
	}
	onChange := w.onChange
	w.mu.Unlock()

	if onChange != nil {
		for _, h := range hits {
			onChange(h.buf)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	path := filepath.Clean(ev.Name)

	w.mu.Lock()
	b, ok := w.paths[path]
	if ok && w.suppress[path] > 0 {
		w.suppress[path]--
		ok = false
	}
	onChange := w.onChange
	w.mu.Unlock()

	if ok && onChange != nil {
		onChange(b)
	}
}

// Watch starts watching the file bound to a buffer. When the
// directory cannot be watched, the file degrades to stat polling.
func (w *Watcher) Watch(path string, b *buffer.Buffer) error {
	path = filepath.Clean(path)

	w.mu.Lock()
	w.paths[path] = b
	w.mu.Unlock()

	// Watch the directory: editors and atomic saves replace files by
	// rename, which drops a watch on the file itself.
	if err := w.fsw.Add(filepath.Dir(path)); err != nil {
		pf := &polledFile{buf: b}
		if info, serr := os.Stat(path); serr == nil {
			pf.modTime = info.ModTime()
			pf.size = info.Size()
		}
		w.mu.Lock()
		w.polled[path] = pf
		w.mu.Unlock()
		w.log.WithField("path", path).WithError(err).Debug("fsnotify unavailable, polling")
	}
	return nil
}

// Unwatch stops tracking a path.
func (w *Watcher) Unwatch(path string) {
	path = filepath.Clean(path)
	w.mu.Lock()
	delete(w.paths, path)
	delete(w.polled, path)
	delete(w.suppress, path)
	w.mu.Unlock()
}

// SuppressNext ignores the next change event for a path. Called before
// the engine writes the file itself.
func (w *Watcher) SuppressNext(path string) {
	path = filepath.Clean(path)
	w.mu.Lock()
	w.suppress[path]++
	w.mu.Unlock()
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}
