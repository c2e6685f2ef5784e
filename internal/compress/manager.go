package compress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/textengine/internal/engine/buffer"
	"github.com/dshills/textengine/internal/task"
)

// PayloadCodec serializes hibernation payloads to bytes and back. The
// persistence layer provides the implementation so hibernated state
// and on-disk logs share one record format.
type PayloadCodec interface {
	EncodePayload(p *buffer.HibernatePayload) ([]byte, error)
	DecodePayload(data []byte) (*buffer.HibernatePayload, error)
}

// Source yields the buffers a sweep should consider.
type Source func() []*buffer.Buffer

// ManagerConfig configures the compression manager.
type ManagerConfig struct {
	// IdleThreshold is how long a buffer must go untouched before it
	// is eligible for hibernation.
	IdleThreshold time.Duration

	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration
}

// Manager hibernates idle buffers and wakes them on demand.
type Manager struct {
	codec   *Codec
	records PayloadCodec
	source  Source
	sched   *task.Scheduler
	log     logrus.FieldLogger

	idleThreshold time.Duration
	sweepInterval time.Duration

	mu       sync.Mutex
	inflight map[buffer.ID]bool

	started  bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewManager creates a compression manager. The source supplies the
// buffers to sweep; sched runs hibernation work off the edit path.
// The codec is shared with the persistence layer and stays owned by
// the caller.
func NewManager(cfg ManagerConfig, codec *Codec, records PayloadCodec, source Source, sched *task.Scheduler, log logrus.FieldLogger) *Manager {
	return &Manager{
		codec:         codec,
		records:       records,
		source:        source,
		sched:         sched,
		log:           log,
		idleThreshold: cfg.IdleThreshold,
		sweepInterval: cfg.SweepInterval,
		inflight:      make(map[buffer.ID]bool),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the background sweep loop.
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

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stop:
			return
		}
	}
}

// Stop halts the sweep loop. In-flight hibernations finish or abort
// through the scheduler.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.done
	}
}

// Sweep scans all buffers once and schedules hibernation for those
// idle past the threshold.
func (m *Manager) Sweep() {
	for _, b := range m.source() {
		if b.State() == buffer.StateCompressed {
			continue
		}
		// Unflushed records live in the log hibernation releases; let
		// the persistence manager drain the buffer first.
		if b.Dirty() {
			continue
		}
		if b.State() != buffer.StateIdle && !b.MarkIdleIfInactive(m.idleThreshold) {
			continue
		}
		m.schedule(b)
	}
}

func (m *Manager) schedule(b *buffer.Buffer) {
	m.mu.Lock()
	if m.inflight[b.ID()] {
		m.mu.Unlock()
		return
	}
	m.inflight[b.ID()] = true
	m.mu.Unlock()

	_, err := m.sched.Submit("hibernate", func(ctx context.Context) error {
		defer func() {
			m.mu.Lock()
			delete(m.inflight, b.ID())
			m.mu.Unlock()
		}()
		return m.hibernate(b)
	})
	if err != nil {
		m.mu.Lock()
		delete(m.inflight, b.ID())
		m.mu.Unlock()
	}
}

// hibernate serializes and compresses one idle buffer. A buffer
// touched between capture and completion stays active and the blob is
// discarded.
func (m *Manager) hibernate(b *buffer.Buffer) error {
	payload, err := b.BeginHibernate()
	if err != nil {
		// Touched since the sweep marked it idle. Not a failure.
		return nil
	}

	raw, err := m.records.EncodePayload(payload)
	if err != nil {
		return fmt.Errorf("encoding buffer %d for hibernation: %w", b.ID(), err)
	}
	blob := m.codec.Compress(raw)

	if !b.CompleteHibernate(blob, payload.Version) {
		m.log.WithField("buffer", b.ID()).Debug("hibernation aborted, buffer touched")
		return nil
	}

	m.log.WithFields(logrus.Fields{
		"buffer":     b.ID(),
		"version":    payload.Version,
		"raw":        len(raw),
		"compressed": len(blob),
	}).Debug("buffer hibernated")
	return nil
}

// EnsureActive wakes a hibernated buffer so the caller can read or
// edit it. Active and idle buffers pass through untouched.
func (m *Manager) EnsureActive(b *buffer.Buffer) error {
	blob, ok := b.CompressedBlob()
	if !ok {
		return nil
	}

	raw, err := m.codec.Decompress(blob)
	if err != nil {
		return fmt.Errorf("waking buffer %d: %w", b.ID(), err)
	}
	payload, err := m.records.DecodePayload(raw)
	if err != nil {
		return fmt.Errorf("waking buffer %d: %w", b.ID(), err)
	}

	if err := b.Wake(payload); err != nil {
		return fmt.Errorf("waking buffer %d: %w", b.ID(), err)
	}

	m.log.WithField("buffer", b.ID()).Debug("buffer woken")
	return nil
}

// Close stops the sweep. The shared codec stays open; its owner
// closes it.
func (m *Manager) Close() {
	m.Stop()
}
