package compress

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/textengine/internal/engine/buffer"
	"github.com/dshills/textengine/internal/task"
)

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec(2)
	if err != nil {
		t.Fatal(err)
	}
	defer codec.Close()

	data := bytes.Repeat([]byte("the quick brown fox\n"), 200)
	blob := codec.Compress(data)

	if len(blob) >= len(data) {
		t.Errorf("repetitive input should shrink: %d -> %d", len(data), len(blob))
	}

	out, err := codec.Decompress(blob)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Error("decompress is not the inverse of compress")
	}
}

func TestCodecEmpty(t *testing.T) {
	codec, err := NewCodec(1)
	if err != nil {
		t.Fatal(err)
	}
	defer codec.Close()

	out, err := codec.Decompress(codec.Compress(nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty output, got %d bytes", len(out))
	}
}

func TestCodecCorruptBlob(t *testing.T) {
	codec, err := NewCodec(1)
	if err != nil {
		t.Fatal(err)
	}
	defer codec.Close()

	if _, err := codec.Decompress([]byte("not a zstd frame")); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestCodecLevelsClamp(t *testing.T) {
	for _, level := range []int{-3, 0, 1, 4, 99} {
		codec, err := NewCodec(level)
		if err != nil {
			t.Errorf("level %d: %v", level, err)
			continue
		}
		codec.Close()
	}
}

// jsonPayloadCodec stands in for the persistence layer's record codec.
type jsonPayloadCodec struct{}

func (jsonPayloadCodec) EncodePayload(p *buffer.HibernatePayload) ([]byte, error) {
	return json.Marshal(p)
}

func (jsonPayloadCodec) DecodePayload(data []byte) (*buffer.HibernatePayload, error) {
	var p buffer.HibernatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestManager(t *testing.T, bufs ...*buffer.Buffer) *Manager {
	t.Helper()

	codec, err := NewCodec(1)
	if err != nil {
		t.Fatal(err)
	}
	sched := task.NewScheduler(2)
	m := NewManager(ManagerConfig{
		IdleThreshold: time.Hour,
		SweepInterval: time.Hour,
	}, codec, jsonPayloadCodec{}, func() []*buffer.Buffer { return bufs }, sched, quietLogger())
	t.Cleanup(func() {
		sched.Shutdown(time.Second)
		m.Close()
		codec.Close()
	})
	return m
}

func waitForState(t *testing.T, b *buffer.Buffer, want buffer.CompressionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("buffer never reached %v, stuck at %v", want, b.State())
}

func TestSweepHibernatesIdleBuffer(t *testing.T) {
	b := buffer.NewFromString("content to park")
	m := newTestManager(t, b)

	// Nothing happens while the buffer is recently active.
	m.Sweep()
	if b.State() == buffer.StateCompressed {
		t.Fatal("active buffer must not hibernate")
	}

	b.MarkIdleIfInactive(0)
	m.Sweep()
	waitForState(t, b, buffer.StateCompressed)
}

func TestEnsureActiveRestoresContent(t *testing.T) {
	b := buffer.NewFromString("park and restore")
	b.Apply(buffer.Insert(16, " me"))
	want := b.Text()

	m := newTestManager(t, b)
	b.MarkIdleIfInactive(0)
	m.Sweep()
	waitForState(t, b, buffer.StateCompressed)

	if err := m.EnsureActive(b); err != nil {
		t.Fatal(err)
	}
	if b.State() != buffer.StateActive {
		t.Fatalf("state = %v", b.State())
	}
	if b.Text() != want {
		t.Errorf("content %q, want %q", b.Text(), want)
	}
}

func TestEnsureActiveOnActiveBuffer(t *testing.T) {
	b := buffer.NewFromString("never parked")
	m := newTestManager(t, b)

	if err := m.EnsureActive(b); err != nil {
		t.Errorf("active buffer should pass through: %v", err)
	}
}

func TestUndoAfterWake(t *testing.T) {
	b := buffer.NewFromString("base", buffer.WithCoalescing(time.Nanosecond, 1))
	b.Apply(buffer.Insert(4, "!"))

	m := newTestManager(t, b)
	b.MarkIdleIfInactive(0)
	m.Sweep()
	waitForState(t, b, buffer.StateCompressed)

	if err := m.EnsureActive(b); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Undo(); err != nil {
		t.Fatalf("undo after wake: %v", err)
	}
	if b.Text() != "base" {
		t.Errorf("content %q after undo", b.Text())
	}
}
