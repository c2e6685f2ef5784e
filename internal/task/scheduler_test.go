package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRuns(t *testing.T) {
	s := NewScheduler(2)

	var ran atomic.Bool
	exec, err := s.Submit("work", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := exec.Wait(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !ran.Load() {
		t.Error("work did not run")
	}
	if exec.State() != ExecutionStateSucceeded {
		t.Errorf("state = %v", exec.State())
	}
}

func TestSubmitError(t *testing.T) {
	s := NewScheduler(1)

	wantErr := errors.New("boom")
	exec, err := s.Submit("failing", func(ctx context.Context) error {
		return wantErr
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := exec.Wait(); !errors.Is(err, wantErr) {
		t.Errorf("expected boom, got %v", err)
	}
	if exec.State() != ExecutionStateFailed {
		t.Errorf("state = %v", exec.State())
	}
}

func TestConcurrencyBound(t *testing.T) {
	s := NewScheduler(2)

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		_, err := s.Submit("bounded", func(ctx context.Context) error {
			defer wg.Done()
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()

	if p := peak.Load(); p > 2 {
		t.Errorf("observed %d concurrent executions, limit 2", p)
	}
}

func TestCancelPending(t *testing.T) {
	s := NewScheduler(1)

	release := make(chan struct{})
	blocker, err := s.Submit("blocker", func(ctx context.Context) error {
		<-release
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	pending, err := s.Submit("pending", func(ctx context.Context) error {
		t.Error("canceled pending work must not run")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	pending.Cancel()
	<-pending.Done()
	if pending.State() != ExecutionStateCanceled {
		t.Errorf("state = %v", pending.State())
	}

	close(release)
	blocker.Wait()
}

func TestCancelRunning(t *testing.T) {
	s := NewScheduler(1)

	started := make(chan struct{})
	exec, err := s.Submit("running", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatal(err)
	}

	<-started
	exec.Cancel()
	<-exec.Done()
	if exec.State() != ExecutionStateCanceled {
		t.Errorf("state = %v", exec.State())
	}
}

func TestOnComplete(t *testing.T) {
	s := NewScheduler(1)

	done := make(chan *Execution, 1)
	s.OnComplete(func(e *Execution) { done <- e })

	exec, err := s.Submit("notified", func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-done:
		if got.ID != exec.ID {
			t.Errorf("callback saw %s, want %s", got.ID, exec.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("completion callback never fired")
	}
}

func TestShutdownRejectsNewWork(t *testing.T) {
	s := NewScheduler(1)

	if err := s.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Submit("late", func(ctx context.Context) error { return nil }); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
}

func TestShutdownWaitsForInflight(t *testing.T) {
	s := NewScheduler(1)

	var finished atomic.Bool
	_, err := s.Submit("slow", func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}
	if !finished.Load() {
		t.Error("shutdown returned before in-flight work finished")
	}
}

func TestShutdownTimeoutCancels(t *testing.T) {
	s := NewScheduler(1)

	_, err := s.Submit("stuck", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Shutdown(10 * time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
