package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunReturnsResult(t *testing.T) {
	c := NewCoordinator(2, nil)

	if err := c.Run(context.Background(), "ok", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := errors.New("boom")
	if err := c.Run(context.Background(), "fail", func(ctx context.Context) error { return want }); !errors.Is(err, want) {
		t.Errorf("Run() error = %v, want %v", err, want)
	}

	err := c.Run(context.Background(), "panic", func(ctx context.Context) error { panic("bad") })
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Errorf("Run() error = %v, want panic error", err)
	}

	if n := len(c.ListProcesses()); n != 0 {
		t.Errorf("%d processes left after completion", n)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	const workers = 3
	c := NewCoordinator(workers, nil)

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "task-" + string(rune('a'+i))
			err := c.Run(context.Background(), id, func(ctx context.Context) error {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
			if err != nil {
				t.Errorf("Run(%s) error = %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	if peak > workers {
		t.Errorf("peak concurrency = %d, want <= %d", peak, workers)
	}
}

func TestRunDuplicateID(t *testing.T) {
	c := NewCoordinator(2, nil)
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = c.Run(context.Background(), "dup", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if p := c.GetProcessStatus("dup"); p == nil || p.Status != StatusRunning {
		t.Errorf("GetProcessStatus() = %+v, want running", p)
	}
	if err := c.Run(context.Background(), "dup", func(ctx context.Context) error { return nil }); err == nil {
		t.Error("duplicate process id should fail")
	}
	close(release)
}

func TestRunCallerCancelled(t *testing.T) {
	c := NewCoordinator(1, nil)
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = c.Run(context.Background(), "holder", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Run(ctx, "waiter", func(ctx context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want DeadlineExceeded", err)
	}
	if c.GetProcessStatus("waiter") != nil {
		t.Error("queued process not removed after cancellation")
	}
	close(release)
}

func TestRunWaitsForCancelledWorker(t *testing.T) {
	c := NewCoordinator(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var finished atomic.Bool
	err := c.Run(ctx, "slow", func(workerCtx context.Context) error {
		cancel()
		<-workerCtx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want Canceled", err)
	}
	if !finished.Load() {
		t.Error("Run returned before the worker finished")
	}
	if n := len(c.ListProcesses()); n != 0 {
		t.Errorf("%d processes left after cancellation", n)
	}
}

func TestListProcessesOldestFirst(t *testing.T) {
	c := NewCoordinator(2, nil)
	release := make(chan struct{})
	var started sync.WaitGroup

	for _, id := range []string{"b", "a"} {
		started.Add(1)
		go func(id string) {
			_ = c.Run(context.Background(), id, func(ctx context.Context) error {
				started.Done()
				<-release
				return nil
			})
		}(id)
		started.Wait()
		time.Sleep(2 * time.Millisecond)
	}

	list := c.ListProcesses()
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "a" {
		t.Errorf("ListProcesses() = %+v, want b then a", list)
	}
	for _, p := range list {
		if p.Cancel != nil || p.Status != StatusRunning {
			t.Errorf("snapshot = %+v", p)
		}
	}
	close(release)
}

func TestShutdown(t *testing.T) {
	c := NewCoordinator(1, nil)
	started := make(chan struct{})
	result := make(chan error, 1)

	go func() {
		result <- c.Run(context.Background(), "long", func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-result; !errors.Is(err, context.Canceled) {
		t.Errorf("running process error = %v, want Canceled", err)
	}
	if !c.IsShuttingDown() {
		t.Error("IsShuttingDown() = false after Shutdown")
	}
	if err := c.Run(context.Background(), "late", func(ctx context.Context) error { return nil }); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Run() after shutdown error = %v, want ErrShuttingDown", err)
	}
	if err := c.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}
