// Package coordinator runs CPU-bound vault work (carrier generation, sealing,
// embedding) on a bounded set of workers and tracks what is in flight.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector/docvault/clock"
)

// ErrShuttingDown is returned by Run once Shutdown has been called
var ErrShuttingDown = errors.New("coordinator is shutting down")

// ProcessStatus is the lifecycle state of a tracked process
type ProcessStatus string

const (
	StatusQueued    ProcessStatus = "queued"
	StatusRunning   ProcessStatus = "running"
	StatusCompleted ProcessStatus = "completed"
	StatusFailed    ProcessStatus = "failed"
)

// Process describes one unit of work. Copies returned by the coordinator carry
// no Cancel func.
type Process struct {
	ID        string
	Status    ProcessStatus
	StartTime time.Time
	Progress  float64
	Error     error
	Cancel    context.CancelFunc
	ctx       context.Context
}

// Coordinator bounds and tracks in-flight work
type Coordinator struct {
	mu              sync.RWMutex
	activeProcesses map[string]*Process
	shutdownCh      chan struct{}
	shutdownOnce    sync.Once
	wg              sync.WaitGroup
	slots           chan struct{}
	clock           clock.Clock
	logger          zerolog.Logger
}

// NewCoordinator creates a coordinator running at most workers tasks at once.
// workers <= 0 uses GOMAXPROCS.
func NewCoordinator(workers int, clk clock.Clock) *Coordinator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Coordinator{
		activeProcesses: make(map[string]*Process),
		shutdownCh:      make(chan struct{}),
		slots:           make(chan struct{}, workers),
		clock:           clk,
		logger:          log.With().Str("component", "coordinator").Logger(),
	}
}

// Workers returns the concurrency bound
func (c *Coordinator) Workers() int {
	return cap(c.slots)
}

// Run executes fn on a worker goroutine once a slot is free and waits for it.
// If ctx ends first, fn's context is cancelled and Run still waits for fn to
// return before reporting ctx.Err(), so callers may release anything fn reads.
func (c *Coordinator) Run(ctx context.Context, processID string, fn func(ctx context.Context) error) error {
	if c.IsShuttingDown() {
		return ErrShuttingDown
	}

	process, err := c.StartProcess(ctx, processID)
	if err != nil {
		return err
	}

	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		c.StopProcess(processID)
		return ctx.Err()
	case <-c.shutdownCh:
		c.StopProcess(processID)
		return ErrShuttingDown
	}

	c.UpdateProcessStatus(processID, StatusRunning, 0, nil)
	done := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("process %s panicked: %v", processID, r)
				c.logger.Error().Str("processId", processID).Interface("panic", r).Msg("Process panicked")
			}
			c.StopProcess(processID)
			<-c.slots
			done <- err
		}()
		err = fn(process.ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.logger.Debug().Str("processId", processID).Msg("Caller cancelled, waiting for process to stop")
		process.Cancel()
		<-done
		return ctx.Err()
	}
}

// StartProcess registers a process. Process IDs must be unique while active.
func (c *Coordinator) StartProcess(ctx context.Context, processID string) (*Process, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.activeProcesses[processID]; exists {
		return nil, fmt.Errorf("process %s already exists", processID)
	}

	processCtx, cancel := context.WithCancel(ctx)

	process := &Process{
		ID:        processID,
		Status:    StatusQueued,
		StartTime: c.clock.Now(),
		Cancel:    cancel,
		ctx:       processCtx,
	}

	c.activeProcesses[processID] = process
	c.wg.Add(1)

	return process, nil
}

// StopProcess cancels and forgets a process
func (c *Coordinator) StopProcess(processID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if process, exists := c.activeProcesses[processID]; exists {
		process.Cancel()
		delete(c.activeProcesses, processID)
		c.wg.Done()
	}
}

// UpdateProcessStatus records progress for an active process
func (c *Coordinator) UpdateProcessStatus(processID string, status ProcessStatus, progress float64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if process, exists := c.activeProcesses[processID]; exists {
		process.Status = status
		process.Progress = progress
		process.Error = err
	}
}

// GetProcessStatus returns a snapshot of an active process, or nil
func (c *Coordinator) GetProcessStatus(processID string) *Process {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if process, exists := c.activeProcesses[processID]; exists {
		return process.snapshot()
	}
	return nil
}

// ListProcesses returns snapshots of every active process, oldest first
func (c *Coordinator) ListProcesses() []*Process {
	c.mu.RLock()
	processes := make([]*Process, 0, len(c.activeProcesses))
	for _, process := range c.activeProcesses {
		processes = append(processes, process.snapshot())
	}
	c.mu.RUnlock()

	sort.Slice(processes, func(i, j int) bool {
		if processes[i].StartTime.Equal(processes[j].StartTime) {
			return processes[i].ID < processes[j].ID
		}
		return processes[i].StartTime.Before(processes[j].StartTime)
	})
	return processes
}

func (p *Process) snapshot() *Process {
	return &Process{
		ID:        p.ID,
		Status:    p.Status,
		StartTime: p.StartTime,
		Progress:  p.Progress,
		Error:     p.Error,
	}
}

// Shutdown stops accepting work, cancels active processes and waits for them
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() { close(c.shutdownCh) })

	c.mu.Lock()
	for _, process := range c.activeProcesses {
		process.Cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShuttingDown reports whether Shutdown has been called
func (c *Coordinator) IsShuttingDown() bool {
	select {
	case <-c.shutdownCh:
		return true
	default:
		return false
	}
}
