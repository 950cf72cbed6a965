// Package scheduler runs recurring callbacks on self-rearming one-shot timers.
//
// A Task arms a single countdown. When it elapses the task re-arms the next
// countdown and then runs the callback on the timer's goroutine, so a slow
// callback delays nothing but itself and interval drift does not accumulate
// against a fixed-rate clock.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Task is a recurring callback.
//
// Stop guarantees that no firing starts after it returns. A callback that is
// already running is not interrupted; StopWait additionally waits for it.
type Task struct {
	name     string
	interval time.Duration
	fn       func()
	clock    clockwork.Clock

	mu      sync.Mutex
	running bool
	timer   clockwork.Timer
	gen     uint64 // identifies the currently armed countdown

	inflight sync.WaitGroup
}

// Option configures a Task.
type Option func(*taskOptions)

type taskOptions struct {
	clock     clockwork.Clock
	autostart bool
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(o *taskOptions) { o.clock = c }
}

// Stopped creates the task without arming it.
func Stopped() Option {
	return func(o *taskOptions) { o.autostart = false }
}

// New creates a task firing fn every interval. Tasks start immediately unless
// Stopped is given.
func New(name string, interval time.Duration, fn func(), opts ...Option) *Task {
	o := taskOptions{clock: clockwork.NewRealClock(), autostart: true}
	for _, opt := range opts {
		opt(&o)
	}
	t := &Task{name: name, interval: interval, fn: fn, clock: o.clock}
	if o.autostart {
		t.Start()
	}
	return t
}

// Name returns the task's name.
func (t *Task) Name() string { return t.name }

// Interval returns the countdown length.
func (t *Task) Interval() time.Duration { return t.interval }

// Running reports whether a countdown is armed.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Start arms the countdown. No-op while running.
func (t *Task) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.armLocked()
}

// Stop cancels the pending countdown. A firing whose timer already elapsed
// sees the stopped flag or a stale generation and neither re-arms nor calls fn.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// StopWait stops the task and waits for an in-flight callback to return or
// ctx to end. Must not be called from the task's own callback.
func (t *Task) StopWait(ctx context.Context) error {
	t.Stop()
	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// armLocked schedules the next countdown. Caller holds mu.
func (t *Task) armLocked() {
	t.gen++
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.interval, func() { t.fire(gen) })
}

func (t *Task) fire(gen uint64) {
	t.mu.Lock()
	if !t.running || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.armLocked()
	t.inflight.Add(1)
	t.mu.Unlock()

	defer t.inflight.Done()
	t.fn()
}
