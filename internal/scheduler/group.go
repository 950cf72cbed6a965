package scheduler

import (
	"context"
	"errors"
	"sync"
)

// Group starts and stops a fixed set of tasks together.
type Group struct {
	mu    sync.Mutex
	tasks []*Task
}

// Add registers tasks with the group.
func (g *Group) Add(tasks ...*Task) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tasks = append(g.tasks, tasks...)
}

// Tasks returns the registered tasks.
func (g *Group) Tasks() []*Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Task(nil), g.tasks...)
}

// StartAll starts every task.
func (g *Group) StartAll() {
	for _, t := range g.Tasks() {
		t.Start()
	}
}

// StopAll stops every task without waiting. Safe from inside a task callback.
func (g *Group) StopAll() {
	for _, t := range g.Tasks() {
		t.Stop()
	}
}

// StopAllWait stops every task and waits for in-flight callbacks.
func (g *Group) StopAllWait(ctx context.Context) error {
	g.StopAll()
	var errs []error
	for _, t := range g.Tasks() {
		if err := t.StopWait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
