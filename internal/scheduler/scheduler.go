// Package scheduler provides scheduling logic for GeoShift.
//
// It offers two mechanisms: cron-based maintenance jobs (skip-list rollover,
// sample retention) and a registry of named fixed-interval background tasks
// used for the adaptive heartbeat poll.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// runningTask is one live interval-driven task.
type runningTask struct {
	ticker *time.Ticker
	done   chan struct{}
}

// TaskRegistry runs named fixed-interval background tasks. Register and
// Unregister are idempotent: registering a name replaces any prior
// registration, and unregistering an unknown name is success. The platform
// scheduler may tear registrations down on its own, so callers never treat
// either operation as stateful.
type TaskRegistry struct {
	mu       sync.Mutex
	handlers map[string]func()
	running  map[string]*runningTask
}

// NewTaskRegistry creates an empty task registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		handlers: make(map[string]func()),
		running:  make(map[string]*runningTask),
	}
}

// Bind associates a handler with a task name. Must be called before the
// first Register of that name.
func (r *TaskRegistry) Bind(name string, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// Register starts (or restarts) the named task at the given interval.
func (r *TaskRegistry) Register(name string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("task %q: interval must be positive, got %v", name, interval)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	fn, ok := r.handlers[name]
	if !ok {
		return fmt.Errorf("task %q: no handler bound", name)
	}
	r.stopLocked(name)

	task := &runningTask{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	r.running[name] = task
	go func() {
		for {
			select {
			case <-task.ticker.C:
				fn()
			case <-task.done:
				return
			}
		}
	}()
	slog.Debug("TaskRegistry registered task", "name", name, "interval", interval)
	return nil
}

// Unregister stops the named task. Unknown names are success.
func (r *TaskRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked(name)
	return nil
}

// Registered reports whether the named task is currently running.
func (r *TaskRegistry) Registered(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[name]
	return ok
}

// Stop stops every running task.
func (r *TaskRegistry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.running {
		r.stopLocked(name)
	}
}

func (r *TaskRegistry) stopLocked(name string) {
	task, ok := r.running[name]
	if !ok {
		return
	}
	task.ticker.Stop()
	close(task.done)
	delete(r.running, name)
	slog.Debug("TaskRegistry unregistered task", "name", name)
}
