// Package scheduler runs named background tasks and tears them down together.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of background work. It must return once ctx is done.
type Task func(ctx context.Context)

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns named tasks. Registering a name that is already running
// cancels and waits for the previous task first, so each name has at most
// one live task at any time.
type Scheduler struct {
	logger *zap.Logger

	mu    sync.Mutex
	tasks map[string]*handle
}

// New constructs an empty Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		logger: logger,
		tasks:  make(map[string]*handle),
	}
}

// Go runs fn once in the background under name.
func (s *Scheduler) Go(ctx context.Context, name string, fn Task) {
	s.start(ctx, name, fn)
}

// Every runs fn every interval until the task is canceled. Ticks never overlap:
// a slow tick delays the next one instead of running concurrently with it.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, fn Task) {
	s.start(ctx, name, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	})
}

// After runs fn once after delay unless the task is canceled first.
func (s *Scheduler) After(ctx context.Context, name string, delay time.Duration, fn Task) {
	s.start(ctx, name, func(ctx context.Context) {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
		case <-timer.C:
			fn(ctx)
		}
	})
}

// Cancel stops the named task and waits for it to return.
// It must not be called from inside the task it cancels.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	h, ok := s.tasks[name]
	if ok {
		delete(s.tasks, name)
	}
	s.mu.Unlock()

	if ok {
		h.cancel()
		<-h.done
		s.logger.Debug("task canceled", zap.String("task", name))
	}
}

// Stop cancels every task and waits for all of them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[string]*handle)
	s.mu.Unlock()

	for _, h := range tasks {
		h.cancel()
	}
	for name, h := range tasks {
		<-h.done
		s.logger.Debug("task stopped", zap.String("task", name))
	}
}

// Running reports whether a task with the given name is live.
func (s *Scheduler) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

// Len returns the number of live tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) start(ctx context.Context, name string, fn Task) {
	ctx, cancel := context.WithCancel(ctx)
	h := &handle{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.tasks[name]
	s.tasks[name] = h
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
		s.logger.Debug("task replaced", zap.String("task", name))
	}

	go func() {
		defer close(h.done)
		defer s.release(name, h)
		fn(ctx)
	}()
	s.logger.Debug("task started", zap.String("task", name))
}

func (s *Scheduler) release(name string, h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.tasks[name]; ok && current == h {
		delete(s.tasks, name)
	}
	h.cancel()
}
