// Package scheduler fires one-shot tasks at their run-at instant. Recurrence
// is expressed upstream by creating one task per future occurrence.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is a single scheduled firing. Immutable once created; consumed exactly
// once.
type Task struct {
	Name   string
	RunAt  time.Time
	Action func(ctx context.Context)
}

// Scheduler holds pending tasks keyed by name and fires each at its instant.
// Firing is fire-and-forget: tasks run in their own goroutine and one task's
// panic or slowness never affects the others.
type Scheduler struct {
	log zerolog.Logger

	mu     sync.Mutex
	timers map[string]*entry
	closed bool
	wg     sync.WaitGroup
}

// entry is one scheduled firing. The pointer doubles as the firing's identity:
// fire deregisters the map slot only while it still holds its own entry, so a
// replacement under the same name is never evicted. The entry exists before
// its timer is armed; the callback closes over the entry, not the timer, so an
// immediate firing never races the timer assignment.
type entry struct {
	timer *time.Timer
}

func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		log:    log.With().Str("component", "scheduler").Logger(),
		timers: make(map[string]*entry),
	}
}

// Schedule registers the task. Scheduling under an existing name replaces the
// prior entry. Tasks whose run-at is already past are fired immediately rather
// than dropped: a restart inside a booking window should still attempt the
// booking, and the log line makes the immediate firing visible.
func (s *Scheduler) Schedule(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if prior, ok := s.timers[task.Name]; ok {
		if prior.timer.Stop() {
			s.wg.Done()
		}
		s.log.Info().Str("task", task.Name).Msg("replacing scheduled task")
	}

	delay := time.Until(task.RunAt)
	if delay < 0 {
		s.log.Warn().Str("task", task.Name).Time("run_at", task.RunAt).Msg("task is past due, firing immediately")
		delay = 0
	}

	s.wg.Add(1)
	e := &entry{}
	e.timer = time.AfterFunc(delay, func() { s.fire(task, e) })
	s.timers[task.Name] = e
}

// Pending reports the number of tasks waiting to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Shutdown stops all pending timers and waits for in-flight actions.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	for name, e := range s.timers {
		if e.timer.Stop() {
			s.wg.Done()
		}
		delete(s.timers, name)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) fire(task Task, self *entry) {
	defer s.wg.Done()

	s.mu.Lock()
	// Only deregister our own entry; a replacement scheduled under the same
	// name owns the slot now.
	if s.timers[task.Name] == self {
		delete(s.timers, task.Name)
	}
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("task", task.Name).Interface("panic", r).Msg("task panicked")
		}
	}()

	s.log.Info().Str("task", task.Name).Msg("firing task")
	task.Action(context.Background())
	s.log.Info().Str("task", task.Name).Msg("task finished")
}
