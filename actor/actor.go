// Package actor provides per-key serialized execution: every unit of work
// addressed to the same key runs one at a time, in arrival order, giving
// natural mutual exclusion without explicit locks around actor state.
package actor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// task is one queued unit of work for a key.
type task struct {
	fn    func(ctx context.Context) error
	ctx   context.Context
	reply chan error // nil for posted (fire-and-forget) tasks
}

// mailbox serializes tasks for one key. The queue is unbounded so a burst
// of posts never blocks the producer.
type mailbox struct {
	mu     sync.Mutex
	tasks  []task
	signal chan struct{} // buffered size 1, coalesces wakeups
	idle   bool
}

func (m *mailbox) enqueue(t task) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idle {
		return false
	}
	m.tasks = append(m.tasks, t)
	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// System dispatches work to per-key mailboxes, spawning one goroutine per
// live key and retiring it after a quiet period.
type System struct {
	mu        sync.Mutex
	mailboxes map[string]*mailbox

	idleAfter time.Duration
	logger    *slog.Logger
}

// NewSystem creates a System. Mailboxes idle out after idleAfter with no
// work; zero means a 5 minute default.
func NewSystem(idleAfter time.Duration, logger *slog.Logger) *System {
	if idleAfter <= 0 {
		idleAfter = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &System{
		mailboxes: make(map[string]*mailbox),
		idleAfter: idleAfter,
		logger:    logger,
	}
}

// Do runs fn on the key's mailbox and waits for its result. fn never runs
// concurrently with other work for the same key.
func (s *System) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	reply := make(chan error, 1)
	s.submitKeyed(key, task{fn: fn, ctx: ctx, reply: reply})

	// The task may still run after ctx expires; its fn receives the same
	// ctx and is expected to bail out on ctx.Err().
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post enqueues fn on the key's mailbox without waiting. Errors are logged
// and discarded.
func (s *System) Post(key string, fn func(ctx context.Context) error) {
	s.submitKeyed(key, task{fn: fn, ctx: context.Background()})
}

func (s *System) submitKeyed(key string, t task) {
	for {
		s.mu.Lock()
		mb, ok := s.mailboxes[key]
		if !ok {
			mb = &mailbox{signal: make(chan struct{}, 1)}
			s.mailboxes[key] = mb
			go s.run(key, mb)
		}
		s.mu.Unlock()

		if mb.enqueue(t) {
			return
		}
		// Lost the race against the mailbox idling out; retry with a fresh one.
		s.mu.Lock()
		if s.mailboxes[key] == mb {
			delete(s.mailboxes, key)
		}
		s.mu.Unlock()
	}
}

// run is the mailbox loop: drain tasks in order, retire after idleAfter of
// quiet.
func (s *System) run(key string, mb *mailbox) {
	idle := time.NewTimer(s.idleAfter)
	defer idle.Stop()

	for {
		mb.mu.Lock()
		var next *task
		if len(mb.tasks) > 0 {
			next = &mb.tasks[0]
			mb.tasks = mb.tasks[1:]
		}
		mb.mu.Unlock()

		if next != nil {
			s.runTask(key, *next)
			continue
		}

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(s.idleAfter)

		select {
		case <-mb.signal:
		case <-idle.C:
			mb.mu.Lock()
			if len(mb.tasks) == 0 {
				mb.idle = true
				mb.mu.Unlock()
				s.mu.Lock()
				if s.mailboxes[key] == mb {
					delete(s.mailboxes, key)
				}
				s.mu.Unlock()
				return
			}
			mb.mu.Unlock()
		}
	}
}

func (s *System) runTask(key string, t task) {
	defer func() {
		if r := recover(); r != nil {
			// A panic is fatal to the single operation, not to the actor.
			s.logger.Error("actor task panicked", "key", key, "panic", r)
			if t.reply != nil {
				t.reply <- ErrTaskPanicked
			}
		}
	}()

	err := t.fn(t.ctx)
	if t.reply != nil {
		t.reply <- err
		return
	}
	if err != nil {
		s.logger.Warn("posted task failed", "key", key, "error", err)
	}
}
