// Package scheduler runs test coroutines cooperatively on one logical thread.
//
// A coroutine is a Func. It is registered with Spawn, which only appends it
// to the scheduler's pending set. Run drains the pending set and drives every
// drained coroutine to completion.
//
// Coroutines suspend in exactly one place: Task.Call, after the request has
// been sent and before its reply has arrived. The scheduler keeps a
// correlation table from message id to suspended task; when the transport
// delivers a reply, the owning task is resumed and runs until its next
// suspension point or until it returns.
//
// Each coroutine runs on its own goroutine, but the scheduler hands a single
// baton between them: at most one coroutine executes at any moment, and the
// scheduler itself waits while it does. Code between two suspension points is
// therefore atomic with respect to every other coroutine of the same run.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/actest/internal/bus"
)

// Transport is what the scheduler needs from the message layer.
// *bus.Context implements it.
type Transport interface {
	SendForReply(to bus.ActorID, payload []byte, gas, value uint64) (bus.MessageID, error)
	Send(to bus.ActorID, payload []byte, value uint64) error
	NextReply(ctx context.Context) (bus.Reply, error)
}

// Func is the body of a coroutine.
type Func func(t *Task) error

// Result is the outcome of one coroutine.
type Result struct {
	Name string
	Err  error
}

// Scheduler owns a pending set of coroutines and the correlation table of
// the run that is driving them.
//
// Spawn and Pending are safe for concurrent use. Run must not be called
// concurrently with itself.
type Scheduler struct {
	tr        Transport
	logger    *slog.Logger
	maxActive int

	mu      sync.Mutex
	pending []*Task
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxActive caps how many coroutines may be started and unfinished at
// the same time. Zero means no cap.
func WithMaxActive(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxActive = n
		}
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a scheduler that sends and receives through tr.
func New(tr Transport, opts ...Option) *Scheduler {
	s := &Scheduler{
		tr:     tr,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn registers a coroutine. It does not start it.
func (s *Scheduler) Spawn(name string, fn Func) {
	t := &Task{
		name:   name,
		fn:     fn,
		tr:     s.tr,
		resume: make(chan bus.Reply),
	}

	s.mu.Lock()
	s.pending = append(s.pending, t)
	s.mu.Unlock()

	s.logger.Debug("coroutine registered", "task", name)
}

// Pending returns the number of registered coroutines not yet drained by Run.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// event is what a coroutine reports when it hands the baton back.
type event struct {
	awaiting bus.MessageID
	done     bool
	err      error
}

// Run drains the pending set and drives every drained coroutine to
// completion. Coroutines spawned while Run is in progress are left pending.
//
// Results are in registration order. The error result is non-nil only when
// the transport fails or ctx is done; in that case every unfinished
// coroutine is aborted and reports ErrAborted.
//
// A coroutine waiting for a reply that never comes blocks Run until ctx is
// done.
func (s *Scheduler) Run(ctx context.Context) ([]Result, error) {
	s.mu.Lock()
	tasks := s.pending
	s.pending = nil
	s.mu.Unlock()

	r := &run{
		sched:    s,
		ctx:      ctx,
		tasks:    tasks,
		yield:    make(chan event),
		inflight: make(map[bus.MessageID]*Task),
	}

	s.logger.Debug("run starting", "tasks", len(tasks))
	err := r.drive()
	if err != nil {
		r.abort()
	}

	results := make([]Result, len(tasks))
	for i, t := range tasks {
		results[i] = Result{Name: t.name, Err: t.err}
	}
	s.logger.Debug("run finished", "tasks", len(tasks), "error", err)
	return results, err
}

// run is the state of one Run call.
type run struct {
	sched    *Scheduler
	ctx      context.Context
	tasks    []*Task
	yield    chan event
	inflight map[bus.MessageID]*Task

	next      int // index of the next task to start
	active    int // started and unfinished
	remaining int // not finished
}

func (r *run) drive() error {
	r.remaining = len(r.tasks)
	r.fill()

	for r.remaining > 0 {
		reply, err := r.sched.tr.NextReply(r.ctx)
		if err != nil {
			return fmt.Errorf("await reply: %w", err)
		}

		t, ok := r.inflight[reply.To]
		if !ok {
			r.sched.logger.Debug("uncorrelated reply dropped", "to", reply.To, "from", reply.From)
			continue
		}
		delete(r.inflight, reply.To)

		r.sched.logger.Debug("coroutine resumed", "task", t.name, "reply_to", reply.To)
		r.handle(t, t.step(r, &reply))
		r.fill()
	}

	return nil
}

// fill starts coroutines until the active cap is reached or none are left.
func (r *run) fill() {
	max := r.sched.maxActive
	for r.next < len(r.tasks) && (max == 0 || r.active < max) {
		t := r.tasks[r.next]
		r.next++
		r.active++

		r.sched.logger.Debug("coroutine started", "task", t.name)
		r.handle(t, t.step(r, nil))
	}
}

func (r *run) handle(t *Task, ev event) {
	if ev.done {
		t.finished = true
		t.err = ev.err
		r.active--
		r.remaining--
		r.sched.logger.Debug("coroutine completed", "task", t.name, "error", ev.err)
		return
	}
	r.inflight[ev.awaiting] = t
}

// abort resumes every suspended coroutine with ErrAborted and waits for it
// to return. Coroutines that were never started are marked aborted.
func (r *run) abort() {
	for id, t := range r.inflight {
		delete(r.inflight, id)
		t.aborted = true
		close(t.resume)
		for {
			ev := <-r.yield
			if ev.done {
				t.finished = true
				t.err = ev.err
				break
			}
		}
	}
	for _, t := range r.tasks {
		if !t.finished {
			t.finished = true
			t.err = ErrAborted
		}
	}
}
