package scheduler

import (
	"context"

	"github.com/roach88/actest/internal/bus"
)

// Task is the handle a coroutine uses to talk to the outside world.
//
// Its methods must only be called from the coroutine's own Func.
type Task struct {
	name string
	fn   Func
	tr   Transport
	run  *run

	resume   chan bus.Reply
	started  bool
	finished bool
	aborted  bool
	err      error
}

// Name returns the name the coroutine was spawned with.
func (t *Task) Name() string { return t.name }

// Context returns the context of the Run driving this coroutine.
func (t *Task) Context() context.Context {
	if t.run == nil {
		return context.Background()
	}
	return t.run.ctx
}

// Call sends payload to `to` and suspends until the correlated reply
// arrives. Other coroutines run while this one is suspended.
//
// A send that fails before dispatch returns a *SendError. A target-side
// failure returns the *bus.ExecutionError carried by the reply.
func (t *Task) Call(to bus.ActorID, payload []byte, gas, value uint64) ([]byte, error) {
	if t.aborted {
		return nil, ErrAborted
	}

	id, err := t.tr.SendForReply(to, payload, gas, value)
	if err != nil {
		return nil, &SendError{To: to, Err: err}
	}

	t.run.yield <- event{awaiting: id}

	reply, ok := <-t.resume
	if !ok {
		return nil, ErrAborted
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return reply.Payload, nil
}

// Send delivers payload to `to` without waiting. It never suspends.
func (t *Task) Send(to bus.ActorID, payload []byte, value uint64) error {
	if err := t.tr.Send(to, payload, value); err != nil {
		return &SendError{To: to, Err: err}
	}
	return nil
}

// step hands the baton to t, either starting it or resuming it with reply,
// and blocks until t hands it back.
func (t *Task) step(r *run, reply *bus.Reply) event {
	if !t.started {
		t.started = true
		t.run = r
		go t.main()
	} else {
		t.resume <- *reply
	}
	return <-r.yield
}

func (t *Task) main() {
	var err error
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Task: t.name, Value: v}
		}
		t.run.yield <- event{done: true, err: err}
	}()
	err = t.fn(t)
}
