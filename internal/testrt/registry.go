package testrt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/actest/internal/bus"
	"github.com/roach88/actest/internal/progress"
	"github.com/roach88/actest/internal/scheduler"
)

// Session identifies the two parties of a test session.
type Session struct {
	DeployedActor bus.ActorID
	ControlBus    bus.ActorID
}

// T is the handle a test body receives.
type T struct {
	name    string
	session Session
	task    *scheduler.Task
}

// Name returns the registered test name.
func (t *T) Name() string { return t.name }

// Session returns the session the test runs in.
func (t *T) Session() Session { return t.session }

// Context is done when the session is aborted.
func (t *T) Context() context.Context { return t.task.Context() }

// Call sends payload to the deployed actor and waits for its reply.
func (t *T) Call(payload []byte, gas uint64) ([]byte, error) {
	return t.task.Call(t.session.DeployedActor, payload, gas, 0)
}

// CallActor sends payload to any actor and waits for its reply.
func (t *T) CallActor(to bus.ActorID, payload []byte, gas, value uint64) ([]byte, error) {
	return t.task.Call(to, payload, gas, value)
}

// TestFunc is a test body. A returned error or a panic fails the test.
type TestFunc func(t *T) error

// Test is a registered test.
type Test struct {
	Name string
	Func TestFunc
}

// EntryPoint pushes the test onto s as a coroutine without running it.
//
// The coroutine reports TestStart to the session's control bus, runs the
// body, and reports TestSuccess or TestFail.
func (tc Test) EntryPoint(s *scheduler.Scheduler, sess Session, logger *slog.Logger) {
	s.Spawn(tc.Name, func(task *scheduler.Task) error {
		rep := progress.NewReporter(task, sess.ControlBus, logger)
		rep.Start(tc.Name)

		err := runBody(tc.Func, &T{name: tc.Name, session: sess, task: task})
		if err != nil {
			rep.Fail(tc.Name, err.Error())
			return err
		}
		rep.Success(tc.Name)
		return nil
	})
}

func runBody(fn TestFunc, t *T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(t)
}

// ErrDuplicateTest is returned when a test name is registered twice.
var ErrDuplicateTest = errors.New("duplicate test name")

// Registry holds the tests of a program in registration order.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tests []Test
	names map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds a test.
func (r *Registry) Register(name string, fn TestFunc) error {
	if name == "" {
		return errors.New("register test: empty name")
	}
	if fn == nil {
		return fmt.Errorf("register test %s: nil func", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.names[name]; ok {
		return fmt.Errorf("register test %s: %w", name, ErrDuplicateTest)
	}
	r.names[name] = struct{}{}
	r.tests = append(r.tests, Test{Name: name, Func: fn})
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, fn TestFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Tests returns the registered tests in registration order.
func (r *Registry) Tests() []Test {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Test, len(r.tests))
	copy(out, r.tests)
	return out
}
