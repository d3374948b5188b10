package fixture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/actest/internal/bus"
	"github.com/roach88/actest/internal/scheduler"
)

// Transport is what a run needs from the caller: the scheduler's messaging
// primitives plus the caller's remaining gas. *bus.Context implements it.
type Transport interface {
	scheduler.Transport
	GasAvailable() uint64
}

// Engine owns a fixture collection and runs it against one target.
//
// CRUD takes the write lock; Run holds the read lock for the whole run, so
// the collection cannot change under an in-flight run and mutations wait
// for it to finish. The owner is guarded separately and can be read or
// replaced while a run is in progress.
type Engine struct {
	target        bus.ActorID
	logger        *slog.Logger
	maxConcurrent int
	registerer    prometheus.Registerer
	metrics       *metrics
	hints         *HintTable

	ownerMu sync.RWMutex
	owner   bus.ActorID

	mu       sync.RWMutex
	fixtures []Fixture
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxConcurrent caps how many fixtures of a run are in flight at once.
// Zero (the default) runs every fixture eagerly.
func WithMaxConcurrent(n int) Option {
	return func(e *Engine) {
		e.maxConcurrent = n
	}
}

// WithMetrics registers run and failure counters with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHintTable shares a hint table between engines.
func WithHintTable(h *HintTable) Option {
	return func(e *Engine) {
		if h != nil {
			e.hints = h
		}
	}
}

// New creates an engine with an empty collection that runs against target.
func New(target, owner bus.ActorID, opts ...Option) *Engine {
	e := &Engine{
		target: target,
		owner:  owner,
		logger: slog.Default(),
		hints:  NewHintTable(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.registerer != nil {
		m, err := newMetrics(e.registerer)
		if err != nil {
			e.logger.Warn("fixture metrics disabled", "error", err)
		}
		e.metrics = m
	}
	return e
}

// Target returns the actor fixtures are run against.
func (e *Engine) Target() bus.ActorID { return e.target }

// Owner returns the current owner.
func (e *Engine) Owner() bus.ActorID {
	e.ownerMu.RLock()
	defer e.ownerMu.RUnlock()
	return e.owner
}

// ReplaceOwner rebinds the owner. The new owner is visible to every later
// call.
func (e *Engine) ReplaceOwner(owner bus.ActorID) {
	e.ownerMu.Lock()
	old := e.owner
	e.owner = owner
	e.ownerMu.Unlock()

	e.logger.Info("owner replaced", "old", old, "new", owner)
}

// Fixtures returns a deep copy of the collection.
func (e *Engine) Fixtures() []Fixture {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneAll(e.fixtures)
}

// Len returns the number of fixtures.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.fixtures)
}

// Add appends f and returns its index.
func (e *Engine) Add(f Fixture) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fixtures = append(e.fixtures, f.Clone())
	return uint32(len(e.fixtures) - 1)
}

// Remove deletes the fixture at index; later fixtures shift down by one.
// Returns ErrNotFound, leaving the collection untouched, when index is out
// of range.
func (e *Engine) Remove(index uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if uint64(index) >= uint64(len(e.fixtures)) {
		return fmt.Errorf("remove fixture %d: %w", index, ErrNotFound)
	}
	e.fixtures = append(e.fixtures[:index], e.fixtures[index+1:]...)
	return nil
}

// Update replaces the fixture at index.
// Returns ErrNotFound, leaving the collection untouched, when index is out
// of range.
func (e *Engine) Update(index uint32, f Fixture) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if uint64(index) >= uint64(len(e.fixtures)) {
		return fmt.Errorf("update fixture %d: %w", index, ErrNotFound)
	}
	e.fixtures[index] = f.Clone()
	return nil
}

// Clear empties the collection.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fixtures = nil
}

// Hint resolves a failure hint reference from a report of this engine.
func (e *Engine) Hint(ref HintRef) (string, bool) {
	return e.hints.Lookup(ref)
}

// Run executes every fixture against the target through tr.
//
// If tr has less gas than the collection declares, Run returns a
// *NotEnoughGasError and sends nothing. Otherwise every fixture runs as its
// own coroutine and Run returns once all of them have passed or recorded
// their first failure. Individual fixture failures are never returned as
// errors; they are in the report. A non-nil error other than
// *NotEnoughGasError means the run was cut short by ctx or the transport.
func (e *Engine) Run(ctx context.Context, tr Transport) (Report, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	needed := GasRequired(e.fixtures)
	actual := tr.GasAvailable()
	if actual < needed {
		e.metrics.run(outcomeRejected)
		e.logger.Info("fixture run rejected", "gas_available", actual, "gas_needed", needed)
		return Report{}, &NotEnoughGasError{Actual: actual, Needed: needed}
	}

	sched := scheduler.New(tr,
		scheduler.WithMaxActive(e.maxConcurrent),
		scheduler.WithLogger(e.logger),
	)

	// Only one coroutine runs at a time, so each may write its own slot.
	outcomes := make([]*StepFailure, len(e.fixtures))
	for i := range e.fixtures {
		f := e.fixtures[i]
		sched.Spawn(fmt.Sprintf("fixture-%d", i), func(t *scheduler.Task) error {
			outcomes[i] = e.execute(t, f)
			return nil
		})
	}

	e.logger.Debug("fixture run started", "fixtures", len(e.fixtures), "gas_available", actual, "gas_needed", needed)
	if _, err := sched.Run(ctx); err != nil {
		e.metrics.run(outcomeAborted)
		return Report{}, fmt.Errorf("run fixtures: %w", err)
	}

	var failures []Failure
	for i, o := range outcomes {
		if o == nil {
			continue
		}
		failures = append(failures, Failure{
			Index: uint32(i),
			Kind:  o.Kind,
			Hint:  e.hints.Intern(o.Error()),
		})
		e.metrics.failure(o.Kind)
		e.logger.Debug("fixture failed", "index", i, "kind", o.Kind, "hint", o.Error())
	}

	report := newReport(failures)
	if report.Passed() {
		e.metrics.run(outcomePassed)
	} else {
		e.metrics.run(outcomeFailed)
	}
	e.logger.Info("fixture run finished", "fixtures", len(e.fixtures), "failed", len(report.Failures))
	return report, nil
}

// execute runs one fixture and returns its first failure, or nil.
func (e *Engine) execute(t *scheduler.Task, f Fixture) *StepFailure {
	for i, req := range f.Preparation {
		_, err := t.Call(e.target, req.Payload, req.Gas, req.Value)
		if err == nil {
			continue
		}
		// Preparation replies are not validated, target errors included.
		var ee *bus.ExecutionError
		if errors.As(err, &ee) {
			e.logger.Debug("preparation failed at target", "task", t.Name(), "step", i, "reason", ee.Reason)
			continue
		}
		return &StepFailure{Kind: PreparationSendFailed, Step: i, Err: err}
	}

	for i, exp := range f.Expectations {
		got, err := t.Call(e.target, exp.Request.Payload, exp.Request.Gas, exp.Request.Value)
		if err != nil {
			var ee *bus.ExecutionError
			if errors.As(err, &ee) {
				return &StepFailure{Kind: ExecutionFailed, Step: i, Err: err}
			}
			return &StepFailure{Kind: ExpectationSendFailed, Step: i, Err: err}
		}
		if !exp.Response.Matches(got) {
			return &StepFailure{Kind: PayloadMismatch, Step: i, Expected: exp.Response.Payload, Actual: got}
		}
	}
	return nil
}
