package testrt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/actest/internal/bus"
	"github.com/roach88/actest/internal/scheduler"
)

// Program is the handler of a test program actor.
//
// It answers PING with PONG. Any other payload must be a ControlSignal,
// which runs one session and replies with its JSON Summary.
type Program struct {
	registry  *Registry
	logger    *slog.Logger
	maxActive int
}

// ProgramOption configures a Program.
type ProgramOption func(*Program)

// WithProgramLogger sets the logger (default slog.Default()).
func WithProgramLogger(l *slog.Logger) ProgramOption {
	return func(p *Program) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMaxActiveTests caps how many tests of a session are in flight at once.
func WithMaxActiveTests(n int) ProgramOption {
	return func(p *Program) {
		p.maxActive = n
	}
}

// NewProgram creates a program running the tests in reg.
func NewProgram(reg *Registry, opts ...ProgramOption) *Program {
	p := &Program{registry: reg, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Receive implements bus.Handler.
func (p *Program) Receive(c *bus.Context) ([]byte, error) {
	if bytes.Equal(c.Payload(), Ping) {
		return Pong, nil
	}

	sig, err := DecodeControlSignal(c.Payload())
	if err != nil {
		return nil, err
	}

	sess := Session{DeployedActor: sig.DeployedActor, ControlBus: c.Source()}
	logger := p.logger.With("deployed_actor", sess.DeployedActor, "control_bus", sess.ControlBus)

	sched := scheduler.New(c,
		scheduler.WithLogger(logger),
		scheduler.WithMaxActive(p.maxActive),
	)
	tests := p.registry.Tests()
	for _, tc := range tests {
		tc.EntryPoint(sched, sess, logger)
	}

	logger.Info("session started", "tests", len(tests), "gas", c.GasAvailable())
	results, err := sched.Run(c.Ctx())
	if err != nil {
		return nil, fmt.Errorf("session aborted: %w", err)
	}

	summary := summarize(results)
	logger.Info("session finished", "passed", len(summary.Passed), "failed", len(summary.Failed))
	return json.Marshal(summary)
}

func summarize(results []scheduler.Result) Summary {
	s := Summary{Passed: []string{}, Failed: []Failure{}}
	for _, r := range results {
		if r.Err == nil {
			s.Passed = append(s.Passed, r.Name)
			continue
		}
		s.Failed = append(s.Failed, Failure{Name: r.Name, Reason: r.Err.Error()})
	}
	return s
}
