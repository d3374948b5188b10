// Package progress implements the lifecycle events a test coroutine reports
// to the control bus: started, succeeded and failed.
//
// Events are fire-and-forget. A reporter never waits for the control bus and
// never fails the test it reports on.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/actest/internal/bus"
)

// Kind identifies a lifecycle event.
type Kind string

const (
	TestStart   Kind = "TestStart"
	TestSuccess Kind = "TestSuccess"
	TestFail    Kind = "TestFail"
)

// Valid reports whether k is a known event kind.
func (k Kind) Valid() bool {
	switch k {
	case TestStart, TestSuccess, TestFail:
		return true
	}
	return false
}

// Signal is one lifecycle event. Reason is only set for TestFail.
type Signal struct {
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

// String renders the signal the way trace files show it.
func (s Signal) String() string {
	if s.Kind == TestFail {
		return fmt.Sprintf("%s %s: %s", s.Kind, s.Name, s.Reason)
	}
	return fmt.Sprintf("%s %s", s.Kind, s.Name)
}

// ErrMalformed is returned by Decode for payloads that are not progress signals.
var ErrMalformed = errors.New("malformed progress signal")

// Encode returns the wire form of s.
func Encode(s Signal) []byte {
	// Marshal of a struct of strings cannot fail.
	b, _ := json.Marshal(s)
	return b
}

// Decode parses a wire payload.
func Decode(payload []byte) (Signal, error) {
	var s Signal
	if err := json.Unmarshal(payload, &s); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !s.Kind.Valid() {
		return Signal{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, s.Kind)
	}
	if s.Name == "" {
		return Signal{}, fmt.Errorf("%w: missing test name", ErrMalformed)
	}
	return s, nil
}

// Sender is the fire-and-forget half of the transport.
// *bus.Context and *scheduler.Task implement it.
type Sender interface {
	Send(to bus.ActorID, payload []byte, value uint64) error
}

// Reporter sends lifecycle events for one session to its control bus.
type Reporter struct {
	sender     Sender
	controlBus bus.ActorID
	logger     *slog.Logger
}

// NewReporter creates a reporter that sends through sender to controlBus.
// A nil logger means slog.Default().
func NewReporter(sender Sender, controlBus bus.ActorID, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{sender: sender, controlBus: controlBus, logger: logger}
}

// Start reports that test name has begun.
func (r *Reporter) Start(name string) {
	r.emit(Signal{Kind: TestStart, Name: name})
}

// Success reports that test name passed.
func (r *Reporter) Success(name string) {
	r.emit(Signal{Kind: TestSuccess, Name: name})
}

// Fail reports that test name failed with reason.
func (r *Reporter) Fail(name, reason string) {
	r.emit(Signal{Kind: TestFail, Name: name, Reason: reason})
}

func (r *Reporter) emit(s Signal) {
	if err := r.sender.Send(r.controlBus, Encode(s), 0); err != nil {
		r.logger.Warn("progress signal not delivered",
			"kind", s.Kind,
			"test", s.Name,
			"control_bus", r.controlBus,
			"error", err,
		)
		return
	}
	r.logger.Debug("progress signal sent", "kind", s.Kind, "test", s.Name)
}
