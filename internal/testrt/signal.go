// Package testrt is the runtime a test program links against.
//
// Tests are registered by name in a Registry. A test session starts when the
// program receives a ControlSignal: the sender becomes the session's control
// bus, every registered test is pushed onto a fresh scheduler through its
// entry point, and the scheduler runs them against the deployed actor named
// in the signal. Each test reports TestStart, then TestSuccess or TestFail,
// to the control bus.
package testrt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/actest/internal/bus"
)

// Liveness probe payloads.
var (
	Ping = []byte("PING")
	Pong = []byte("PONG")
)

// ErrMalformedSignal is returned for payloads that are neither a probe nor a
// control signal.
var ErrMalformedSignal = errors.New("malformed control signal")

// ControlSignal starts a test session against DeployedActor.
type ControlSignal struct {
	DeployedActor bus.ActorID `json:"deployed_actor"`
}

// EncodeControlSignal returns the wire form of s.
func EncodeControlSignal(s ControlSignal) []byte {
	b, _ := json.Marshal(s)
	return b
}

// DecodeControlSignal parses a control signal payload.
func DecodeControlSignal(payload []byte) (ControlSignal, error) {
	var s ControlSignal
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return ControlSignal{}, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	if s.DeployedActor == "" {
		return ControlSignal{}, fmt.Errorf("%w: missing deployed_actor", ErrMalformedSignal)
	}
	return s, nil
}

// Failure names a failed test and why it failed.
type Failure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Summary is the reply to a control signal.
type Summary struct {
	Passed []string  `json:"passed"`
	Failed []Failure `json:"failed"`
}

// OK reports whether no test failed.
func (s Summary) OK() bool { return len(s.Failed) == 0 }

// DecodeSummary parses the reply to a control signal.
func DecodeSummary(payload []byte) (Summary, error) {
	var s Summary
	if err := json.Unmarshal(payload, &s); err != nil {
		return Summary{}, fmt.Errorf("decode session summary: %w", err)
	}
	return s, nil
}
