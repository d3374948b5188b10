package control

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/actest/internal/bus"
	"github.com/roach88/actest/internal/fixture"
)

// ErrorKind names a protocol error.
type ErrorKind string

const (
	NotFound     ErrorKind = "NotFound"
	NotEnoughGas ErrorKind = "NotEnoughGas"
)

// Error is a protocol error carried inside a reply.
type Error struct {
	Kind   ErrorKind `json:"kind"`
	Actual uint64    `json:"actual,omitempty"` // NotEnoughGas only
	Needed uint64    `json:"needed,omitempty"` // NotEnoughGas only
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Kind == NotEnoughGas {
		return fmt.Sprintf("%s: %d available, %d needed", e.Kind, e.Actual, e.Needed)
	}
	return string(e.Kind)
}

// FromError maps an engine error onto a protocol error. It returns false for
// errors the protocol does not carry.
func FromError(err error) (*Error, bool) {
	var ne *fixture.NotEnoughGasError
	switch {
	case errors.As(err, &ne):
		return &Error{Kind: NotEnoughGas, Actual: ne.Actual, Needed: ne.Needed}, true
	case errors.Is(err, fixture.ErrNotFound):
		return &Error{Kind: NotFound}, true
	}
	return nil, false
}

// FailedFixture is one entry of a run report.
type FailedFixture struct {
	Index uint32              `json:"index"`
	Kind  fixture.FailureKind `json:"kind"`
	Hint  fixture.HintRef     `json:"hint"`
	Text  string              `json:"text,omitempty"` // resolved hint
}

// Reply is the result of dispatching one command. Only the fields relevant
// to Kind are set.
type Reply struct {
	Kind     Kind
	Owner    bus.ActorID       // GetOwner
	Fixtures []fixture.Fixture // GetFixtures
	Failed   []FailedFixture   // RunFixtures
	Err      *Error            // RemoveFixture, UpdateFixture, RunFixtures
}

// result is the wire envelope of fallible commands. Exactly one field is set.
type result struct {
	OK  json.RawMessage `json:"ok,omitempty"`
	Err *Error          `json:"err,omitempty"`
}

var unit = json.RawMessage(`{}`)

// Encode returns the wire form of r. Commands without a result encode to
// an empty payload.
func (r Reply) Encode() ([]byte, error) {
	switch r.Kind {
	case KindReplaceOwner, KindAddFixture, KindClearFixtures:
		return []byte{}, nil
	case KindGetOwner:
		return json.Marshal(r.Owner)
	case KindGetFixtures:
		fixtures := r.Fixtures
		if fixtures == nil {
			fixtures = []fixture.Fixture{}
		}
		return json.Marshal(fixtures)
	case KindRemoveFixture, KindUpdateFixture:
		if r.Err != nil {
			return json.Marshal(result{Err: r.Err})
		}
		return json.Marshal(result{OK: unit})
	case KindRunFixtures:
		if r.Err != nil {
			return json.Marshal(result{Err: r.Err})
		}
		failed := r.Failed
		if failed == nil {
			failed = []FailedFixture{}
		}
		ok, err := json.Marshal(failed)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result{OK: ok})
	}
	return nil, fmt.Errorf("encode reply: unknown kind %q", r.Kind)
}

// DecodeReply parses the reply to a command of the given kind.
func DecodeReply(kind Kind, payload []byte) (Reply, error) {
	r := Reply{Kind: kind}

	switch kind {
	case KindReplaceOwner, KindAddFixture, KindClearFixtures:
		if len(payload) != 0 {
			return Reply{}, fmt.Errorf("decode %s reply: unexpected payload", kind)
		}
		return r, nil
	case KindGetOwner:
		if err := json.Unmarshal(payload, &r.Owner); err != nil {
			return Reply{}, fmt.Errorf("decode %s reply: %w", kind, err)
		}
		return r, nil
	case KindGetFixtures:
		if err := json.Unmarshal(payload, &r.Fixtures); err != nil {
			return Reply{}, fmt.Errorf("decode %s reply: %w", kind, err)
		}
		return r, nil
	case KindRemoveFixture, KindUpdateFixture, KindRunFixtures:
		var res result
		if err := json.Unmarshal(payload, &res); err != nil {
			return Reply{}, fmt.Errorf("decode %s reply: %w", kind, err)
		}
		if res.Err != nil {
			r.Err = res.Err
			return r, nil
		}
		if res.OK == nil {
			return Reply{}, fmt.Errorf("decode %s reply: neither ok nor err", kind)
		}
		if kind == KindRunFixtures {
			if err := json.Unmarshal(res.OK, &r.Failed); err != nil {
				return Reply{}, fmt.Errorf("decode %s reply: %w", kind, err)
			}
		}
		return r, nil
	}
	return Reply{}, fmt.Errorf("decode reply: unknown kind %q", kind)
}
