// Package control is the operator-facing command surface of a fixture
// engine: a closed set of commands, their wire codec, a dispatcher that maps
// each command onto an engine operation, and an actor handler and client
// built on top.
package control

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/actest/internal/bus"
	"github.com/roach88/actest/internal/fixture"
)

// Kind names a command on the wire.
type Kind string

const (
	KindGetOwner      Kind = "GetOwner"
	KindReplaceOwner  Kind = "ReplaceOwner"
	KindGetFixtures   Kind = "GetFixtures"
	KindRemoveFixture Kind = "RemoveFixture"
	KindUpdateFixture Kind = "UpdateFixture"
	KindAddFixture    Kind = "AddFixture"
	KindClearFixtures Kind = "ClearFixtures"
	KindRunFixtures   Kind = "RunFixtures"
)

// Command is one of the command structs of this package.
type Command interface {
	Kind() Kind
	command()
}

type (
	GetOwner     struct{}
	ReplaceOwner struct{ NewOwner bus.ActorID }
	GetFixtures  struct{}

	RemoveFixture struct{ Index uint32 }

	UpdateFixture struct {
		Index   uint32
		Fixture fixture.Fixture
	}

	AddFixture    struct{ Fixture fixture.Fixture }
	ClearFixtures struct{}
	RunFixtures   struct{}
)

func (GetOwner) Kind() Kind      { return KindGetOwner }
func (ReplaceOwner) Kind() Kind  { return KindReplaceOwner }
func (GetFixtures) Kind() Kind   { return KindGetFixtures }
func (RemoveFixture) Kind() Kind { return KindRemoveFixture }
func (UpdateFixture) Kind() Kind { return KindUpdateFixture }
func (AddFixture) Kind() Kind    { return KindAddFixture }
func (ClearFixtures) Kind() Kind { return KindClearFixtures }
func (RunFixtures) Kind() Kind   { return KindRunFixtures }

func (GetOwner) command()      {}
func (ReplaceOwner) command()  {}
func (GetFixtures) command()   {}
func (RemoveFixture) command() {}
func (UpdateFixture) command() {}
func (AddFixture) command()    {}
func (ClearFixtures) command() {}
func (RunFixtures) command()   {}

// ErrMalformedCommand is returned by DecodeCommand for undecodable payloads.
var ErrMalformedCommand = errors.New("malformed command")

// envelope is the wire form of every command.
type envelope struct {
	Kind     Kind             `json:"kind"`
	NewOwner bus.ActorID      `json:"new_owner,omitempty"`
	Index    *uint32          `json:"index,omitempty"`
	Fixture  *fixture.Fixture `json:"fixture,omitempty"`
}

// EncodeCommand returns the wire form of cmd.
func EncodeCommand(cmd Command) ([]byte, error) {
	env := envelope{Kind: cmd.Kind()}
	switch c := cmd.(type) {
	case ReplaceOwner:
		env.NewOwner = c.NewOwner
	case RemoveFixture:
		env.Index = &c.Index
	case UpdateFixture:
		env.Index = &c.Index
		env.Fixture = &c.Fixture
	case AddFixture:
		env.Fixture = &c.Fixture
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Kind(), err)
	}
	return b, nil
}

// DecodeCommand parses a wire payload. Fields a command requires must be
// present; fields it does not take are rejected.
func DecodeCommand(payload []byte) (Command, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}

	var (
		needOwner   bool
		needIndex   bool
		needFixture bool
	)
	switch env.Kind {
	case KindReplaceOwner:
		needOwner = true
	case KindRemoveFixture:
		needIndex = true
	case KindUpdateFixture:
		needIndex, needFixture = true, true
	case KindAddFixture:
		needFixture = true
	case KindGetOwner, KindGetFixtures, KindClearFixtures, KindRunFixtures:
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedCommand, env.Kind)
	}

	if err := checkField("new_owner", needOwner, env.NewOwner != ""); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedCommand, env.Kind, err)
	}
	if err := checkField("index", needIndex, env.Index != nil); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedCommand, env.Kind, err)
	}
	if err := checkField("fixture", needFixture, env.Fixture != nil); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedCommand, env.Kind, err)
	}

	switch env.Kind {
	case KindGetOwner:
		return GetOwner{}, nil
	case KindReplaceOwner:
		return ReplaceOwner{NewOwner: env.NewOwner}, nil
	case KindGetFixtures:
		return GetFixtures{}, nil
	case KindRemoveFixture:
		return RemoveFixture{Index: *env.Index}, nil
	case KindUpdateFixture:
		return UpdateFixture{Index: *env.Index, Fixture: *env.Fixture}, nil
	case KindAddFixture:
		return AddFixture{Fixture: *env.Fixture}, nil
	case KindClearFixtures:
		return ClearFixtures{}, nil
	default:
		return RunFixtures{}, nil
	}
}

func checkField(name string, want, have bool) error {
	switch {
	case want && !have:
		return fmt.Errorf("missing %s", name)
	case !want && have:
		return fmt.Errorf("unexpected %s", name)
	}
	return nil
}
