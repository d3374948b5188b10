package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/actest/internal/fixture"
)

// ErrUnknownCommand is returned by Dispatch for a nil or foreign Command.
var ErrUnknownCommand = errors.New("unknown command")

// Dispatcher routes commands to one engine. Owner changes go through the
// engine, so every dispatch sees the result of the previous one.
type Dispatcher struct {
	engine *fixture.Engine
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher for engine. A nil logger means
// slog.Default().
func NewDispatcher(engine *fixture.Engine, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{engine: engine, logger: logger}
}

// Engine returns the engine commands are dispatched to.
func (d *Dispatcher) Engine() *fixture.Engine { return d.engine }

// Dispatch runs cmd. tr is only used by RunFixtures and supplies both the
// messaging and the caller's gas.
//
// Protocol errors (NotFound, NotEnoughGas) are returned in Reply.Err. The
// error result is reserved for failures outside the protocol: an unknown
// command or a run cut short by ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command, tr fixture.Transport) (Reply, error) {
	if cmd == nil {
		return Reply{}, ErrUnknownCommand
	}
	reply := Reply{Kind: cmd.Kind()}
	d.logger.Debug("dispatching command", "kind", reply.Kind)

	switch c := cmd.(type) {
	case GetOwner:
		reply.Owner = d.engine.Owner()

	case ReplaceOwner:
		d.engine.ReplaceOwner(c.NewOwner)

	case GetFixtures:
		reply.Fixtures = d.engine.Fixtures()

	case RemoveFixture:
		reply.Err = protocolError(d.engine.Remove(c.Index))

	case UpdateFixture:
		reply.Err = protocolError(d.engine.Update(c.Index, c.Fixture))

	case AddFixture:
		d.engine.Add(c.Fixture)

	case ClearFixtures:
		d.engine.Clear()

	case RunFixtures:
		report, err := d.engine.Run(ctx, tr)
		if err != nil {
			perr, ok := FromError(err)
			if !ok {
				return Reply{}, fmt.Errorf("dispatch %s: %w", reply.Kind, err)
			}
			reply.Err = perr
			break
		}
		reply.Failed = make([]FailedFixture, len(report.Failures))
		for i, f := range report.Failures {
			text, _ := d.engine.Hint(f.Hint)
			reply.Failed[i] = FailedFixture{Index: f.Index, Kind: f.Kind, Hint: f.Hint, Text: text}
		}

	default:
		return Reply{}, fmt.Errorf("dispatch %T: %w", cmd, ErrUnknownCommand)
	}

	return reply, nil
}

// protocolError converts the errors index-based operations can return.
func protocolError(err error) *Error {
	if err == nil {
		return nil
	}
	perr, ok := FromError(err)
	if !ok {
		// Remove and Update only fail with ErrNotFound.
		return &Error{Kind: NotFound}
	}
	return perr
}
