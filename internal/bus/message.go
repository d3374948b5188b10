package bus

import (
	"errors"
	"fmt"
)

// ActorID identifies an actor in a System.
type ActorID string

// MessageID identifies one sent message. A reply carries the MessageID of
// the request it answers, which makes it the correlation key.
type MessageID uint64

// Message is a delivered envelope.
type Message struct {
	ID      MessageID
	Source  ActorID
	Dest    ActorID
	Payload []byte

	// Gas is the budget the handler may spend on its own send-for-reply
	// calls while handling this message.
	Gas   uint64
	Value uint64

	// ReplyExpected is set for send-for-reply. The handler's return value
	// is routed back to the sender only when it is set.
	ReplyExpected bool
}

// Reply is the answer to a send-for-reply message.
type Reply struct {
	To      MessageID
	From    ActorID
	Payload []byte

	// Err is set when the target failed while handling the request.
	Err *ExecutionError
}

var (
	// ErrClosed is returned when the system or an inbox has shut down.
	ErrClosed = errors.New("bus closed")

	// ErrUnknownActor is returned when a message is addressed to an actor
	// that was never spawned.
	ErrUnknownActor = errors.New("unknown actor")

	// ErrActorExists is returned by SpawnAt when the id is already taken.
	ErrActorExists = errors.New("actor already exists")

	// ErrNotEnoughGas is returned when a send-for-reply asks for more gas
	// than the handling context has left.
	ErrNotEnoughGas = errors.New("not enough gas")
)

// ExecutionError reports that the target actor failed to handle a request.
type ExecutionError struct {
	Actor  ActorID
	Reason string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed at %s: %s", e.Actor, e.Reason)
}

// IsExecutionError reports whether err is, or wraps, an ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}
