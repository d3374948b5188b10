package scheduler

import (
	"errors"
	"fmt"

	"github.com/roach88/actest/internal/bus"
)

// ErrAborted is returned to coroutines that were still suspended, or never
// started, when their Run ended early.
var ErrAborted = errors.New("coroutine aborted")

// SendError reports that a message could not be dispatched at all.
type SendError struct {
	To  bus.ActorID
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.To, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// IsSendError returns true if err is, or wraps, a SendError.
func IsSendError(err error) bool {
	var se *SendError
	return errors.As(err, &se)
}

// PanicError is the result of a coroutine that panicked.
type PanicError struct {
	Task  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("coroutine %s panicked: %v", e.Task, e.Value)
}
