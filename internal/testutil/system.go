package testutil

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/roach88/actest/internal/bus"
)

// NewSystem returns a system with sequential actor ids that is closed when
// the test ends.
func NewSystem(t testing.TB) *bus.System {
	t.Helper()
	sys := bus.NewSystem(
		bus.WithIDGenerator(NewSequentialIDs("")),
		bus.WithLogger(slog.New(slog.DiscardHandler)),
	)
	t.Cleanup(func() { sys.Close() })
	return sys
}

// Context returns a context that times out well before the go test default,
// so a stalled exchange fails the test instead of hanging it.
func Context(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Target is a scripted actor. It answers each payload from its script and
// records every payload it receives, in order.
type Target struct {
	script map[string]Answer

	mu       sync.Mutex
	received []string
}

// Answer is a scripted reply: Err, when set, is reported as an execution
// failure, otherwise Reply is returned.
type Answer struct {
	Reply string
	Err   string
}

// NewTarget creates a target with the given script. Payloads missing from
// the script are echoed back.
func NewTarget(script map[string]Answer) *Target {
	return &Target{script: script}
}

// Receive implements bus.Handler.
func (t *Target) Receive(c *bus.Context) ([]byte, error) {
	p := string(c.Payload())

	t.mu.Lock()
	t.received = append(t.received, p)
	t.mu.Unlock()

	a, ok := t.script[p]
	if !ok {
		return c.Payload(), nil
	}
	if a.Err != "" {
		return nil, errors.New(a.Err)
	}
	return []byte(a.Reply), nil
}

// Received returns the payloads received so far.
func (t *Target) Received() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.received))
	copy(out, t.received)
	return out
}
