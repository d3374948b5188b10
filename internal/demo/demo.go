// Package demo provides small target actors and a sample test suite. The
// CLI deploys them so that sessions and fixture runs can be exercised
// without an external program.
package demo

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/roach88/actest/internal/bus"
	"github.com/roach88/actest/internal/testrt"
)

// ErrUninitialised is reported by a Counter that has not received "init".
var ErrUninitialised = errors.New("counter not initialised")

// Counter is a target holding one integer.
//
// Commands: "init" sets it to zero, "inc" adds one, "get" reads it. Each
// replies with the resulting value in decimal. "inc" and "get" fail before
// "init".
type Counter struct {
	mu          sync.Mutex
	value       int64
	initialised bool
}

// Receive implements bus.Handler.
func (c *Counter) Receive(ctx *bus.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch cmd := string(ctx.Payload()); cmd {
	case "init":
		c.value = 0
		c.initialised = true
	case "inc":
		if !c.initialised {
			return nil, ErrUninitialised
		}
		c.value++
	case "get":
		if !c.initialised {
			return nil, ErrUninitialised
		}
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
	return []byte(strconv.FormatInt(c.value, 10)), nil
}

// Value returns the current value and whether the counter was initialised.
func (c *Counter) Value() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.initialised
}

// Echo replies with the payload it received.
var Echo = bus.HandlerFunc(func(c *bus.Context) ([]byte, error) {
	return c.Payload(), nil
})

// Targets maps target names accepted by the CLI to constructors.
var Targets = map[string]func() bus.Handler{
	"counter": func() bus.Handler { return &Counter{} },
	"echo":    func() bus.Handler { return Echo },
}

// Tests returns the sample suite, meant to run against a Counter.
func Tests() *testrt.Registry {
	reg := testrt.NewRegistry()

	reg.MustRegister("smoky", func(*testrt.T) error {
		return nil
	})

	reg.MustRegister("counter_initialises", func(t *testrt.T) error {
		got, err := t.Call([]byte("init"), 10)
		if err != nil {
			return err
		}
		if string(got) != "0" {
			return fmt.Errorf("init replied %q, want %q", got, "0")
		}
		return nil
	})

	reg.MustRegister("counter_rejects_unknown", func(t *testrt.T) error {
		_, err := t.Call([]byte("explode"), 10)
		if !bus.IsExecutionError(err) {
			return fmt.Errorf("expected an execution error, got %v", err)
		}
		return nil
	})

	return reg
}
