package control

import (
	"context"
	"fmt"

	"github.com/roach88/actest/internal/bus"
	"github.com/roach88/actest/internal/fixture"
)

// Client sends commands to a Service over a bus.
type Client struct {
	sys     *bus.System
	service bus.ActorID
	caller  bus.ActorID
}

// NewClient creates a client that talks to service as caller. caller may
// be empty for an anonymous client.
func NewClient(sys *bus.System, service, caller bus.ActorID) *Client {
	return &Client{sys: sys, service: service, caller: caller}
}

// Do sends cmd with the given gas and decodes the reply. A handler failure
// on the service side is returned as a *bus.ExecutionError.
func (c *Client) Do(ctx context.Context, cmd Command, gas uint64) (Reply, error) {
	payload, err := EncodeCommand(cmd)
	if err != nil {
		return Reply{}, err
	}
	raw, err := c.sys.Call(ctx, c.caller, c.service, payload, gas, 0)
	if err != nil {
		return Reply{}, fmt.Errorf("%s: %w", cmd.Kind(), err)
	}
	if raw.Err != nil {
		return Reply{}, raw.Err
	}
	return DecodeReply(cmd.Kind(), raw.Payload)
}

// Owner returns the engine's current owner.
func (c *Client) Owner(ctx context.Context) (bus.ActorID, error) {
	r, err := c.Do(ctx, GetOwner{}, 0)
	return r.Owner, err
}

// ReplaceOwner hands ownership to owner.
func (c *Client) ReplaceOwner(ctx context.Context, owner bus.ActorID) error {
	_, err := c.Do(ctx, ReplaceOwner{NewOwner: owner}, 0)
	return err
}

// Fixtures returns the engine's fixtures in index order.
func (c *Client) Fixtures(ctx context.Context) ([]fixture.Fixture, error) {
	r, err := c.Do(ctx, GetFixtures{}, 0)
	return r.Fixtures, err
}

// Add appends f.
func (c *Client) Add(ctx context.Context, f fixture.Fixture) error {
	_, err := c.Do(ctx, AddFixture{Fixture: f}, 0)
	return err
}

// Remove deletes the fixture at index. It returns a *Error of kind NotFound
// when index is out of range.
func (c *Client) Remove(ctx context.Context, index uint32) error {
	return c.fallible(ctx, RemoveFixture{Index: index})
}

// Update replaces the fixture at index. It returns a *Error of kind
// NotFound when index is out of range.
func (c *Client) Update(ctx context.Context, index uint32, f fixture.Fixture) error {
	return c.fallible(ctx, UpdateFixture{Index: index, Fixture: f})
}

// Clear removes every fixture.
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.Do(ctx, ClearFixtures{}, 0)
	return err
}

// Run runs every fixture with gas. It returns the failed fixtures, or a
// *Error of kind NotEnoughGas when gas does not cover the collection.
func (c *Client) Run(ctx context.Context, gas uint64) ([]FailedFixture, error) {
	r, err := c.Do(ctx, RunFixtures{}, gas)
	if err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Failed, nil
}

func (c *Client) fallible(ctx context.Context, cmd Command) error {
	r, err := c.Do(ctx, cmd, 0)
	if err != nil {
		return err
	}
	if r.Err != nil {
		return r.Err
	}
	return nil
}
