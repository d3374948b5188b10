package bus

import (
	"context"
	"fmt"
)

// Context is the view a handler has of the message it is handling.
//
// It carries the gas budget of the message: every SendForReply reserves its
// gas from that budget. Replies to those sends arrive in the context's own
// inbox and are read with NextReply.
//
// A Context is only valid until the handler returns. It is not safe for
// concurrent use; callers that hand it to several goroutines must serialize
// access themselves.
type Context struct {
	sys     *System
	self    ActorID
	msg     Message
	gas     uint64
	inbox   *queue[Reply]
	pending map[MessageID]struct{}
}

func newContext(s *System, self ActorID, msg Message) *Context {
	return &Context{
		sys:     s,
		self:    self,
		msg:     msg,
		gas:     msg.Gas,
		inbox:   newQueue[Reply](),
		pending: make(map[MessageID]struct{}),
	}
}

// Self returns the id of the handling actor.
func (c *Context) Self() ActorID { return c.self }

// Source returns the sender of the message being handled.
func (c *Context) Source() ActorID { return c.msg.Source }

// Payload returns the message payload.
func (c *Context) Payload() []byte { return c.msg.Payload }

// Value returns the value attached to the message.
func (c *Context) Value() uint64 { return c.msg.Value }

// Message returns the full envelope.
func (c *Context) Message() Message { return c.msg }

// Ctx is canceled when the system shuts down.
func (c *Context) Ctx() context.Context { return c.sys.ctx }

// GasAvailable returns the gas left for send-for-reply calls.
func (c *Context) GasAvailable() uint64 { return c.gas }

// Send delivers payload to `to` without expecting a reply. It costs no gas.
func (c *Context) Send(to ActorID, payload []byte, value uint64) error {
	_, err := c.sys.post(Message{
		Source:  c.self,
		Dest:    to,
		Payload: payload,
		Value:   value,
	}, nil)
	return err
}

// SendForReply delivers payload to `to`, reserving gas from this context's
// budget and forwarding it as the target's budget. The reply is delivered to
// NextReply, tagged with the returned id.
func (c *Context) SendForReply(to ActorID, payload []byte, gas, value uint64) (MessageID, error) {
	if gas > c.gas {
		return 0, fmt.Errorf("send to %s: reserve %d gas, %d available: %w", to, gas, c.gas, ErrNotEnoughGas)
	}

	id, err := c.sys.post(Message{
		Source:        c.self,
		Dest:          to,
		Payload:       payload,
		Gas:           gas,
		Value:         value,
		ReplyExpected: true,
	}, c.inbox)
	if err != nil {
		return 0, err
	}

	c.gas -= gas
	c.pending[id] = struct{}{}
	return id, nil
}

// NextReply blocks until a reply to one of this context's sends arrives.
func (c *Context) NextReply(ctx context.Context) (Reply, error) {
	reply, err := c.inbox.Pop(ctx)
	if err != nil {
		return Reply{}, err
	}
	delete(c.pending, reply.To)
	return reply, nil
}

// finish drops correlation entries for sends that never got an answer and
// closes the inbox. Late replies are discarded by System.route.
func (c *Context) finish() {
	for id := range c.pending {
		c.sys.forget(id)
	}
	c.inbox.Close()
}
