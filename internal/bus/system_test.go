package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSystem(t *testing.T, ids ...ActorID) *System {
	t.Helper()
	s := NewSystem(WithIDGenerator(NewFixedGenerator(ids...)))
	t.Cleanup(func() { s.Close() })
	return s
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var echo = HandlerFunc(func(c *Context) ([]byte, error) {
	return c.Payload(), nil
})

func TestSystem_CallEcho(t *testing.T) {
	s := newTestSystem(t, "echo")

	id, err := s.Spawn(echo)
	require.NoError(t, err)
	assert.Equal(t, ActorID("echo"), id)

	reply, err := s.Call(testCtx(t), "", id, []byte("hello"), 0, 0)
	require.NoError(t, err)
	assert.Nil(t, reply.Err)
	assert.Equal(t, []byte("hello"), reply.Payload)
	assert.Equal(t, id, reply.From)
}

func TestSystem_CallUnknownActor(t *testing.T) {
	s := newTestSystem(t)

	_, err := s.Call(testCtx(t), "", "nobody", []byte("x"), 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownActor)
}

func TestSystem_HandlerErrorBecomesExecutionError(t *testing.T) {
	s := newTestSystem(t)
	require.NoError(t, s.SpawnAt("broken", HandlerFunc(func(c *Context) ([]byte, error) {
		return []byte("ignored"), errors.New("boom")
	})))

	reply, err := s.Call(testCtx(t), "", "broken", nil, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, reply.Err)
	assert.Equal(t, ActorID("broken"), reply.Err.Actor)
	assert.Equal(t, "boom", reply.Err.Reason)
	assert.Nil(t, reply.Payload)
	assert.True(t, IsExecutionError(reply.Err))
}

func TestSystem_HandlerPanicBecomesExecutionError(t *testing.T) {
	s := newTestSystem(t)
	require.NoError(t, s.SpawnAt("panicky", HandlerFunc(func(c *Context) ([]byte, error) {
		panic("kaput")
	})))

	reply, err := s.Call(testCtx(t), "", "panicky", nil, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, reply.Err)
	assert.Contains(t, reply.Err.Reason, "kaput")

	// The actor survives its own panic.
	reply, err = s.Call(testCtx(t), "", "panicky", nil, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, reply.Err)
}

func TestSystem_SpawnAtDuplicate(t *testing.T) {
	s := newTestSystem(t)
	require.NoError(t, s.SpawnAt("a", echo))

	err := s.SpawnAt("a", echo)
	assert.ErrorIs(t, err, ErrActorExists)
}

func TestSystem_SourceIsCaller(t *testing.T) {
	s := newTestSystem(t)
	require.NoError(t, s.SpawnAt("whoami", HandlerFunc(func(c *Context) ([]byte, error) {
		return []byte(c.Source()), nil
	})))

	reply, err := s.Call(testCtx(t), "bus-1", "whoami", nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "bus-1", string(reply.Payload))
}

func TestSystem_SendIsFireAndForget(t *testing.T) {
	s := newTestSystem(t)

	got := make(chan string, 1)
	require.NoError(t, s.SpawnAt("sink", HandlerFunc(func(c *Context) ([]byte, error) {
		got <- string(c.Payload())
		return nil, nil
	})))

	require.NoError(t, s.Send("", "sink", []byte("note"), 0, 0))

	select {
	case p := <-got:
		assert.Equal(t, "note", p)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

// relay forwards its payload to "echo" and returns echo's answer.
var relay = HandlerFunc(func(c *Context) ([]byte, error) {
	id, err := c.SendForReply("echo", c.Payload(), 10, 0)
	if err != nil {
		return nil, err
	}
	reply, err := c.NextReply(c.Ctx())
	if err != nil {
		return nil, err
	}
	if reply.To != id {
		return nil, errors.New("reply correlated to the wrong request")
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return reply.Payload, nil
})

func TestContext_SendForReply(t *testing.T) {
	s := newTestSystem(t)
	require.NoError(t, s.SpawnAt("echo", echo))
	require.NoError(t, s.SpawnAt("relay", relay))

	reply, err := s.Call(testCtx(t), "", "relay", []byte("via relay"), 100, 0)
	require.NoError(t, err)
	require.Nil(t, reply.Err)
	assert.Equal(t, "via relay", string(reply.Payload))
}

func TestContext_SendForReply_NotEnoughGas(t *testing.T) {
	s := newTestSystem(t)
	require.NoError(t, s.SpawnAt("echo", echo))
	require.NoError(t, s.SpawnAt("relay", relay))

	reply, err := s.Call(testCtx(t), "", "relay", []byte("x"), 5, 0)
	require.NoError(t, err)
	require.NotNil(t, reply.Err)
	assert.Contains(t, reply.Err.Reason, ErrNotEnoughGas.Error())
}

func TestContext_GasIsReserved(t *testing.T) {
	s := newTestSystem(t)
	require.NoError(t, s.SpawnAt("echo", echo))

	var before, after uint64
	require.NoError(t, s.SpawnAt("spender", HandlerFunc(func(c *Context) ([]byte, error) {
		before = c.GasAvailable()
		if _, err := c.SendForReply("echo", nil, 30, 0); err != nil {
			return nil, err
		}
		after = c.GasAvailable()
		_, err := c.NextReply(c.Ctx())
		return nil, err
	})))

	reply, err := s.Call(testCtx(t), "", "spender", nil, 100, 0)
	require.NoError(t, err)
	require.Nil(t, reply.Err)
	assert.Equal(t, uint64(100), before)
	assert.Equal(t, uint64(70), after)
}

func TestSystem_DeliveryRate(t *testing.T) {
	s := newTestSystem(t)
	require.NoError(t, s.SpawnAt("slow", echo, WithDeliveryRate(1000, 1)))

	for i := 0; i < 3; i++ {
		reply, err := s.Call(testCtx(t), "", "slow", []byte("x"), 0, 0)
		require.NoError(t, err)
		assert.Equal(t, "x", string(reply.Payload))
	}
}

func TestSystem_Close(t *testing.T) {
	s := NewSystem()
	require.NoError(t, s.SpawnAt("echo", echo))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	err := s.Send("", "echo", nil, 0, 0)
	assert.ErrorIs(t, err, ErrClosed)

	err = s.SpawnAt("late", echo)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFixedGenerator_Exhausted(t *testing.T) {
	g := NewFixedGenerator("a")
	assert.Equal(t, ActorID("a"), g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.NotEqual(t, a, b)
	assert.Len(t, string(a), 36)
}

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, MessageID(0), c.Current())
	assert.Equal(t, MessageID(1), c.Next())
	assert.Equal(t, MessageID(2), c.Next())
	assert.Equal(t, MessageID(2), c.Current())
}
