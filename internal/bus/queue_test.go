package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PushPop(t *testing.T) {
	q := newQueue[Message]()

	ok := q.Push(Message{ID: 1})
	require.True(t, ok, "push should succeed")

	got, ok := q.TryPop()
	require.True(t, ok, "pop should succeed")
	assert.Equal(t, MessageID(1), got.ID)
}

func TestQueue_FIFO(t *testing.T) {
	q := newQueue[Message]()

	for i := 1; i <= 3; i++ {
		q.Push(Message{ID: MessageID(i)})
	}

	for i := 1; i <= 3; i++ {
		got, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, MessageID(i), got.ID)
	}
}

func TestQueue_TryPop_Empty(t *testing.T) {
	q := newQueue[Reply]()

	_, ok := q.TryPop()
	assert.False(t, ok, "pop from empty queue should return false")
}

func TestQueue_Pop_BlocksUntilAvailable(t *testing.T) {
	q := newQueue[Reply]()

	done := make(chan Reply)
	go func() {
		r, err := q.Pop(context.Background())
		if err == nil {
			done <- r
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(Reply{To: 42})

	select {
	case r := <-done:
		assert.Equal(t, MessageID(42), r.To)
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock")
	}
}

func TestQueue_Close_UnblocksPop(t *testing.T) {
	q := newQueue[Reply]()

	done := make(chan error)
	go func() {
		_, err := q.Pop(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock after close")
	}
}

func TestQueue_Close_DrainsRemaining(t *testing.T) {
	q := newQueue[Reply]()
	q.Push(Reply{To: 1})
	q.Close()

	r, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MessageID(1), r.To)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_Pop_ContextCanceled(t *testing.T) {
	q := newQueue[Reply]()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_Push_AfterClose(t *testing.T) {
	q := newQueue[Message]()
	q.Close()

	assert.False(t, q.Push(Message{ID: 7}), "push after close should return false")
}

func TestQueue_Len(t *testing.T) {
	q := newQueue[Message]()
	assert.Equal(t, 0, q.Len())

	q.Push(Message{ID: 1})
	q.Push(Message{ID: 2})
	assert.Equal(t, 2, q.Len())

	q.TryPop()
	assert.Equal(t, 1, q.Len())
}

func TestQueue_ThreadSafe(t *testing.T) {
	q := newQueue[Message]()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(Message{})
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := 0
	for received < producers*perProducer {
		_, err := q.Pop(ctx)
		require.NoError(t, err, "received %d messages", received)
		received++
	}

	wg.Wait()
	assert.Equal(t, 0, q.Len())
}
