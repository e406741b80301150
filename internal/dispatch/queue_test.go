package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/ffs/internal/event"
)

func TestNewQueue_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultQueueCapacity, NewQueue(0).Cap())
	assert.Equal(t, 7, NewQueue(7).Cap())
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(3)
	ctx := context.Background()

	for _, path := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(ctx, event.Ok(event.New(event.Create{}, path))))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		r, ok := q.Pop(ctx)
		require.True(t, ok)
		assert.Equal(t, []string{want}, r.Notification.Paths)
	}
}

func TestQueue_PushBlocksWhenFull(t *testing.T) {
	q := NewQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, event.Ok(event.New(event.Create{}, "first"))))

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(ctx, event.Ok(event.New(event.Create{}, "second")))
	}()

	select {
	case <-pushed:
		t.Fatal("Push should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	r, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"first"}, r.Notification.Paths)

	select {
	case err := <-pushed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for blocked Push")
	}

	r, ok = q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"second"}, r.Notification.Paths)
}

func TestQueue_PushHonorsContext(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Push(context.Background(), event.Failed(errors.New("x"))))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Push(ctx, event.Failed(errors.New("y")))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_CloseDrainsThenEnds(t *testing.T) {
	q := NewQueue(4)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, event.Ok(event.New(event.Create{}, "a"))))

	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Push(ctx, event.Ok(event.New(event.Create{}, "b"))), ErrQueueClosed)

	r, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, r.Notification.Paths)

	_, ok = q.Pop(ctx)
	assert.False(t, ok)
}

func TestQueue_PopHonorsContext(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Pop(ctx)
	assert.False(t, ok)
}

func TestQueue_CloseDoesNotWaitForBlockedPush(t *testing.T) {
	q := NewQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, event.Ok(event.New(event.Create{}, "first"))))

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(ctx, event.Ok(event.New(event.Create{}, "second")))
	}()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked behind a full-queue Push")
	}

	select {
	case err := <-pushed:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for blocked Push")
	}

	r, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"first"}, r.Notification.Paths)

	_, ok = q.Pop(ctx)
	assert.False(t, ok)
}

func TestQueue_ConcurrentPushAndClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		q := NewQueue(4)
		ctx := context.Background()

		accepted := make(chan int, 1)
		go func() {
			n := 0
			for {
				if err := q.Push(ctx, event.Ok(event.New(event.Create{}, "p"))); err != nil {
					accepted <- n
					return
				}
				n++
			}
		}()

		popped := 0
		for popped < 10 {
			_, ok := q.Pop(ctx)
			require.True(t, ok)
			popped++
		}
		q.Close()
		for {
			if _, ok := q.Pop(ctx); !ok {
				break
			}
			popped++
		}

		assert.Equal(t, <-accepted, popped, "every accepted result is popped")
	}
}
