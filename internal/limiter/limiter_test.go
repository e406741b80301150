package limiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MinimumCapacity(t *testing.T) {
	assert.Equal(t, 1, New(0).Capacity())
	assert.Equal(t, 1, New(-3).Capacity())
	assert.Equal(t, 4, New(4).Capacity())
}

func TestLimiter_NeverExceedsCapacity(t *testing.T) {
	const capacity = 4
	const tasks = 20

	l := New(capacity)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		permit, err := l.Acquire(ctx)
		require.NoError(t, err)
		require.LessOrEqual(t, l.Outstanding(), capacity)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer permit.Release()
			time.Sleep(10 * time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, l.Outstanding())
	assert.LessOrEqual(t, l.HighWater(), capacity)
	assert.Greater(t, l.HighWater(), 0)
}

func TestLimiter_AcquireBlocksUntilRelease(t *testing.T) {
	l := New(1)
	first, err := l.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan *Permit)
	go func() {
		p, err := l.Acquire(context.Background())
		if err == nil {
			acquired <- p
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire should block while the only permit is held")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()

	select {
	case p := <-acquired:
		p.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for Acquire after Release")
	}
}

func TestLimiter_AcquireHonorsContext(t *testing.T) {
	l := New(1)
	held, ok := l.TryAcquire()
	require.True(t, ok)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p, err := l.Acquire(ctx)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.Outstanding())
}

func TestPermit_ReleaseIsIdempotent(t *testing.T) {
	l := New(2)
	p, err := l.Acquire(context.Background())
	require.NoError(t, err)

	p.Release()
	p.Release()
	assert.Equal(t, 0, l.Outstanding())

	// Both slots must still be available exactly once each.
	a, ok := l.TryAcquire()
	require.True(t, ok)
	b, ok := l.TryAcquire()
	require.True(t, ok)
	_, ok = l.TryAcquire()
	assert.False(t, ok)

	a.Release()
	b.Release()

	var nilPermit *Permit
	nilPermit.Release()
}
