// Package limiter bounds how many notification-processing tasks run at once.
package limiter

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter is a counting semaphore that hands out owned permits.
// It is safe for concurrent use and needs no external locking.
type Limiter struct {
	sem         *semaphore.Weighted
	capacity    int64
	outstanding atomic.Int64
	highWater   atomic.Int64
}

// New creates a limiter with capacity n. Values below 1 are raised to 1.
func New(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(n)),
		capacity: int64(n),
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) (*Permit, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return l.grant(), nil
}

// TryAcquire returns a permit if a slot is free right now.
func (l *Limiter) TryAcquire() (*Permit, bool) {
	if !l.sem.TryAcquire(1) {
		return nil, false
	}
	return l.grant(), true
}

func (l *Limiter) grant() *Permit {
	n := l.outstanding.Add(1)
	for {
		high := l.highWater.Load()
		if n <= high || l.highWater.CompareAndSwap(high, n) {
			break
		}
	}
	return &Permit{limiter: l}
}

// Capacity reports the number of slots.
func (l *Limiter) Capacity() int {
	return int(l.capacity)
}

// Outstanding reports how many permits are currently held.
func (l *Limiter) Outstanding() int {
	return int(l.outstanding.Load())
}

// HighWater reports the largest number of permits held at the same time.
func (l *Limiter) HighWater() int {
	return int(l.highWater.Load())
}

// Permit is one held slot. Release returns it; only the first call counts.
type Permit struct {
	limiter *Limiter
	once    sync.Once
}

// Release returns the slot to the limiter.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.limiter.outstanding.Add(-1)
		p.limiter.sem.Release(1)
	})
}
