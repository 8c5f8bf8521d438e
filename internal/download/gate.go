package download

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate caps how many download workers are past admission at once
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
}

// NewGate creates a gate admitting capacity workers. Capacities below one
// are raised to one.
func NewGate(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Acquire blocks until a slot is free or ctx is done
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release frees a slot taken by Acquire
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Capacity returns the number of slots
func (g *Gate) Capacity() int {
	return g.capacity
}
