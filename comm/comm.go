// Package comm runs a fixed set of ranks inside one process and lets them
// cooperate through collective exchanges. Every rank of a World must make the
// same sequence of collective calls; a rank that skips one blocks its peers
// until the world context is cancelled.
package comm

import (
	"context"
	"fmt"
	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// World is the set of ranks taking part in a computation.
type World struct {
	size int
}

// NewWorld creates a world of size ranks.
func NewWorld(size int) (*World, error) {
	if size < 1 {
		return nil, errors.Errorf("world size must be positive, got %d", size)
	}
	return &World{size: size}, nil
}

// Size returns the number of ranks.
func (w *World) Size() int { return w.size }

// Run executes fn once per rank, each on its own goroutine, and waits for all
// of them. The first rank returning an error cancels the context handed to the
// others, which unblocks any collective they are waiting in.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, c *Comm) error) error {
	// links[src][dst] carries frames from src to dst in call order
	links := make([][]chan []byte, w.size)
	for src := range links {
		links[src] = make([]chan []byte, w.size)
		for dst := range links[src] {
			links[src][dst] = make(chan []byte, 1)
		}
	}

	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for rank := range w.size {
			c := &Comm{rank: rank, size: w.size, links: links}
			spawn(fmt.Sprintf("rank-%02d", rank), parallel.Continue, func(ctx context.Context) error {
				return fn(ctx, c)
			})
		}
		return nil
	})
}

// Comm is one rank's handle on the world.
type Comm struct {
	rank  int
	size  int
	links [][]chan []byte
}

// Rank returns the rank of the caller.
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of ranks in the world.
func (c *Comm) Size() int { return c.size }

// exchange sends frames[dst] to every rank and returns the frame received from
// every rank, indexed by source.
func (c *Comm) exchange(ctx context.Context, frames [][]byte) ([][]byte, error) {
	for i := range c.size {
		dst := (c.rank + i) % c.size
		select {
		case c.links[c.rank][dst] <- frames[dst]:
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		}
	}

	recv := make([][]byte, c.size)
	for i := range c.size {
		src := (c.rank - i + c.size) % c.size
		select {
		case recv[src] = <-c.links[src][c.rank]:
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		}
	}
	return recv, nil
}

// AllToAllV sends send[dst] to each rank dst and returns the values received
// from each source rank. Values travel as encoded frames, so no slice is ever
// shared between ranks.
func AllToAllV[T any](ctx context.Context, c *Comm, send [][]T) ([][]T, error) {
	if len(send) != c.size {
		return nil, errors.Errorf("rank %d: %d send buffers for a world of %d ranks", c.rank, len(send), c.size)
	}

	frames := make([][]byte, c.size)
	for dst, values := range send {
		b, err := msgpack.Marshal(values)
		if err != nil {
			return nil, errors.Wrapf(err, "rank %d: encoding frame for rank %d", c.rank, dst)
		}
		frames[dst] = b
	}

	recvFrames, err := c.exchange(ctx, frames)
	if err != nil {
		return nil, err
	}

	recv := make([][]T, c.size)
	for src, b := range recvFrames {
		if err := msgpack.Unmarshal(b, &recv[src]); err != nil {
			return nil, errors.Wrapf(err, "rank %d: decoding frame from rank %d", c.rank, src)
		}
	}
	return recv, nil
}

// AllGather returns every rank's values, indexed by rank.
func AllGather[T any](ctx context.Context, c *Comm, values []T) ([][]T, error) {
	send := make([][]T, c.size)
	for dst := range send {
		send[dst] = values
	}
	return AllToAllV(ctx, c, send)
}

// SumInt returns the sum of v over all ranks.
func SumInt(ctx context.Context, c *Comm, v int) (int, error) {
	all, err := AllGather(ctx, c, []int{v})
	if err != nil {
		return 0, err
	}
	var sum int
	for _, x := range all {
		sum += x[0]
	}
	return sum, nil
}

// MaxInt returns the largest v over all ranks.
func MaxInt(ctx context.Context, c *Comm, v int) (int, error) {
	all, err := AllGather(ctx, c, []int{v})
	if err != nil {
		return 0, err
	}
	best := all[0][0]
	for _, x := range all[1:] {
		best = max(best, x[0])
	}
	return best, nil
}

// Barrier returns once every rank has entered it.
func Barrier(ctx context.Context, c *Comm) error {
	_, err := AllToAllV(ctx, c, make([][]int, c.size))
	return err
}
