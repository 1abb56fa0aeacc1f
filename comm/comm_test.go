package comm

import (
	"context"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestNewWorld_RejectsEmpty(t *testing.T) {
	_, err := NewWorld(0)
	require.Error(t, err)
}

func TestAllToAllV_RoutesBySource(t *testing.T) {
	const size = 3
	received := make([][][]int, size)

	RunInTest(t, size, func(ctx context.Context, c *Comm) error {
		// rank r sends r*10+dst repeated dst+1 times to rank dst
		send := make([][]int, c.Size())
		for dst := range send {
			for range dst + 1 {
				send[dst] = append(send[dst], c.Rank()*10+dst)
			}
		}
		recv, err := AllToAllV(ctx, c, send)
		if err != nil {
			return err
		}
		received[c.Rank()] = recv
		return nil
	})

	for rank := range size {
		for src := range size {
			expected := make([]int, 0, rank+1)
			for range rank + 1 {
				expected = append(expected, src*10+rank)
			}
			assert.Equal(t, expected, received[rank][src], "rank %d from %d", rank, src)
		}
	}
}

func TestAllToAllV_EmptyFrames(t *testing.T) {
	RunInTest(t, 2, func(ctx context.Context, c *Comm) error {
		recv, err := AllToAllV(ctx, c, make([][]float64, c.Size()))
		if err != nil {
			return err
		}
		for src, values := range recv {
			if len(values) != 0 {
				return errors.Errorf("rank %d got %d values from %d", c.Rank(), len(values), src)
			}
		}
		return nil
	})
}

func TestCollectives_Reductions(t *testing.T) {
	const size = 4
	sums := make([]int, size)
	maxes := make([]int, size)
	gathered := make([][][]float64, size)

	RunInTest(t, size, func(ctx context.Context, c *Comm) error {
		var err error
		if sums[c.Rank()], err = SumInt(ctx, c, c.Rank()+1); err != nil {
			return err
		}
		if maxes[c.Rank()], err = MaxInt(ctx, c, 7-c.Rank()); err != nil {
			return err
		}
		if err := Barrier(ctx, c); err != nil {
			return err
		}
		gathered[c.Rank()], err = AllGather(ctx, c, []float64{float64(c.Rank()) / 2})
		return err
	})

	for rank := range size {
		assert.Equal(t, 10, sums[rank])
		assert.Equal(t, 7, maxes[rank])
		assert.Equal(t, [][]float64{{0}, {0.5}, {1}, {1.5}}, gathered[rank])
	}
}

func TestAllToAllV_WrongBufferCount(t *testing.T) {
	world, err := NewWorld(2)
	require.NoError(t, err)

	err = world.Run(NewTestContext(t), func(ctx context.Context, c *Comm) error {
		_, err := AllToAllV(ctx, c, make([][]int, 1))
		return err
	})
	require.Error(t, err)
}

func TestRun_FailingRankReleasesPeers(t *testing.T) {
	world, err := NewWorld(3)
	require.NoError(t, err)

	errFailed := errors.New("rank failed")
	err = world.Run(NewTestContext(t), func(ctx context.Context, c *Comm) error {
		if c.Rank() == 1 {
			return errFailed
		}
		// the remaining ranks wait in a collective rank 1 never joins
		return Barrier(ctx, c)
	})
	require.Error(t, err)
}
