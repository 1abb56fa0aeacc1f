package partitions

import (
	"context"
	"github.com/notargets/PDData/comm"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"testing"
)

// TestImporter_CyclicToBlock moves 9 points from a cyclic distribution to a
// block distribution with one ghost per rank
func TestImporter_CyclicToBlock(t *testing.T) {
	comm.RunInTest(t, 3, func(ctx context.Context, c *comm.Comm) error {
		r := c.Rank()
		source, err := NewMap(ctx, c, []int{r, r + 3, r + 6}, 1)
		if err != nil {
			return err
		}
		target, err := NewMap(ctx, c, []int{3 * r, 3*r + 1, 3*r + 2, (3*r + 3) % 9}, 1)
		if err != nil {
			return err
		}

		imp, err := NewImporter(ctx, target, source)
		if err != nil {
			return err
		}
		assert.NoError(t, imp.Verify())
		assert.Equal(t, 4, imp.NumPermuteIDs()+imp.NumRemoteIDs())

		src := NewMultiVector[float64](source, 2)
		for lid, gid := range source.MyGlobalElements() {
			src.Vector(0)[lid] = float64(10 * gid)
			src.Vector(1)[lid] = float64(-gid)
		}
		dst := NewMultiVector[float64](target, 2)
		if err := dst.Import(ctx, src, imp); err != nil {
			return err
		}

		for lid, gid := range target.MyGlobalElements() {
			assert.Equal(t, float64(10*gid), dst.Vector(0)[lid], "gid %d", gid)
			assert.Equal(t, float64(-gid), dst.Vector(1)[lid], "gid %d", gid)
		}
		return nil
	})
}

func TestImporter_VariableSize(t *testing.T) {
	comm.RunInTest(t, 2, func(ctx context.Context, c *comm.Comm) error {
		size := func(gid int) int { return gid%3 + 1 }

		// Rank 0 holds 0..3, rank 1 holds 4..7; the target reverses that
		sourceGIDs := []int{4 * c.Rank(), 4*c.Rank() + 1, 4*c.Rank() + 2, 4*c.Rank() + 3}
		targetGIDs := []int{4 * (1 - c.Rank()), 4*(1-c.Rank()) + 3}
		sizesOf := func(gids []int) []int {
			sizes := make([]int, len(gids))
			for i, gid := range gids {
				sizes[i] = size(gid)
			}
			return sizes
		}

		source, err := NewVariableMap(ctx, c, sourceGIDs, sizesOf(sourceGIDs))
		if err != nil {
			return err
		}
		target, err := NewVariableMap(ctx, c, targetGIDs, sizesOf(targetGIDs))
		if err != nil {
			return err
		}
		imp, err := NewImporter(ctx, target, source)
		if err != nil {
			return err
		}
		assert.Equal(t, 0, imp.NumPermuteIDs())
		assert.Equal(t, 2, imp.NumRemoteIDs())
		assert.Equal(t, 2, imp.NumExportIDs())

		src := NewMultiVector[int](source, 1)
		for lid, gid := range sourceGIDs {
			values := src.ElementValues(0, lid)
			for k := range values {
				values[k] = 100*gid + k
			}
		}
		dst := NewMultiVector[int](target, 1)
		if err := dst.Import(ctx, src, imp); err != nil {
			return err
		}

		for lid, gid := range targetGIDs {
			values := dst.ElementValues(0, lid)
			assert.Len(t, values, size(gid))
			for k, v := range values {
				assert.Equal(t, 100*gid+k, v)
			}
		}
		return nil
	})
}

// TestImporter_LowestRankWins checks that a global ID held by several source
// ranks is served by the lowest of them
func TestImporter_LowestRankWins(t *testing.T) {
	comm.RunInTest(t, 3, func(ctx context.Context, c *comm.Comm) error {
		var sourceGIDs, targetGIDs []int
		switch c.Rank() {
		case 0, 1:
			sourceGIDs = []int{5}
		case 2:
			targetGIDs = []int{5}
		}
		source, err := NewMap(ctx, c, sourceGIDs, 1)
		if err != nil {
			return err
		}
		target, err := NewMap(ctx, c, targetGIDs, 1)
		if err != nil {
			return err
		}
		imp, err := NewImporter(ctx, target, source)
		if err != nil {
			return err
		}

		src := NewMultiVector[float64](source, 1)
		src.PutScalar(float64(c.Rank() + 1))
		dst := NewMultiVector[float64](target, 1)
		if err := dst.Import(ctx, src, imp); err != nil {
			return err
		}
		if c.Rank() == 2 {
			assert.Equal(t, []float64{1}, dst.Vector(0))
		}
		return nil
	})
}

func TestImporter_Failures(t *testing.T) {
	t.Run("unknown global id", func(t *testing.T) {
		comm.RunInTest(t, 2, func(ctx context.Context, c *comm.Comm) error {
			source, err := NewMap(ctx, c, []int{c.Rank()}, 1)
			if err != nil {
				return err
			}
			targetGIDs := []int{c.Rank()}
			if c.Rank() == 1 {
				targetGIDs = append(targetGIDs, 99)
			}
			target, err := NewMap(ctx, c, targetGIDs, 1)
			if err != nil {
				return err
			}

			_, err = NewImporter(ctx, target, source)
			if c.Rank() == 1 {
				assert.True(t, errors.Is(err, ErrLookup), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			return nil
		})
	})

	t.Run("element size mismatch", func(t *testing.T) {
		comm.RunInTest(t, 2, func(ctx context.Context, c *comm.Comm) error {
			source, err := NewMap(ctx, c, []int{c.Rank()}, 2)
			if err != nil {
				return err
			}
			target, err := NewMap(ctx, c, []int{1 - c.Rank()}, 3)
			if err != nil {
				return err
			}
			_, err = NewImporter(ctx, target, source)
			assert.True(t, errors.Is(err, ErrMapMismatch), "got %v", err)
			return nil
		})
	})

	t.Run("buffer on the wrong map", func(t *testing.T) {
		comm.RunInTest(t, 1, func(ctx context.Context, c *comm.Comm) error {
			a, err := NewMap(ctx, c, []int{0, 1}, 1)
			if err != nil {
				return err
			}
			b, err := NewMap(ctx, c, []int{1, 0}, 1)
			if err != nil {
				return err
			}
			imp, err := NewImporter(ctx, b, a)
			if err != nil {
				return err
			}
			err = NewMultiVector[float64](a, 1).Import(ctx, NewMultiVector[float64](a, 1), imp)
			assert.True(t, errors.Is(err, ErrMapMismatch))
			return nil
		})
	})
}
