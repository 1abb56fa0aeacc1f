package proximity

import (
	"github.com/notargets/PDData/partitions"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestNeighborList(t *testing.T) {
	requireT := require.New(t)

	list := NewNeighborList([][]int{{1, 2}, {}, {0}})
	requireT.Equal(NeighborList{2, 1, 2, 0, 1, 0}, list)
	requireT.Equal(3, list.NumPoints())
	requireT.Equal([]int{2, 0, 1}, list.Counts())
	requireT.Equal([]int{0}, list.Neighbors(2))
	requireT.Empty(list.Neighbors(1))
	requireT.Nil(list.Neighbors(3))

	requireT.NoError(list.Validate(3, 3))
	requireT.True(errors.Is(list.Validate(2, 3), partitions.ErrMapMismatch))
	requireT.True(errors.Is(list.Validate(3, 2), partitions.ErrLookup))
	requireT.Error(NeighborList{3, 1}.Validate(1, 5))
}

func TestFilters(t *testing.T) {
	requireT := require.New(t)

	a, b := []float64{1, 0, 0}, []float64{2, 0, 0}
	requireT.False(DefaultFilter{}.Admit(4, a, 4, a))
	requireT.True(DefaultFilter{IncludeSelf: true}.Admit(4, a, 4, a))
	requireT.True(DefaultFilter{}.Admit(4, a, 5, b))

	// Square patch in the plane x = 1.5 covering y, z in [-1, 1]
	crack := FinitePlaneFilter{Plane: FinitePlane{
		Normal:    [3]float64{1, 0, 0},
		LowerLeft: [3]float64{1.5, -1, -1},
		Bottom:    [3]float64{0, 1, 0},
		Length:    2,
		Width:     2,
	}}
	requireT.False(crack.Admit(1, a, 2, b))
	requireT.False(crack.Admit(2, b, 1, a))
	requireT.True(crack.Admit(0, []float64{0, 0, 0}, 1, a))
	// Passes beside the patch
	requireT.True(crack.Admit(1, []float64{1, 3, 0}, 2, []float64{2, 3, 0}))
	// Parallel to the patch
	requireT.True(crack.Admit(1, []float64{1.5, 0, 0}, 2, []float64{1.5, 0.5, 0}))
	requireT.False(crack.Admit(1, a, 1, a))
}
