// Package proximity builds per-point neighbor lists from coordinates and
// carries them across decomposition changes.
package proximity

import (
	"github.com/notargets/PDData/partitions"
	"github.com/pkg/errors"
)

// NeighborList is the flat neighbor encoding of the owned points of one rank:
// for each owned point, in owned-map order, the neighbor count followed by that
// many local indices into the overlap map.
type NeighborList []int

// NewNeighborList encodes one overlap-index slice per owned point.
func NewNeighborList(neighbors [][]int) NeighborList {
	var list NeighborList
	for _, n := range neighbors {
		list = append(list, len(n))
		list = append(list, n...)
	}
	return list
}

// ForEach calls fn with every point's neighbor references, in order. The
// slice passed to fn aliases the list.
func (l NeighborList) ForEach(fn func(point int, neighbors []int)) error {
	point := 0
	for i := 0; i < len(l); point++ {
		n := l[i]
		if n < 0 || i+1+n > len(l) {
			return errors.Errorf("point %d: count %d at offset %d overruns a list of %d", point, n, i, len(l))
		}
		fn(point, l[i+1:i+1+n])
		i += 1 + n
	}
	return nil
}

// NumPoints returns the number of encoded points.
func (l NeighborList) NumPoints() int {
	n := 0
	_ = l.ForEach(func(int, []int) { n++ })
	return n
}

// Counts returns the neighbor count of every point.
func (l NeighborList) Counts() []int {
	var counts []int
	_ = l.ForEach(func(_ int, neighbors []int) { counts = append(counts, len(neighbors)) })
	return counts
}

// Neighbors returns the references of one point, nil if the list is shorter.
func (l NeighborList) Neighbors(point int) []int {
	var found []int
	_ = l.ForEach(func(p int, neighbors []int) {
		if p == point {
			found = neighbors
		}
	})
	return found
}

// Validate checks that the list encodes numOwned points and that every
// reference is a valid overlap index.
func (l NeighborList) Validate(numOwned, numOverlap int) error {
	var refErr error
	points := 0
	err := l.ForEach(func(point int, neighbors []int) {
		points++
		for _, ref := range neighbors {
			if (ref < 0 || ref >= numOverlap) && refErr == nil {
				refErr = errors.Wrapf(partitions.ErrLookup, "point %d references overlap index %d of %d",
					point, ref, numOverlap)
			}
		}
	})
	switch {
	case err != nil:
		return err
	case refErr != nil:
		return refErr
	case points != numOwned:
		return errors.Wrapf(partitions.ErrMapMismatch, "list encodes %d points, %d are owned", points, numOwned)
	}
	return nil
}

// GlobalNeighbors resolves the references of every point to global IDs.
func (l NeighborList) GlobalNeighbors(overlap *partitions.Map) ([][]int, error) {
	var out [][]int
	var lookupErr error
	err := l.ForEach(func(point int, neighbors []int) {
		gids := make([]int, len(neighbors))
		for j, ref := range neighbors {
			gids[j] = overlap.GID(ref)
			if gids[j] < 0 && lookupErr == nil {
				lookupErr = errors.Wrapf(partitions.ErrLookup, "point %d references overlap index %d", point, ref)
			}
		}
		out = append(out, gids)
	})
	if err != nil {
		return nil, err
	}
	return out, lookupErr
}
