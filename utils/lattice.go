package utils

import (
	"context"
	"fmt"
	"github.com/notargets/PDData/comm"
	"github.com/notargets/PDData/partitions"
	"gonum.org/v1/gonum/floats"
)

// Lattice is a regular grid of NX x NY x NZ points. Point (i, j, k) has global
// ID i + NX*(j + NY*k).
type Lattice struct {
	NX, NY, NZ int
	Spacing    float64
}

// Validate checks the grid dimensions.
func (l Lattice) Validate() error {
	if l.NX < 1 || l.NY < 1 || l.NZ < 1 {
		return fmt.Errorf("invalid lattice dimensions %dx%dx%d", l.NX, l.NY, l.NZ)
	}
	if l.Spacing <= 0 {
		return fmt.Errorf("invalid lattice spacing %g", l.Spacing)
	}
	return nil
}

// NumPoints returns the number of grid points.
func (l Lattice) NumPoints() int { return l.NX * l.NY * l.NZ }

// Coordinates returns the position of point gid.
func (l Lattice) Coordinates(gid int) [3]float64 {
	i := gid % l.NX
	j := (gid / l.NX) % l.NY
	k := gid / (l.NX * l.NY)
	return [3]float64{float64(i) * l.Spacing, float64(j) * l.Spacing, float64(k) * l.Spacing}
}

// Positions builds the coordinates of gids on a map of three points per
// element. It is collective over c.
func (l Lattice) Positions(ctx context.Context, c *comm.Comm, gids []int) (*partitions.MultiVector[float64], error) {
	m, err := partitions.NewMap(ctx, c, gids, 3)
	if err != nil {
		return nil, err
	}
	x := partitions.NewMultiVector[float64](m, 1)
	for lid, gid := range gids {
		xyz := l.Coordinates(gid)
		copy(x.ElementValues(0, lid), xyz[:])
	}
	return x, nil
}

// Neighbors returns, by brute force and in ascending order, every other point
// within radius of gid.
func (l Lattice) Neighbors(gid int, radius float64) []int {
	x := l.Coordinates(gid)
	var out []int
	for other := range l.NumPoints() {
		y := l.Coordinates(other)
		if other != gid && floats.Distance(x[:], y[:], 2) <= radius {
			out = append(out, other)
		}
	}
	return out
}
