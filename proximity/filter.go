package proximity

import (
	"gonum.org/v1/gonum/floats"
)

// BondFilter decides whether two points found within the search radius are
// bonded. a and b are the points' coordinates.
type BondFilter interface {
	Admit(gidA int, a []float64, gidB int, b []float64) bool
}

// DefaultFilter admits every pair within the radius. A point is its own
// neighbor only when IncludeSelf is set.
type DefaultFilter struct {
	IncludeSelf bool
}

// Admit implements BondFilter.
func (f DefaultFilter) Admit(gidA int, _ []float64, gidB int, _ []float64) bool {
	return f.IncludeSelf || gidA != gidB
}

// FinitePlane is a rectangle in space: corner LowerLeft, edge directions
// Bottom (unit) and Normal x Bottom, edge lengths Length and Width.
type FinitePlane struct {
	Normal    [3]float64
	LowerLeft [3]float64
	Bottom    [3]float64
	Length    float64
	Width     float64
}

// Intersects reports whether the segment from a to b crosses the rectangle.
func (p FinitePlane) Intersects(a, b []float64) bool {
	n, r0, ub := p.Normal[:], p.LowerLeft[:], p.Bottom[:]

	ab := make([]float64, 3)
	floats.SubTo(ab, b, a)
	denom := floats.Dot(n, ab)
	if denom == 0 {
		// Parallel to the plane
		return false
	}

	toPlane := make([]float64, 3)
	floats.SubTo(toPlane, r0, a)
	t := floats.Dot(n, toPlane) / denom
	if t < 0 || t > 1 {
		return false
	}

	// Hit point relative to the corner
	hit := make([]float64, 3)
	floats.AddScaledTo(hit, a, t, ab)
	floats.Sub(hit, r0)

	ua := cross(n, ub)
	along, across := floats.Dot(hit, ub), floats.Dot(hit, ua)
	return along >= 0 && along <= p.Length && across >= 0 && across <= p.Width
}

func cross(u, v []float64) []float64 {
	return []float64{
		u[1]*v[2] - u[2]*v[1],
		u[2]*v[0] - u[0]*v[2],
		u[0]*v[1] - u[1]*v[0],
	}
}

// FinitePlaneFilter cuts every bond crossing Plane, modelling a pre-existing
// crack.
type FinitePlaneFilter struct {
	Plane       FinitePlane
	IncludeSelf bool
}

// Admit implements BondFilter.
func (f FinitePlaneFilter) Admit(gidA int, a []float64, gidB int, b []float64) bool {
	if gidA == gidB {
		return f.IncludeSelf
	}
	return !f.Plane.Intersects(a, b)
}
