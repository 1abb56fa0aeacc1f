package partitions

import (
	"context"
	"github.com/notargets/PDData/comm"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"slices"
)

var (
	// ErrZeroElementSize is returned when a map element would hold no points.
	// Variable-size maps cannot represent empty elements; callers filter them
	// out before building the map.
	ErrZeroElementSize = errors.New("map element size must be positive")
	// ErrLookup is returned when a global ID cannot be resolved in a map.
	ErrLookup = errors.New("global id lookup failed")
	// ErrMapMismatch is returned when two maps or buffers that must agree do not.
	ErrMapMismatch = errors.New("map mismatch")
)

// Map assigns the local elements of one rank to global IDs. Every element
// occupies a run of consecutive points; constant-size maps use the same run
// length for every element, variable-size maps carry one length per element.
type Map struct {
	comm *comm.Comm

	gids       []int
	sizes      []int
	firstPoint []int // len(gids)+1; firstPoint[len(gids)] is the point count
	lids       map[int]int
	constSize  int // 0 for variable-size maps
	numGlobal  int
}

// NewMap builds a constant-size map. It is collective over c.
func NewMap(ctx context.Context, c *comm.Comm, gids []int, elementSize int) (*Map, error) {
	if elementSize < 1 {
		return nil, errors.Wrapf(ErrZeroElementSize, "element size %d", elementSize)
	}
	sizes := make([]int, len(gids))
	for i := range sizes {
		sizes[i] = elementSize
	}
	return newMap(ctx, c, gids, sizes, elementSize)
}

// NewVariableMap builds a map whose i-th element holds sizes[i] points. It is
// collective over c.
func NewVariableMap(ctx context.Context, c *comm.Comm, gids, sizes []int) (*Map, error) {
	if len(gids) != len(sizes) {
		return nil, errors.Errorf("%d global ids but %d element sizes", len(gids), len(sizes))
	}
	return newMap(ctx, c, gids, sizes, 0)
}

func newMap(ctx context.Context, c *comm.Comm, gids, sizes []int, constSize int) (*Map, error) {
	m := &Map{
		comm:       c,
		gids:       slices.Clone(gids),
		sizes:      slices.Clone(sizes),
		firstPoint: make([]int, len(gids)+1),
		lids:       make(map[int]int, len(gids)),
		constSize:  constSize,
	}

	// Local errors are reported only after the collective below
	var localErr error
	for lid, gid := range m.gids {
		switch {
		case gid < 0:
			localErr = errors.Errorf("rank %d: negative global id %d", c.Rank(), gid)
		case m.sizes[lid] < 1:
			localErr = errors.Wrapf(ErrZeroElementSize, "rank %d: global id %d has size %d", c.Rank(), gid, m.sizes[lid])
		}
		if _, exists := m.lids[gid]; exists {
			localErr = errors.Errorf("rank %d: global id %d listed twice", c.Rank(), gid)
		}
		if localErr != nil {
			break
		}
		m.lids[gid] = lid
		m.firstPoint[lid+1] = m.firstPoint[lid] + m.sizes[lid]
	}

	numGlobal, err := comm.SumInt(ctx, c, len(m.gids))
	if err != nil {
		return nil, err
	}
	if localErr != nil {
		return nil, localErr
	}
	m.numGlobal = numGlobal
	return m, nil
}

// Comm returns the communicator the map was built on.
func (m *Map) Comm() *comm.Comm { return m.comm }

// NumMyElements returns the number of elements on this rank.
func (m *Map) NumMyElements() int { return len(m.gids) }

// NumMyPoints returns the number of points on this rank.
func (m *Map) NumMyPoints() int { return m.firstPoint[len(m.gids)] }

// NumGlobalElements returns the element count summed over all ranks. Overlap
// maps count every copy.
func (m *Map) NumGlobalElements() int { return m.numGlobal }

// GID returns the global ID of local element lid, or -1 if lid is out of range.
func (m *Map) GID(lid int) int {
	if lid < 0 || lid >= len(m.gids) {
		return -1
	}
	return m.gids[lid]
}

// LID returns the local index of gid on this rank, or -1 if it is not present.
func (m *Map) LID(gid int) int {
	if lid, ok := m.lids[gid]; ok {
		return lid
	}
	return -1
}

// MyGlobalElements returns a copy of the global IDs held on this rank.
func (m *Map) MyGlobalElements() []int { return slices.Clone(m.gids) }

// ElementSize returns the number of points in local element lid.
func (m *Map) ElementSize(lid int) int { return m.sizes[lid] }

// ElementSizes returns a copy of the per-element sizes.
func (m *Map) ElementSizes() []int { return slices.Clone(m.sizes) }

// FirstPointInElement returns the offset of the first point of element lid.
func (m *Map) FirstPointInElement(lid int) int { return m.firstPoint[lid] }

// ConstantElementSize reports the shared element size of a constant-size map.
func (m *Map) ConstantElementSize() (int, bool) { return m.constSize, m.constSize > 0 }

// MaxElementSize returns the largest local element size, 0 for an empty map.
func (m *Map) MaxElementSize() int {
	if len(m.sizes) == 0 {
		return 0
	}
	return lo.Max(m.sizes)
}

// SameAs reports whether both maps hold the same global IDs with the same
// element sizes in the same local order. It is a local check.
func (m *Map) SameAs(other *Map) bool {
	if m == other {
		return true
	}
	if m == nil || other == nil || m.comm != other.comm {
		return false
	}
	return slices.Equal(m.gids, other.gids) && slices.Equal(m.sizes, other.sizes)
}

// OnePointMap returns m itself when every element holds one point, and
// otherwise a map over the same global IDs with one point per element. It is
// collective whenever a new map has to be built.
func OnePointMap(ctx context.Context, m *Map) (*Map, error) {
	if size, ok := m.ConstantElementSize(); ok && size == 1 {
		return m, nil
	}
	return NewMap(ctx, m.comm, m.gids, 1)
}
