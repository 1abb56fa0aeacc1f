package partitions

import (
	"context"
	"github.com/notargets/PDData/comm"
	"github.com/pkg/errors"
	"slices"
)

// Value is the element type a MultiVector can carry.
type Value interface {
	~int | ~float64
}

// MultiVector holds NumVectors equally shaped buffers laid out on a Map.
// Storage is one contiguous slice:
// [Vector 0 points][Vector 1 points]...[Vector N-1 points]
type MultiVector[T Value] struct {
	m          *Map
	numVectors int
	stride     int // points per vector, Map.NumMyPoints()
	data       []T
}

// NewMultiVector allocates a zero-filled multivector on m.
func NewMultiVector[T Value](m *Map, numVectors int) *MultiVector[T] {
	stride := m.NumMyPoints()
	return &MultiVector[T]{
		m:          m,
		numVectors: numVectors,
		stride:     stride,
		data:       make([]T, numVectors*stride),
	}
}

// Map returns the map the multivector is laid out on.
func (mv *MultiVector[T]) Map() *Map { return mv.m }

// NumVectors returns the number of buffers.
func (mv *MultiVector[T]) NumVectors() int { return mv.numVectors }

// MyLength returns the number of local points in each buffer.
func (mv *MultiVector[T]) MyLength() int { return mv.stride }

// Vector returns a view of buffer i. Writes through the view change the
// multivector; the view cannot grow into the next buffer.
func (mv *MultiVector[T]) Vector(i int) []T {
	start := i * mv.stride
	return mv.data[start : start+mv.stride : start+mv.stride]
}

// ElementValues returns a view of the points of local element lid in buffer i.
func (mv *MultiVector[T]) ElementValues(i, lid int) []T {
	start := i*mv.stride + mv.m.FirstPointInElement(lid)
	end := start + mv.m.ElementSize(lid)
	return mv.data[start:end:end]
}

// PutScalar sets every point of every buffer to v.
func (mv *MultiVector[T]) PutScalar(v T) {
	for i := range mv.data {
		mv.data[i] = v
	}
}

// Clone returns a deep copy on the same map.
func (mv *MultiVector[T]) Clone() *MultiVector[T] {
	return &MultiVector[T]{
		m:          mv.m,
		numVectors: mv.numVectors,
		stride:     mv.stride,
		data:       slices.Clone(mv.data),
	}
}

// Import fills mv from src through imp, overwriting every target element the
// importer covers. It is collective over the importer's maps.
func (mv *MultiVector[T]) Import(ctx context.Context, src *MultiVector[T], imp *Importer) error {
	if !mv.m.SameAs(imp.target) {
		return errors.Wrap(ErrMapMismatch, "import target is not laid out on the importer target map")
	}
	if !src.m.SameAs(imp.source) {
		return errors.Wrap(ErrMapMismatch, "import source is not laid out on the importer source map")
	}
	if mv.numVectors != src.numVectors {
		return errors.Wrapf(ErrMapMismatch, "import of %d vectors into %d vectors", src.numVectors, mv.numVectors)
	}

	// Local copies first
	for i, srcLID := range imp.permuteFrom {
		dstLID := imp.permuteTo[i]
		for v := range mv.numVectors {
			copy(mv.ElementValues(v, dstLID), src.ElementValues(v, srcLID))
		}
	}

	// Pick: gather the requested elements of src into one buffer per rank
	send := make([][]T, len(imp.pick))
	for dst, lids := range imp.pick {
		for _, lid := range lids {
			for v := range src.numVectors {
				send[dst] = append(send[dst], src.ElementValues(v, lid)...)
			}
		}
	}

	recv, err := comm.AllToAllV(ctx, imp.target.comm, send)
	if err != nil {
		return err
	}

	// Place: scatter what every rank sent into the target elements
	for srcRank, lids := range imp.place {
		buf := recv[srcRank]
		offset := 0
		for _, lid := range lids {
			size := mv.m.ElementSize(lid)
			for v := range mv.numVectors {
				if offset+size > len(buf) {
					return errors.Wrapf(ErrMapMismatch, "rank %d sent %d values, more expected", srcRank, len(buf))
				}
				copy(mv.ElementValues(v, lid), buf[offset:offset+size])
				offset += size
			}
		}
		if offset != len(buf) {
			return errors.Wrapf(ErrMapMismatch, "rank %d sent %d values, expected %d", srcRank, len(buf), offset)
		}
	}
	return nil
}
