// Package state holds the field buffers of one temporal role.
package state

import (
	"github.com/notargets/PDData/field"
	"github.com/notargets/PDData/partitions"
	"github.com/pkg/errors"
	"maps"
	"slices"
)

// ErrUnknownField is returned when a field was never allocated in a State.
var ErrUnknownField = errors.New("field not allocated in state")

// State holds up to three multi-field buffers, one per shape. All fields of a
// shape share that buffer's map; field i of a shape lives in vector i.
type State struct {
	buffers [3]*partitions.MultiVector[float64] // [field.Length]
	slots   map[field.Spec]int
}

// New returns an empty State.
func New() *State {
	return &State{slots: map[field.Spec]int{}}
}

// AllocateScalarData allocates one zeroed buffer for specs on a one-point map.
func (s *State) AllocateScalarData(specs []field.Spec, m *partitions.Map) error {
	return s.allocate(field.Scalar, specs, m)
}

// AllocateVectorData allocates one zeroed buffer for specs on a three-point map.
func (s *State) AllocateVectorData(specs []field.Spec, m *partitions.Map) error {
	return s.allocate(field.Vector3D, specs, m)
}

// AllocateBondData allocates one zeroed buffer for specs on a bond map.
func (s *State) AllocateBondData(specs []field.Spec, m *partitions.Map) error {
	return s.allocate(field.Bond, specs, m)
}

func (s *State) allocate(length field.Length, specs []field.Spec, m *partitions.Map) error {
	if s.buffers[length] != nil {
		return errors.Errorf("%s data already allocated", length)
	}
	if m == nil {
		return errors.Errorf("no map for %s data", length)
	}
	switch size, ok := m.ConstantElementSize(); {
	case length == field.Scalar && (!ok || size != 1):
		return errors.Wrap(partitions.ErrMapMismatch, "scalar data needs a map of one point per element")
	case length == field.Vector3D && (!ok || size != 3):
		return errors.Wrap(partitions.ErrMapMismatch, "vector data needs a map of three points per element")
	}
	for _, spec := range specs {
		if spec.Length != length {
			return errors.Wrapf(field.ErrInvalidSpec, "%s allocated as %s data", spec, length)
		}
		if _, exists := s.slots[spec]; exists {
			return errors.Errorf("%s allocated twice", spec)
		}
	}

	for i, spec := range specs {
		s.slots[spec] = i
	}
	s.buffers[length] = partitions.NewMultiVector[float64](m, len(specs))
	return nil
}

// Data returns a view of the values of spec.
func (s *State) Data(spec field.Spec) ([]float64, error) {
	i, ok := s.slots[spec]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownField, "%s", spec)
	}
	return s.buffers[spec.Length].Vector(i), nil
}

// ScalarMultiVector returns the scalar buffer, nil if none was allocated.
func (s *State) ScalarMultiVector() *partitions.MultiVector[float64] {
	return s.buffers[field.Scalar]
}

// VectorMultiVector returns the vector buffer, nil if none was allocated.
func (s *State) VectorMultiVector() *partitions.MultiVector[float64] {
	return s.buffers[field.Vector3D]
}

// BondMultiVector returns the bond buffer, nil if none was allocated.
func (s *State) BondMultiVector() *partitions.MultiVector[float64] {
	return s.buffers[field.Bond]
}

// MultiVector returns the buffer of one shape, nil if none was allocated.
func (s *State) MultiVector(length field.Length) *partitions.MultiVector[float64] {
	if !length.Valid() {
		return nil
	}
	return s.buffers[length]
}

// FieldSpecs lists the fields held, in field order.
func (s *State) FieldSpecs() []field.Spec {
	specs := slices.Collect(maps.Keys(s.slots))
	slices.SortFunc(specs, field.Spec.Compare)
	return specs
}

// CopyFrom copies every buffer of other into the matching buffer of s. Both
// States must hold the same fields on the same maps.
func (s *State) CopyFrom(other *State) error {
	if !maps.Equal(s.slots, other.slots) {
		return errors.Wrap(partitions.ErrMapMismatch, "states hold different fields")
	}
	for length, dst := range s.buffers {
		src := other.buffers[length]
		if dst == nil && src == nil {
			continue
		}
		if dst == nil || src == nil || !dst.Map().SameAs(src.Map()) {
			return errors.Wrapf(partitions.ErrMapMismatch, "%s buffers live on different maps", field.Length(length))
		}
	}
	for length, dst := range s.buffers {
		if dst == nil {
			continue
		}
		for i := range dst.NumVectors() {
			copy(dst.Vector(i), other.buffers[length].Vector(i))
		}
	}
	return nil
}
